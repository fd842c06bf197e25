// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
)

// ErrUserNotFound は指定IDのユーザーが存在しない場合に返される。
var ErrUserNotFound = errors.New("user not found")

// findOrCreateAttempts は挿入競合後の再読込で行が見つからなかった場合の試行上限。
const findOrCreateAttempts = 3

// Directory はプロバイダー上の識別子とサービス内ユーザーの対応を管理する。
type Directory struct {
	repo repository.UserRepository
	now  func() time.Time
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(repo repository.UserRepository) *Directory {
	return &Directory{repo: repo, now: time.Now}
}

// WithRepository はrepoに束縛したDirectoryのコピーを返す。トランザクション内で使う。
func (d *Directory) WithRepository(repo repository.UserRepository) *Directory {
	c := *d
	c.repo = repo
	return &c
}

// FindOrCreate はproviderIdentityに対応するユーザーを返し、未登録なら作成する。
// 同じproviderIdentityで同時に呼ばれても作成されるユーザーは1人のみ。
// メールアドレスが変わっていれば更新する。
func (d *Directory) FindOrCreate(ctx context.Context, providerIdentity, email string) (*model.User, error) {
	if providerIdentity == "" {
		return nil, errors.New("provider identity is required")
	}

	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		existing, err := d.repo.FindByProviderIdentity(ctx, providerIdentity)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return d.syncEmail(ctx, existing, email)
		}

		candidate := &model.User{
			ID:               uuid.NewString(),
			ProviderIdentity: providerIdentity,
			Email:            email,
			CreatedAt:        d.now(),
		}
		created, err := d.repo.InsertIfAbsent(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}
		if created {
			slog.Info("new user created",
				slog.String("user_id", candidate.ID),
			)
			return candidate, nil
		}
		// 競合した挿入に負けた。次のループで勝者の行を読む
	}

	return nil, fmt.Errorf("failed to resolve user for provider identity after %d attempts", findOrCreateAttempts)
}

func (d *Directory) syncEmail(ctx context.Context, u *model.User, email string) (*model.User, error) {
	if email == "" || email == u.Email {
		return u, nil
	}
	if err := d.repo.UpdateEmail(ctx, u.ID, email); err != nil {
		return nil, fmt.Errorf("メールアドレスの更新に失敗しました: %w", err)
	}
	u.Email = email
	return u, nil
}

// FindByID は指定IDのユーザーを返す。存在しない場合はErrUserNotFoundを返す。
func (d *Directory) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// Withdraw はユーザーの退会処理を実行する。
// oauth_credentialsはCASCADE削除される。発行済みセッショントークンは
// 検証時にユーザーが見つからないため以後拒否される。
func (d *Directory) Withdraw(ctx context.Context, userID string) error {
	if _, err := d.FindByID(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := d.repo.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
