package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresTxManager は*sql.DB上でトランザクションを管理する。
type PostgresTxManager struct {
	db *sql.DB
}

// NewPostgresTxManager はPostgresTxManagerを生成する。
func NewPostgresTxManager(db *sql.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

// WithinTx はトランザクションを開始し、fnに束縛済みStoreを渡す。
// fnが成功した場合のみコミットする。
func (m *PostgresTxManager) WithinTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresStore struct {
	db DBTX
}

func (s *postgresStore) Users() UserRepository {
	return NewPostgresUserRepo(s.db)
}

func (s *postgresStore) Credentials() CredentialRepository {
	return NewPostgresCredentialRepo(s.db)
}

// compile-time interface check
var _ TxManager = (*PostgresTxManager)(nil)
