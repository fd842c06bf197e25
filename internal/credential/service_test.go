package credential

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
	"github.com/RazK/Voyage-Voyage/internal/security"
)

// --- モック定義 ---

type memoryCredentialRepo struct {
	mu    sync.Mutex
	rows  map[string]model.Credential
	errFn func(op string) error
}

func newMemoryCredentialRepo() *memoryCredentialRepo {
	return &memoryCredentialRepo{rows: make(map[string]model.Credential)}
}

func key(userID, provider string) string { return userID + "/" + provider }

func (r *memoryCredentialRepo) fail(op string) error {
	if r.errFn != nil {
		return r.errFn(op)
	}
	return nil
}

func (r *memoryCredentialRepo) Upsert(_ context.Context, cred *model.Credential) error {
	if err := r.fail("upsert"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cred
	c.UpdatedAt = time.Now()
	r.rows[key(cred.UserID, cred.Provider)] = c
	return nil
}

func (r *memoryCredentialRepo) FindByUserAndProvider(_ context.Context, userID, provider string) (*model.Credential, error) {
	if err := r.fail("find"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[key(userID, provider)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryCredentialRepo) UpdateRefreshToken(_ context.Context, userID, provider, encrypted string, expiresAt *time.Time) error {
	if err := r.fail("update"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[key(userID, provider)]
	if !ok {
		return repository.ErrNotFound
	}
	c.EncryptedRefreshToken = encrypted
	c.ExpiresAt = expiresAt
	r.rows[key(userID, provider)] = c
	return nil
}

type mockRefresher struct {
	refreshFn func(ctx context.Context, refreshToken string) (*model.OAuthTokens, error)
	submitted []string
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error) {
	m.submitted = append(m.submitted, refreshToken)
	return m.refreshFn(ctx, refreshToken)
}

type recordingObserver struct {
	successes, failures, rotations int
}

func (o *recordingObserver) RecordTokenRefresh(success, rotated bool) {
	if success {
		o.successes++
	} else {
		o.failures++
	}
	if rotated {
		o.rotations++
	}
}

// --- compile-time interface checks ---
var _ repository.CredentialRepository = (*memoryCredentialRepo)(nil)
var _ TokenRefresher = (*mockRefresher)(nil)
var _ Cipher = (*security.TokenCipher)(nil)

func newTestCipher(t *testing.T) *security.TokenCipher {
	t.Helper()
	c, err := security.NewTokenCipher(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	if err != nil {
		t.Fatalf("NewTokenCipher returned error: %v", err)
	}
	return c
}

// --- テスト ---

func TestUpsert_StoresEncryptedToken(t *testing.T) {
	repo := newMemoryCredentialRepo()
	cipher := newTestCipher(t)
	svc := NewService(repo, cipher, nil, nil)
	ctx := context.Background()

	if err := svc.Upsert(ctx, "user-1", model.ProviderGoogle, "RT1", []string{"openid"}, nil); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	stored, _ := repo.FindByUserAndProvider(ctx, "user-1", model.ProviderGoogle)
	if stored.EncryptedRefreshToken == "RT1" {
		t.Fatal("refresh token stored in plaintext")
	}
	plain, err := cipher.Decrypt(stored.EncryptedRefreshToken)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plain != "RT1" {
		t.Errorf("decrypted = %q, want %q", plain, "RT1")
	}
}

func TestGetValidAccessToken_RotationScenario(t *testing.T) {
	repo := newMemoryCredentialRepo()
	cipher := newTestCipher(t)
	observer := &recordingObserver{}
	refresher := &mockRefresher{
		refreshFn: func(_ context.Context, rt string) (*model.OAuthTokens, error) {
			switch rt {
			case "RT1":
				return &model.OAuthTokens{AccessToken: "AT-a", RefreshToken: "RT2", Expiry: time.Now().Add(time.Hour)}, nil
			case "RT2":
				return &model.OAuthTokens{AccessToken: "AT-b", RefreshToken: "RT2"}, nil
			}
			return nil, errors.New("invalid_grant")
		},
	}
	svc := NewService(repo, cipher, refresher, observer)
	ctx := context.Background()

	if err := svc.Upsert(ctx, "user-1", model.ProviderGoogle, "RT1", []string{"openid"}, nil); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	at, err := svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle)
	if err != nil {
		t.Fatalf("GetValidAccessToken returned error: %v", err)
	}
	if at != "AT-a" {
		t.Errorf("access token = %q, want %q", at, "AT-a")
	}

	stored, _ := repo.FindByUserAndProvider(ctx, "user-1", model.ProviderGoogle)
	plain, err := cipher.Decrypt(stored.EncryptedRefreshToken)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plain != "RT2" {
		t.Errorf("stored refresh token = %q, want %q", plain, "RT2")
	}
	if stored.ExpiresAt == nil {
		t.Error("expected ExpiresAt to be updated on rotation")
	}

	at, err = svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle)
	if err != nil {
		t.Fatalf("second GetValidAccessToken returned error: %v", err)
	}
	if at != "AT-b" {
		t.Errorf("access token = %q, want %q", at, "AT-b")
	}

	if len(refresher.submitted) != 2 || refresher.submitted[1] != "RT2" {
		t.Errorf("submitted refresh tokens = %v, want second to be RT2", refresher.submitted)
	}
	if observer.successes != 2 || observer.rotations != 1 {
		t.Errorf("observer = %+v, want 2 successes and 1 rotation", observer)
	}
}

func TestGetValidAccessToken_NoRotation_DoesNotWrite(t *testing.T) {
	repo := newMemoryCredentialRepo()
	cipher := newTestCipher(t)
	refresher := &mockRefresher{
		refreshFn: func(_ context.Context, rt string) (*model.OAuthTokens, error) {
			return &model.OAuthTokens{AccessToken: "AT", RefreshToken: rt}, nil
		},
	}
	svc := NewService(repo, cipher, refresher, nil)
	ctx := context.Background()

	svc.Upsert(ctx, "user-1", model.ProviderGoogle, "RT1", nil, nil)
	before, _ := repo.FindByUserAndProvider(ctx, "user-1", model.ProviderGoogle)

	repo.errFn = func(op string) error {
		if op == "update" {
			return errors.New("update must not be called")
		}
		return nil
	}

	if _, err := svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle); err != nil {
		t.Fatalf("GetValidAccessToken returned error: %v", err)
	}

	after, _ := repo.FindByUserAndProvider(ctx, "user-1", model.ProviderGoogle)
	if before.EncryptedRefreshToken != after.EncryptedRefreshToken {
		t.Error("stored token changed although provider did not rotate")
	}
}

func TestGetValidAccessToken_NoCredential(t *testing.T) {
	svc := NewService(newMemoryCredentialRepo(), newTestCipher(t), nil, nil)

	_, err := svc.GetValidAccessToken(context.Background(), "missing", model.ProviderGoogle)
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("error = %v, want ErrNoCredential", err)
	}
}

func TestGetValidAccessToken_DecryptFailed(t *testing.T) {
	repo := newMemoryCredentialRepo()
	repo.Upsert(context.Background(), &model.Credential{
		UserID: "user-1", Provider: model.ProviderGoogle, EncryptedRefreshToken: "not-a-ciphertext",
	})
	svc := NewService(repo, newTestCipher(t), nil, nil)

	_, err := svc.GetValidAccessToken(context.Background(), "user-1", model.ProviderGoogle)
	if !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("error = %v, want ErrDecryptFailed", err)
	}
}

func TestGetValidAccessToken_RefreshFailed(t *testing.T) {
	repo := newMemoryCredentialRepo()
	cipher := newTestCipher(t)
	observer := &recordingObserver{}
	providerErr := errors.New("invalid_grant")
	refresher := &mockRefresher{
		refreshFn: func(context.Context, string) (*model.OAuthTokens, error) {
			return nil, providerErr
		},
	}
	svc := NewService(repo, cipher, refresher, observer)
	ctx := context.Background()
	svc.Upsert(ctx, "user-1", model.ProviderGoogle, "RT1", nil, nil)

	_, err := svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("error = %v, want ErrRefreshFailed", err)
	}
	if !errors.Is(err, providerErr) {
		t.Errorf("error = %v, should wrap provider error", err)
	}
	if observer.failures != 1 {
		t.Errorf("failures = %d, want 1", observer.failures)
	}
}

func TestWithRepository_UsesBoundRepository(t *testing.T) {
	base := newMemoryCredentialRepo()
	bound := newMemoryCredentialRepo()
	svc := NewService(base, newTestCipher(t), nil, nil)

	if err := svc.WithRepository(bound).Upsert(context.Background(), "user-1", model.ProviderGoogle, "RT", nil, nil); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	if got, _ := base.FindByUserAndProvider(context.Background(), "user-1", model.ProviderGoogle); got != nil {
		t.Error("base repository should be untouched")
	}
	if got, _ := bound.FindByUserAndProvider(context.Background(), "user-1", model.ProviderGoogle); got == nil {
		t.Error("bound repository should hold the credential")
	}
}

type refresherFunc func(ctx context.Context, refreshToken string) (*model.OAuthTokens, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (*model.OAuthTokens, error) {
	return f(ctx, refreshToken)
}

func TestGetValidAccessToken_ConcurrentCallsShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryCredentialRepo()
	cipher := newTestCipher(t)

	release := make(chan struct{})
	var calls int32
	refresher := refresherFunc(func(_ context.Context, refreshToken string) (*model.OAuthTokens, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &model.OAuthTokens{AccessToken: "at-shared", RefreshToken: "rt-rotated"}, nil
	})

	svc := NewService(repo, cipher, refresher, nil)
	if err := svc.Upsert(ctx, "user-1", model.ProviderGoogle, "rt-original", nil, nil); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at, err := svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle)
			if err != nil {
				t.Errorf("GetValidAccessToken returned error: %v", err)
				return
			}
			results <- at
		}()
	}

	// 全員が同じリフレッシュに合流するまで待つ
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
	for at := range results {
		if at != "at-shared" {
			t.Errorf("access token = %q, want %q", at, "at-shared")
		}
	}

	cred, _ := repo.FindByUserAndProvider(ctx, "user-1", model.ProviderGoogle)
	stored, err := cipher.Decrypt(cred.EncryptedRefreshToken)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if stored != "rt-rotated" {
		t.Errorf("stored refresh token = %q, want %q", stored, "rt-rotated")
	}
}

func TestGetValidAccessToken_CancelledCallerReturnsContextError(t *testing.T) {
	repo := newMemoryCredentialRepo()
	release := make(chan struct{})
	defer close(release)
	refresher := refresherFunc(func(context.Context, string) (*model.OAuthTokens, error) {
		<-release
		return &model.OAuthTokens{AccessToken: "at"}, nil
	})

	svc := NewService(repo, newTestCipher(t), refresher, nil)
	if err := svc.Upsert(context.Background(), "user-1", model.ProviderGoogle, "rt", nil, nil); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.GetValidAccessToken(ctx, "user-1", model.ProviderGoogle)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
