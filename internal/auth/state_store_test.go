package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/model"
	"github.com/RazK/Voyage-Voyage/internal/repository"
)

// memoryStateRepo は条件付き削除を再現するインメモリ実装。
type memoryStateRepo struct {
	mu     sync.Mutex
	rows   map[string]time.Time
	failFn func() error
}

func newMemoryStateRepo() *memoryStateRepo {
	return &memoryStateRepo{rows: make(map[string]time.Time)}
}

func (r *memoryStateRepo) Create(_ context.Context, s *model.StateToken) error {
	if r.failFn != nil {
		if err := r.failFn(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.Token] = s.CreatedAt
	return nil
}

func (r *memoryStateRepo) Consume(_ context.Context, token string) (*model.StateToken, error) {
	if r.failFn != nil {
		if err := r.failFn(); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	created, ok := r.rows[token]
	if !ok {
		return nil, nil
	}
	delete(r.rows, token)
	return &model.StateToken{Token: token, CreatedAt: created}, nil
}

func (r *memoryStateRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for tok, created := range r.rows {
		if created.Before(before) {
			delete(r.rows, tok)
			n++
		}
	}
	return n, nil
}

func (r *memoryStateRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var _ repository.StateRepository = (*memoryStateRepo)(nil)

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStateStore_Issue_ReturnsURLSafe256BitToken(t *testing.T) {
	store := NewStateStore(newMemoryStateRepo(), 0)

	token, err := store.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token %q is not unpadded base64url: %v", token, err)
	}
	if len(raw) < 32 {
		t.Errorf("token entropy = %d bytes, want >= 32", len(raw))
	}
}

func TestStateStore_Issue_Unique(t *testing.T) {
	store := NewStateStore(newMemoryStateRepo(), 0)
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		token, err := store.Issue(context.Background())
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token issued: %q", token)
		}
		seen[token] = true
	}
}

func TestStateStore_Issue_StorageFailure(t *testing.T) {
	repo := newMemoryStateRepo()
	repo.failFn = func() error { return errors.New("connection refused") }
	store := NewStateStore(repo, 0)

	_, err := store.Issue(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestStateStore_Consume_OnlyOnce(t *testing.T) {
	store := NewStateStore(newMemoryStateRepo(), 0)
	ctx := context.Background()

	token, _ := store.Issue(ctx)

	if err := store.Consume(ctx, token); err != nil {
		t.Fatalf("first Consume returned error: %v", err)
	}
	if err := store.Consume(ctx, token); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("second Consume error = %v, want ErrStateNotFound", err)
	}
}

func TestStateStore_Consume_UnknownAndEmpty(t *testing.T) {
	store := NewStateStore(newMemoryStateRepo(), 0)
	ctx := context.Background()

	if err := store.Consume(ctx, "never-issued"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("unknown token error = %v, want ErrStateNotFound", err)
	}
	if err := store.Consume(ctx, ""); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("empty token error = %v, want ErrStateNotFound", err)
	}
}

func TestStateStore_Consume_ConcurrentSingleWinner(t *testing.T) {
	store := NewStateStore(newMemoryStateRepo(), 0)
	ctx := context.Background()
	token, _ := store.Issue(ctx)

	const workers = 50
	var ok, notFound int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := store.Consume(ctx, token)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrStateNotFound):
				atomic.AddInt32(&notFound, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok != 1 {
		t.Errorf("successful consumes = %d, want 1", ok)
	}
	if notFound != workers-1 {
		t.Errorf("not found = %d, want %d", notFound, workers-1)
	}
}

func TestStateStore_Consume_ExpiredAfterElevenMinutes(t *testing.T) {
	repo := newMemoryStateRepo()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStateStore(repo, 10*time.Minute, WithStateClock(clock.Now))
	ctx := context.Background()

	token, _ := store.Issue(ctx)
	clock.Advance(11 * time.Minute)

	if err := store.Consume(ctx, token); !errors.Is(err, ErrStateExpired) {
		t.Fatalf("Consume error = %v, want ErrStateExpired", err)
	}
	if repo.len() != 0 {
		t.Error("expired row should have been deleted")
	}
	if err := store.Consume(ctx, token); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("re-consume error = %v, want ErrStateNotFound", err)
	}
}

func TestStateStore_Consume_WithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStateStore(newMemoryStateRepo(), 10*time.Minute, WithStateClock(clock.Now))
	ctx := context.Background()

	token, _ := store.Issue(ctx)
	clock.Advance(9 * time.Minute)

	if err := store.Consume(ctx, token); err != nil {
		t.Errorf("Consume error = %v, want nil", err)
	}
}

func TestStateStore_Consume_StorageFailure(t *testing.T) {
	repo := newMemoryStateRepo()
	store := NewStateStore(repo, 0)
	token, _ := store.Issue(context.Background())

	repo.failFn = func() error { return errors.New("timeout") }
	if err := store.Consume(context.Background(), token); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestStateStore_SweepExpired(t *testing.T) {
	repo := newMemoryStateRepo()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStateStore(repo, 10*time.Minute, WithStateClock(clock.Now))
	ctx := context.Background()

	store.Issue(ctx)
	store.Issue(ctx)
	clock.Advance(15 * time.Minute)
	fresh, _ := store.Issue(ctx)

	n, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("swept = %d, want 2", n)
	}
	if err := store.Consume(ctx, fresh); err != nil {
		t.Errorf("fresh token should survive sweep, got %v", err)
	}
}
