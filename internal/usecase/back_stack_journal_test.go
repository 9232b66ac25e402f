package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

type fakeBackStackStore struct {
	mu      sync.Mutex
	saved   [][]string
	loaded  []string
	saveErr error
	saves   chan []string
}

func newFakeBackStackStore() *fakeBackStackStore {
	return &fakeBackStackStore{saves: make(chan []string, 16)}
}

func (f *fakeBackStackStore) SaveBackStack(ctx context.Context, entries []string) error {
	f.mu.Lock()
	err := f.saveErr
	if err == nil {
		f.saved = append(f.saved, entries)
	}
	f.mu.Unlock()
	if err == nil {
		f.saves <- entries
	}
	return err
}

func (f *fakeBackStackStore) LoadBackStack(ctx context.Context) ([]string, error) {
	return f.loaded, nil
}

func TestBackStackJournal_PersistsCoordinatorChanges(t *testing.T) {
	store := newFakeBackStackStore()
	journal := NewBackStackJournal(store, zaptest.NewLogger(t))
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	coordinator.Subscribe(journal.Record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- journal.Run(ctx) }()

	mustNavigate(t, coordinator, domain.RouteHome, nil)

	select {
	case entries := <-store.saves:
		if len(entries) != 2 || entries[0] != "login" || entries[1] != "home" {
			t.Fatalf("unexpected persisted stack %v", entries)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("back stack was not persisted")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestBackStackJournal_FlushesLatestOnShutdown(t *testing.T) {
	store := newFakeBackStackStore()
	journal := NewBackStackJournal(store, zaptest.NewLogger(t))

	journal.Record([]domain.Route{domain.MustRoute(domain.RouteLogin, nil, nil)})
	journal.Record([]domain.Route{domain.MustRoute(domain.RouteHome, nil, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := journal.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	last := store.saved[len(store.saved)-1]
	if len(last) != 1 || last[0] != "home" {
		t.Fatalf("expected latest stack to be flushed, got %v", last)
	}
}

func TestBackStackJournal_KeepsPendingOnFailure(t *testing.T) {
	store := newFakeBackStackStore()
	store.saveErr = errors.New("redis down")
	journal := NewBackStackJournal(store, zaptest.NewLogger(t))

	journal.Record([]domain.Route{domain.MustRoute(domain.RouteHome, nil, nil)})
	if err := journal.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	if err := journal.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected pending stack to be retried, got %d saves", len(store.saved))
	}
}

func TestBackStackJournal_Load(t *testing.T) {
	store := newFakeBackStackStore()
	store.loaded = []string{"home"}
	journal := NewBackStackJournal(store, zaptest.NewLogger(t))

	entries, err := journal.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(entries) != 1 || entries[0] != "home" {
		t.Fatalf("unexpected entries %v", entries)
	}
}
