package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
)

const defaultJournalTimeout = 5 * time.Second

// BackStackJournal persists the back-stack after every change. Only the most
// recent stack is kept pending, so a slow store never blocks navigation.
type BackStackJournal struct {
	store   port.BackStackStore
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending []string
	dirty   bool
	signal  chan struct{}
}

// NewBackStackJournal constructs a journal writing to store.
func NewBackStackJournal(store port.BackStackStore, logger *zap.Logger) *BackStackJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackStackJournal{
		store:   store,
		logger:  logger,
		timeout: defaultJournalTimeout,
		signal:  make(chan struct{}, 1),
	}
}

// Load returns the persisted entries, bottom first.
func (j *BackStackJournal) Load(ctx context.Context) ([]string, error) {
	entries, err := j.store.LoadBackStack(ctx)
	if err != nil {
		return nil, fmt.Errorf("load back stack: %w", err)
	}
	return entries, nil
}

// Record queues stack for persistence. It is meant to be registered with
// RouteCoordinator.Subscribe.
func (j *BackStackJournal) Record(stack []domain.Route) {
	j.mu.Lock()
	j.pending = EncodeBackStack(stack)
	j.dirty = true
	j.mu.Unlock()

	select {
	case j.signal <- struct{}{}:
	default:
	}
}

// Run saves queued stacks until ctx is canceled, then flushes whatever is still pending.
func (j *BackStackJournal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), j.timeout)
			defer cancel()
			return j.Flush(flushCtx)
		case <-j.signal:
			if err := j.flushWithTimeout(ctx); err != nil {
				j.logger.Warn("persist back stack failed", zap.Error(err))
			}
		}
	}
}

// Flush saves the pending stack, if any.
func (j *BackStackJournal) Flush(ctx context.Context) error {
	j.mu.Lock()
	if !j.dirty {
		j.mu.Unlock()
		return nil
	}
	entries := j.pending
	j.dirty = false
	j.mu.Unlock()

	if err := j.store.SaveBackStack(ctx, entries); err != nil {
		j.mu.Lock()
		if !j.dirty {
			j.pending = entries
			j.dirty = true
		}
		j.mu.Unlock()
		return fmt.Errorf("save back stack: %w", err)
	}
	return nil
}

func (j *BackStackJournal) flushWithTimeout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.Flush(ctx)
}
