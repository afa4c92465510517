package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"motherbot/internal/models"
	"motherbot/internal/storage"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Tracker holds the single active step of every actor.
// Set replaces the tag and merges data keys while the tag stays the same.
// Concurrent Set calls for one actor resolve last writer wins.
type Tracker struct {
	store  storage.Storage
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a tracker. A zero ttl means steps never expire.
func New(store storage.Storage, ttl time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Set assigns a step to the actor
func (t *Tracker) Set(ctx context.Context, actorID int64, tag models.StepTag, data map[string]string) error {
	state := &models.StepState{ActorID: actorID, Tag: tag, Data: data}
	if t.ttl > 0 {
		exp := t.now().Add(t.ttl)
		state.ExpiresAt = &exp
	}
	if err := t.store.SetStep(ctx, state); err != nil {
		return fmt.Errorf("failed to set step: %w", err)
	}
	return nil
}

// State returns the actor's step, or nil when the actor is idle
func (t *Tracker) State(ctx context.Context, actorID int64) (*models.StepState, error) {
	st, err := t.store.GetStep(ctx, actorID, t.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return st, nil
}

// Get returns the actor's step tag, StepNone when idle
func (t *Tracker) Get(ctx context.Context, actorID int64) (models.StepTag, error) {
	st, err := t.State(ctx, actorID)
	if err != nil || st == nil {
		return models.StepNone, err
	}
	return st.Tag, nil
}

// Data returns one value from the actor's step data
func (t *Tracker) Data(ctx context.Context, actorID int64, key string) (string, bool, error) {
	st, err := t.State(ctx, actorID)
	if err != nil || st == nil {
		return "", false, err
	}
	v, ok := st.Data[key]
	return v, ok, nil
}

// Clear returns the actor to idle
func (t *Tracker) Clear(ctx context.Context, actorID int64) error {
	if err := t.store.ClearStep(ctx, actorID); err != nil {
		return fmt.Errorf("failed to clear step: %w", err)
	}
	return nil
}

// Sweep deletes expired steps
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	n, err := t.store.DeleteExpiredSteps(ctx, t.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep steps: %w", err)
	}
	return n, nil
}

// StartSweeper runs Sweep every interval until the scheduler is shut down
func (t *Tracker) StartSweeper(interval time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := t.Sweep(ctx)
			if err != nil {
				t.logger.Error("Step sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				t.logger.Debug("Expired steps removed", zap.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule step sweep: %w", err)
	}

	s.Start()
	return s, nil
}
