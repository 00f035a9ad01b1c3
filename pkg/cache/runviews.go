package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voxstudio/pkg/model"
)

// RunViews stores finished run views so a later download request can find
// the run's artifact. Views expire after ttl together with the pointer.
type RunViews struct {
	cache Cache
	ttl   time.Duration
}

func NewRunViews(c Cache, ttl time.Duration) *RunViews {
	return &RunViews{cache: c, ttl: ttl}
}

func (v *RunViews) Save(ctx context.Context, view *model.RunView) error {
	if view == nil || view.ID == "" {
		return errors.New("run view without id")
	}
	if err := v.cache.SetWithTTL(ctx, RunCacheKey(view.ID), view, v.ttl); err != nil {
		return fmt.Errorf("failed to save run view: %w", err)
	}
	return nil
}

// Get returns ErrNotFound (wrapped) for unknown or expired runs
func (v *RunViews) Get(ctx context.Context, runID string) (*model.RunView, error) {
	var view model.RunView
	if err := v.cache.Get(ctx, RunCacheKey(runID), &view); err != nil {
		return nil, err
	}
	return &view, nil
}
