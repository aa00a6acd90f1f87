package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidFeed = errors.New("invalid_feed")

// Store persists the high-water mark of each feed. Set overwrites; callers
// decide whether a new value is an advance.
type Store interface {
	Get(ctx context.Context, feed string) (*time.Time, error)
	Set(ctx context.Context, feed string, at time.Time) error
	Reset(ctx context.Context, feed string) error
}
