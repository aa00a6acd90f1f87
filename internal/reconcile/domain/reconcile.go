package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidFeed = errors.New("invalid_feed")

// Tolerance is the largest price difference still considered equal.
var Tolerance = decimal.New(1, -4)

// FactPrice is a resolved price as written by the loader.
type FactPrice struct {
	ID       string
	Type     *string
	BookedAt *time.Time
	Price    *decimal.Decimal
}

// LegacyPrice is a price from the previous reporting pipeline.
type LegacyPrice struct {
	PurchaseID string
	BasePrice  *decimal.Decimal
}

// Mismatch is a purchase whose prices differ by more than Tolerance.
type Mismatch struct {
	ID        string
	Type      *string
	BookedAt  *time.Time
	Price     decimal.Decimal
	BasePrice decimal.Decimal
	Diff      decimal.Decimal
}

type Report struct {
	Feed         string
	FactRows     int
	LegacyRows   int
	Matched      int
	Incomparable int
	Mismatches   []Mismatch
}

type Repository interface {
	FactPrices(ctx context.Context, feed string) ([]FactPrice, error)
	LegacyPrices(ctx context.Context) ([]LegacyPrice, error)
}
