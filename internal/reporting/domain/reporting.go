package domain

import (
	"context"
	"errors"

	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
)

var (
	ErrPartialLoad = errors.New("partial_load")
	ErrInvalidFeed = errors.New("invalid_feed")
)

// RecordError is a write failure isolated to one record.
type RecordError struct {
	ID  string
	Err error
}

func (e RecordError) Error() string {
	return e.ID + ": " + e.Err.Error()
}

func (e RecordError) Unwrap() error { return e.Err }

// Result tallies one load. Matched counts records that already existed,
// whether or not they were rewritten.
type Result struct {
	Matched   int
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	Dropped   int
	Errors    []RecordError
}

// Loaded is the number of records persisted or confirmed current.
func (r Result) Loaded() int {
	return r.Inserted + r.Updated + r.Unchanged
}

func (r *Result) Add(other Result) {
	r.Matched += other.Matched
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Failed += other.Failed
	r.Dropped += other.Dropped
	r.Errors = append(r.Errors, other.Errors...)
}

// Sink upserts prepared records by id. Records carry a row checksum; a
// record whose stored checksum is identical is counted unchanged and not
// rewritten. A failure isolated to some records is reported in Result, not
// as an error.
type Sink interface {
	Upsert(ctx context.Context, feed string, records []*purchasedomain.EnrichedPurchase) (Result, error)
}
