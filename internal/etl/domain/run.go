package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/purchasesync/pkg/db/pagination"
	"gorm.io/datatypes"
)

var (
	ErrInvalidFeed = errors.New("invalid_feed")
	ErrUnknownFeed = errors.New("unknown_feed")
	ErrRunNotFound = errors.New("run_not_found")
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusEmpty   RunStatus = "empty"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one row of the etl_runs ledger.
type Run struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id,string"`
	Feed             string         `gorm:"type:varchar(64);not null;index" json:"feed"`
	Status           RunStatus      `gorm:"type:varchar(16);not null" json:"status"`
	WindowStart      *time.Time     `json:"window_start"`
	CheckpointBefore *time.Time     `json:"checkpoint_before"`
	CheckpointAfter  *time.Time     `json:"checkpoint_after"`
	Extracted        int            `gorm:"not null;default:0" json:"extracted"`
	Matched          int            `gorm:"not null;default:0" json:"matched"`
	Inserted         int            `gorm:"not null;default:0" json:"inserted"`
	Updated          int            `gorm:"not null;default:0" json:"updated"`
	Unchanged        int            `gorm:"not null;default:0" json:"unchanged"`
	Failed           int            `gorm:"not null;default:0" json:"failed"`
	Dropped          int            `gorm:"not null;default:0" json:"dropped"`
	PriceExisting    int            `gorm:"not null;default:0" json:"price_existing"`
	PriceCurrent     int            `gorm:"not null;default:0" json:"price_current"`
	PriceArchived    int            `gorm:"not null;default:0" json:"price_archived"`
	Unresolved       int            `gorm:"not null;default:0" json:"unresolved"`
	Details          datatypes.JSON `json:"details,omitempty"`
	Error            *string        `json:"error,omitempty"`
	StartedAt        time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at"`
}

func (Run) TableName() string { return "etl_runs" }

// RunDetails is the JSON payload stored with a run.
type RunDetails struct {
	UnresolvedByReason map[string]int `json:"unresolved_by_reason,omitempty"`
	InvalidIdentifiers map[string]int `json:"invalid_identifiers,omitempty"`
	FailedIDs          []string       `json:"failed_ids,omitempty"`
}

type ListRunsRequest struct {
	Feed string
	pagination.Pagination
}

type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
	Get(ctx context.Context, id snowflake.ID) (*Run, error)
	List(ctx context.Context, req ListRunsRequest) ([]*Run, pagination.PageInfo, error)
}
