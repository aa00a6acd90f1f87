package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row is one feed's checkpoint in the etl_metadata table.
type Row struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	LastRun   time.Time `gorm:"column:last_run;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

type sqlStore struct {
	db     *gorm.DB
	clock  clock.Clock
	holder *config.SyncConfigHolder
}

func NewSQLStore(db *gorm.DB, clk clock.Clock, holder *config.SyncConfigHolder) domain.Store {
	return &sqlStore{db: db, clock: clk, holder: holder}
}

func (s *sqlStore) table() string {
	return s.holder.Get().Tables.Checkpoints
}

func (s *sqlStore) Get(ctx context.Context, feed string) (*time.Time, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}
	var row Row
	err := s.db.WithContext(ctx).Table(s.table()).Where("id = ?", feed).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at := row.LastRun.UTC()
	return &at, nil
}

func (s *sqlStore) Set(ctx context.Context, feed string, at time.Time) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	row := Row{ID: feed, LastRun: at.UTC(), UpdatedAt: s.clock.Now().UTC()}
	return s.db.WithContext(ctx).
		Table(s.table()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_run", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *sqlStore) Reset(ctx context.Context, feed string) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	return s.db.WithContext(ctx).Table(s.table()).Where("id = ?", feed).Delete(&Row{}).Error
}
