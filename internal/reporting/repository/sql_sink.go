package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/purchasesync/internal/config"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// factIndexes are created per fact table so that index names stay unique
// across feeds.
var factIndexes = []string{"created_at", "supplier_id", "collection_point_id", "area_office_id", "price_reason"}

type sqlSink struct {
	db       *gorm.DB
	log      *zap.Logger
	holder   *config.SyncConfigHolder
	migrated sync.Map
}

func NewSQLSink(db *gorm.DB, log *zap.Logger, holder *config.SyncConfigHolder) domain.Sink {
	return &sqlSink{db: db, log: log.Named("reporting.sql_sink"), holder: holder}
}

func (s *sqlSink) Upsert(ctx context.Context, feed string, records []*purchasedomain.EnrichedPurchase) (domain.Result, error) {
	if feed == "" {
		return domain.Result{}, domain.ErrInvalidFeed
	}
	table := config.FactTable(feed)
	if err := s.ensureTable(ctx, table); err != nil {
		return domain.Result{}, fmt.Errorf("prepare %s: %w", table, err)
	}

	batch := s.holder.Get().LoadBatchSize
	if batch < 1 {
		batch = 1
	}

	var res domain.Result
	for start := 0; start < len(records); start += batch {
		chunk := records[start:min(start+batch, len(records))]
		part, err := s.upsertChunk(ctx, table, chunk)
		if err != nil {
			return res, err
		}
		res.Add(part)
	}
	return res, nil
}

func (s *sqlSink) ensureTable(ctx context.Context, table string) error {
	if _, ok := s.migrated.Load(table); ok {
		return nil
	}
	tx := s.db.WithContext(ctx)
	if err := tx.Table(table).AutoMigrate(&purchasedomain.EnrichedPurchase{}); err != nil {
		return err
	}
	for _, column := range factIndexes {
		name := fmt.Sprintf("idx_%s_%s", table, column)
		if tx.Table(table).Migrator().HasIndex(&purchasedomain.EnrichedPurchase{}, name) {
			continue
		}
		if err := tx.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, column)).Error; err != nil {
			return err
		}
	}
	s.migrated.Store(table, struct{}{})
	return nil
}

type checksumRow struct {
	ID          string `gorm:"column:id"`
	RowChecksum string `gorm:"column:row_checksum"`
}

func (s *sqlSink) upsertChunk(ctx context.Context, table string, chunk []*purchasedomain.EnrichedPurchase) (domain.Result, error) {
	ids := make([]string, 0, len(chunk))
	for _, rec := range chunk {
		ids = append(ids, rec.ID.Hex())
	}

	var rows []checksumRow
	if err := s.db.WithContext(ctx).Table(table).Select("id", "row_checksum").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return domain.Result{}, fmt.Errorf("read checksums: %w", err)
	}
	existing := make(map[string]string, len(rows))
	for _, row := range rows {
		existing[row.ID] = row.RowChecksum
	}

	var res domain.Result
	pending := make([]*purchasedomain.EnrichedPurchase, 0, len(chunk))
	for _, rec := range chunk {
		stored, found := existing[rec.ID.Hex()]
		if found {
			res.Matched++
			if stored == rec.RowChecksum {
				res.Unchanged++
				continue
			}
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return res, nil
	}

	err := s.write(ctx, table, pending)
	if err == nil {
		tally(&res, existing, pending)
		return res, nil
	}
	if ctx.Err() != nil {
		return res, err
	}

	s.log.Warn("reporting.chunk_failed_retrying_rows", zap.String("table", table), zap.Int("rows", len(pending)), zap.Error(err))
	for _, rec := range pending {
		if err := s.write(ctx, table, []*purchasedomain.EnrichedPurchase{rec}); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			res.Errors = append(res.Errors, domain.RecordError{ID: rec.ID.Hex(), Err: err})
			continue
		}
		tally(&res, existing, []*purchasedomain.EnrichedPurchase{rec})
	}
	return res, nil
}

func (s *sqlSink) write(ctx context.Context, table string, records []*purchasedomain.EnrichedPurchase) error {
	return s.db.WithContext(ctx).
		Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&records).Error
}

func tally(res *domain.Result, existing map[string]string, written []*purchasedomain.EnrichedPurchase) {
	for _, rec := range written {
		if _, found := existing[rec.ID.Hex()]; found {
			res.Updated++
		} else {
			res.Inserted++
		}
	}
}
