package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/pkg/db/option"
	"github.com/smallbiznis/purchasesync/pkg/db/pagination"
	"github.com/smallbiznis/purchasesync/pkg/repository"
	"gorm.io/gorm"
)

type runRepository struct {
	store repository.Repository[domain.Run]
}

func NewRunRepository(db *gorm.DB) domain.RunRepository {
	return &runRepository{store: repository.ProvideStore[domain.Run](db)}
}

func (r *runRepository) Create(ctx context.Context, run *domain.Run) error {
	return r.store.Create(ctx, run)
}

func (r *runRepository) Finish(ctx context.Context, run *domain.Run) error {
	return r.store.Update(ctx, run.ID, map[string]any{
		"status":           run.Status,
		"window_start":     run.WindowStart,
		"checkpoint_after": run.CheckpointAfter,
		"extracted":        run.Extracted,
		"matched":          run.Matched,
		"inserted":         run.Inserted,
		"updated":          run.Updated,
		"unchanged":        run.Unchanged,
		"failed":           run.Failed,
		"dropped":          run.Dropped,
		"price_existing":   run.PriceExisting,
		"price_current":    run.PriceCurrent,
		"price_archived":   run.PriceArchived,
		"unresolved":       run.Unresolved,
		"details":          run.Details,
		"error":            run.Error,
		"finished_at":      run.FinishedAt,
	})
}

func (r *runRepository) Get(ctx context.Context, id snowflake.ID) (*domain.Run, error) {
	run, err := r.store.FindOne(ctx, &domain.Run{ID: id})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (r *runRepository) List(ctx context.Context, req domain.ListRunsRequest) ([]*domain.Run, pagination.PageInfo, error) {
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.Feed != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "feed", Operator: option.EQ, Value: req.Feed}))
	}

	runs, err := r.store.Find(ctx, nil, opts...)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	page, info := pagination.Page(runs, req.Size(), func(run *domain.Run) pagination.Cursor {
		return pagination.Cursor{ID: run.ID.Int64()}
	})
	return page, info, nil
}
