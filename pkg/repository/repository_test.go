package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/smallbiznis/purchasesync/pkg/db/option"
	"github.com/smallbiznis/purchasesync/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID     int64  `gorm:"primaryKey;autoIncrement:false"`
	Feed   string `gorm:"size:64"`
	Status string `gorm:"size:16"`
}

func setup(t *testing.T) Repository[widget] {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return ProvideStore[widget](conn)
}

func TestStoreCreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	repo := setup(t)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, &widget{ID: i, Feed: "purchases", Status: "running"}))
	}
	require.NoError(t, repo.Create(ctx, &widget{ID: 6, Feed: "other", Status: "running"}))

	missing, err := repo.FindOne(ctx, &widget{ID: 99})
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Update(ctx, int64(3), map[string]any{"status": "success"}))
	assert.ErrorIs(t, repo.Update(ctx, int64(99), map[string]any{"status": "success"}), ErrNoRowsUpdated)

	got, err := repo.FindOne(ctx, &widget{ID: 3})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "success", got.Status)

	count, err := repo.Count(ctx, &widget{Feed: "purchases"}, option.ApplyOperator(option.Condition{
		Field: "status", Operator: option.EQ, Value: "running",
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestStorePagination(t *testing.T) {
	ctx := context.Background()
	repo := setup(t)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, &widget{ID: i, Feed: "purchases"}))
	}

	page := pagination.Pagination{PageSize: 2}
	rows, err := repo.Find(ctx, &widget{Feed: "purchases"}, option.ApplyPagination(page))
	require.NoError(t, err)
	rows, info := pagination.Page(rows, page.Size(), func(w *widget) pagination.Cursor { return pagination.Cursor{ID: w.ID} })
	require.Len(t, rows, 2)
	assert.Equal(t, int64(5), rows[0].ID)
	assert.True(t, info.HasMore)

	page.PageToken = info.NextPageToken
	rows, err = repo.Find(ctx, &widget{Feed: "purchases"}, option.ApplyPagination(page))
	require.NoError(t, err)
	rows, _ = pagination.Page(rows, page.Size(), func(w *widget) pagination.Cursor { return pagination.Cursor{ID: w.ID} })
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].ID)
}
