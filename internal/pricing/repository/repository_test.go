package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func strPtr(s string) *string { return &s }

func TestSQLRepositoryListsActiveRulesNewestFirst(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	cfg := config.DefaultSyncConfig()
	cfg.Tables.CurrentPrices = "milk_prices"
	holder := config.NewStaticSyncConfigHolder(cfg)

	require.NoError(t, conn.Table("milk_prices").AutoMigrate(&ruleRow{}))
	require.NoError(t, conn.Table(cfg.Tables.ArchivedPrices).AutoMigrate(&ruleRow{}))

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := decimal.RequireFromString("32.5")
	rows := []ruleRow{
		{ID: "r-old", SourceType: strPtr("t1"), AreaOffice: strPtr("ao1"), WEF: &older, Price: &p, Status: domain.StatusActive},
		{ID: "r-new", SourceType: strPtr("t1"), Supplier: strPtr("s1"), WEF: &newer, Price: &p, Status: domain.StatusActive},
		{ID: "r-off", SourceType: strPtr("t1"), WEF: &newer, Price: &p, Status: 0},
		{ID: "r-nodate", SourceType: strPtr("t1"), Price: &p, Status: domain.StatusActive},
	}
	require.NoError(t, conn.Table("milk_prices").Create(&rows).Error)

	repo := NewSQLRepository(conn, holder)

	current, err := repo.ListActive(ctx, domain.TableCurrent)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, "r-new", current[0].ID)
	assert.Equal(t, "s1", current[0].Supplier)
	assert.Equal(t, "", current[0].AreaOffice)
	assert.Equal(t, "r-old", current[1].ID)
	require.NotNil(t, current[1].Price)
	assert.True(t, p.Equal(*current[1].Price))

	archived, err := repo.ListActive(ctx, domain.TableArchived)
	require.NoError(t, err)
	assert.Empty(t, archived)

	_, err = repo.ListActive(ctx, domain.Table("future"))
	assert.Error(t, err)
}

func TestDecodeRule(t *testing.T) {
	sourceType := primitive.NewObjectID()
	office := primitive.NewObjectID()
	wef := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	raw, err := bson.Marshal(bson.M{
		"_id":              primitive.NewObjectID(),
		"source_type":      sourceType,
		"area_office":      office.Hex(),
		"supplier":         nil,
		"collection_point": "",
		"wef":              primitive.NewDateTimeFromTime(wef),
		"price":            30.0,
		"status":           int32(1),
	})
	require.NoError(t, err)

	rec := decodeRule(bson.Raw(raw))
	assert.Equal(t, sourceType.Hex(), rec.SourceType)
	assert.Equal(t, office.Hex(), rec.AreaOffice)
	assert.Equal(t, "", rec.Supplier)
	assert.Equal(t, "", rec.CollectionPoint)
	assert.Equal(t, domain.StatusActive, rec.Status)
	require.NotNil(t, rec.WEF)
	assert.True(t, wef.Equal(*rec.WEF))
	require.NotNil(t, rec.Price)
	assert.Equal(t, "30", rec.Price.String())
}
