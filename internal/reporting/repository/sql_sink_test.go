package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/ident"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSink(t *testing.T, batch int) (*gorm.DB, *sqlSink) {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	cfg := config.DefaultSyncConfig()
	cfg.LoadBatchSize = batch
	return conn, NewSQLSink(conn, zap.NewNop(), config.NewStaticSyncConfigHolder(cfg)).(*sqlSink)
}

func fact(id, checksum string, amount string) *purchasedomain.EnrichedPurchase {
	p := decimal.RequireFromString(amount)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &purchasedomain.EnrichedPurchase{
		ID:          ident.MustParse(id),
		CreatedAt:   &created,
		Price:       &p,
		PriceSource: "current",
		RowChecksum: checksum,
		SyncedAt:    created,
	}
}

func TestSQLSinkUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, sink := newSink(t, 2)

	batch := []*purchasedomain.EnrichedPurchase{
		fact("65a1f0c2e4b0a1b2c3d4f001", "a", "30"),
		fact("65a1f0c2e4b0a1b2c3d4f002", "b", "31"),
		fact("65a1f0c2e4b0a1b2c3d4f003", "c", "32"),
	}

	res, err := sink.Upsert(ctx, "purchases", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 0, res.Matched)

	res, err = sink.Upsert(ctx, "purchases", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 3, res.Unchanged)
	assert.Equal(t, 0, res.Inserted+res.Updated)

	changed := fact("65a1f0c2e4b0a1b2c3d4f002", "b2", "35")
	res, err = sink.Upsert(ctx, "purchases", []*purchasedomain.EnrichedPurchase{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	var count int64
	require.NoError(t, conn.Table("fact_purchases").Count(&count).Error)
	assert.Equal(t, int64(3), count)

	var stored purchasedomain.EnrichedPurchase
	require.NoError(t, conn.Table("fact_purchases").Where("id = ?", changed.ID.Hex()).First(&stored).Error)
	assert.Equal(t, "35", stored.Price.String())
	assert.Equal(t, "b2", stored.RowChecksum)
}

func TestSQLSinkCreatesOneTablePerFeed(t *testing.T) {
	ctx := context.Background()
	conn, sink := newSink(t, 10)

	_, err := sink.Upsert(ctx, "purchases", []*purchasedomain.EnrichedPurchase{fact("65a1f0c2e4b0a1b2c3d4f001", "a", "30")})
	require.NoError(t, err)
	_, err = sink.Upsert(ctx, "collections", []*purchasedomain.EnrichedPurchase{fact("65a1f0c2e4b0a1b2c3d4f001", "a", "30")})
	require.NoError(t, err)

	assert.True(t, conn.Migrator().HasTable("fact_purchases"))
	assert.True(t, conn.Migrator().HasTable("fact_collections"))
	assert.True(t, conn.Table("fact_collections").Migrator().HasIndex(&purchasedomain.EnrichedPurchase{}, "idx_fact_collections_created_at"))
}

func TestSQLSinkIsolatesFailingRows(t *testing.T) {
	ctx := context.Background()
	conn, sink := newSink(t, 10)

	require.NoError(t, sink.ensureTable(ctx, "fact_purchases"))
	require.NoError(t, conn.Exec(`CREATE TRIGGER reject_poison BEFORE INSERT ON fact_purchases
		WHEN NEW.price_source = 'poison'
		BEGIN SELECT RAISE(ABORT, 'poisoned row'); END;`).Error)

	poison := fact("65a1f0c2e4b0a1b2c3d4f002", "b", "31")
	poison.PriceSource = "poison"

	res, err := sink.Upsert(ctx, "purchases", []*purchasedomain.EnrichedPurchase{
		fact("65a1f0c2e4b0a1b2c3d4f001", "a", "30"),
		poison,
		fact("65a1f0c2e4b0a1b2c3d4f003", "c", "32"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, poison.ID.Hex(), res.Errors[0].ID)

	var count int64
	require.NoError(t, conn.Table("fact_purchases").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestToDocumentUsesNativeTypes(t *testing.T) {
	rec := fact("65a1f0c2e4b0a1b2c3d4f001", "a", "32.5")
	rec.SupplierID = ident.Ptr("65a1f0c2e4b0a1b2c3d4c001")
	rec.Tests = []byte(`{"fat": 4.2}`)

	doc := ToDocument(rec)
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	price := bson.Raw(raw).Lookup("price")
	assert.Equal(t, bson.TypeDecimal128, price.Type)
	assert.Equal(t, "32.5", price.Decimal128().String())

	supplier := bson.Raw(raw).Lookup("supplier_id")
	assert.Equal(t, bson.TypeObjectID, supplier.Type)
	assert.Equal(t, primitive.ObjectID(*rec.SupplierID), supplier.ObjectID())

	assert.Equal(t, bson.TypeNull, bson.Raw(raw).Lookup("plant_id").Type)
	assert.Equal(t, bson.TypeNull, bson.Raw(raw).Lookup("price_reason").Type)
	assert.Equal(t, bson.TypeEmbeddedDocument, bson.Raw(raw).Lookup("tests").Type)
}
