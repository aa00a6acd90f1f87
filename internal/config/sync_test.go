package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yml")
	content := `
sync:
  feeds: [purchases, purchases_archive]
  reprocessWindow: 72h
  priceWorkers: 2
  tables:
    archivedPrices: archieved_prices
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewSyncConfigHolder(Config{SyncConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, []string{"purchases", "purchases_archive"}, cfg.Feeds)
	assert.Equal(t, 72*time.Hour, cfg.ReprocessWindow)
	assert.Equal(t, 2, cfg.PriceWorkers)
	assert.Equal(t, "archieved_prices", cfg.Tables.ArchivedPrices)
	assert.Equal(t, "prices", cfg.Tables.CurrentPrices)
	assert.Equal(t, 500, cfg.LoadBatchSize)
}

func TestNewSyncConfigHolderDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewSyncConfigHolder(Config{SyncConfigPath: filepath.Join(dir, "missing.yml")})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, DefaultReprocessWindow, cfg.ReprocessWindow)
	assert.Equal(t, []string{"purchases"}, cfg.Feeds)
}

func TestSyncConfigEnvOverrides(t *testing.T) {
	t.Setenv("REPROCESS_WINDOW", "72h")
	t.Setenv("PRICE_WORKERS", "3")
	t.Setenv("PURCHASESYNC_SYNC_LOADBATCHSIZE", "50")

	dir := t.TempDir()
	holder, err := NewSyncConfigHolder(Config{SyncConfigPath: filepath.Join(dir, "missing.yml")})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 72*time.Hour, cfg.ReprocessWindow)
	assert.Equal(t, 3, cfg.PriceWorkers)
	assert.Equal(t, 50, cfg.LoadBatchSize)
	assert.Equal(t, "@every 15m", cfg.Schedule)
}

func TestValidateSyncConfig(t *testing.T) {
	base := DefaultSyncConfig()
	require.NoError(t, ValidateSyncConfig(base))

	badFeed := DefaultSyncConfig()
	badFeed.Feeds = []string{"purchases; drop table x"}
	assert.Error(t, ValidateSyncConfig(badFeed))

	noFeeds := DefaultSyncConfig()
	noFeeds.Feeds = nil
	assert.Error(t, ValidateSyncConfig(noFeeds))

	sameTables := DefaultSyncConfig()
	sameTables.Tables.ArchivedPrices = sameTables.Tables.CurrentPrices
	assert.Error(t, ValidateSyncConfig(sameTables))

	negative := DefaultSyncConfig()
	negative.ReprocessWindow = -time.Hour
	assert.Error(t, ValidateSyncConfig(negative))
}

func TestFactTable(t *testing.T) {
	assert.Equal(t, "fact_purchases", FactTable("purchases"))
	assert.True(t, DefaultSyncConfig().HasFeed("purchases"))
	assert.False(t, DefaultSyncConfig().HasFeed("sales"))
}
