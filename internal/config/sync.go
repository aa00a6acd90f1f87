package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SyncConfig is the hot-reloadable part of the configuration, read from sync.yml.
type SyncConfig struct {
	Feeds            []string      `mapstructure:"feeds"`
	ReprocessWindow  time.Duration `mapstructure:"reprocessWindow"`
	Schedule         string        `mapstructure:"schedule"`
	RunTimeout       time.Duration `mapstructure:"runTimeout"`
	PriceWorkers     int           `mapstructure:"priceWorkers"`
	LoadBatchSize    int           `mapstructure:"loadBatchSize"`
	ExtractBatchSize int           `mapstructure:"extractBatchSize"`
	Tables           TableConfig   `mapstructure:"tables"`
}

// TableConfig names the collections or tables each repository reads.
type TableConfig struct {
	Suppliers        string `mapstructure:"suppliers"`
	CollectionPoints string `mapstructure:"collectionPoints"`
	AreaOffices      string `mapstructure:"areaOffices"`
	SupplierTypes    string `mapstructure:"supplierTypes"`
	CurrentPrices    string `mapstructure:"currentPrices"`
	ArchivedPrices   string `mapstructure:"archivedPrices"`
	Checkpoints      string `mapstructure:"checkpoints"`
	LegacyFacts      string `mapstructure:"legacyFacts"`
}

const DefaultReprocessWindow = 12 * 24 * time.Hour

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Feeds:            []string{"purchases"},
		ReprocessWindow:  DefaultReprocessWindow,
		Schedule:         "@every 15m",
		RunTimeout:       30 * time.Minute,
		PriceWorkers:     8,
		LoadBatchSize:    500,
		ExtractBatchSize: 10000,
		Tables: TableConfig{
			Suppliers:        "suppliers",
			CollectionPoints: "collection_points",
			AreaOffices:      "area_offices",
			SupplierTypes:    "supplier_types",
			CurrentPrices:    "prices",
			ArchivedPrices:   "archived_prices",
			Checkpoints:      "etl_metadata",
			LegacyFacts:      "milk_purchase_reporting_facts",
		},
	}
}

// FactTable is the reporting table or collection for a feed.
func FactTable(feed string) string {
	return "fact_" + feed
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewStaticSyncConfigHolder wraps a fixed configuration.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSyncConfigHolder(cfg Config) (*SyncConfigHolder, error) {
	log := zap.L().Named("config.sync")
	v := viper.New()

	name := strings.TrimSuffix(filepath.Base(cfg.SyncConfigPath), filepath.Ext(cfg.SyncConfigPath))
	if name == "" || name == "." {
		name = "sync"
	}
	v.SetConfigName(name)
	v.SetConfigType("yml")
	v.AddConfigPath(filepath.Dir(cfg.SyncConfigPath))
	v.AddConfigPath("/etc/purchasesync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PURCHASESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindSyncEnv(v); err != nil {
		return nil, err
	}

	setSyncDefaults(v, DefaultSyncConfig())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		log.Info("sync config file not found, using defaults")
	}

	current, err := decodeSyncConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSyncConfigHolder(current)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSyncConfig(v)
		if err != nil {
			log.Warn("sync config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("sync config reloaded", zap.String("file", e.Name), zap.Strings("feeds", updated.Feeds))
	})

	return holder, nil
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func setSyncDefaults(v *viper.Viper, d SyncConfig) {
	v.SetDefault("sync.feeds", d.Feeds)
	v.SetDefault("sync.reprocessWindow", d.ReprocessWindow)
	v.SetDefault("sync.schedule", d.Schedule)
	v.SetDefault("sync.runTimeout", d.RunTimeout)
	v.SetDefault("sync.priceWorkers", d.PriceWorkers)
	v.SetDefault("sync.loadBatchSize", d.LoadBatchSize)
	v.SetDefault("sync.extractBatchSize", d.ExtractBatchSize)
	v.SetDefault("sync.tables.suppliers", d.Tables.Suppliers)
	v.SetDefault("sync.tables.collectionPoints", d.Tables.CollectionPoints)
	v.SetDefault("sync.tables.areaOffices", d.Tables.AreaOffices)
	v.SetDefault("sync.tables.supplierTypes", d.Tables.SupplierTypes)
	v.SetDefault("sync.tables.currentPrices", d.Tables.CurrentPrices)
	v.SetDefault("sync.tables.archivedPrices", d.Tables.ArchivedPrices)
	v.SetDefault("sync.tables.checkpoints", d.Tables.Checkpoints)
	v.SetDefault("sync.tables.legacyFacts", d.Tables.LegacyFacts)
}

// syncEnvAliases are short environment names accepted next to the
// PURCHASESYNC_SYNC_* keys derived from the file layout.
var syncEnvAliases = map[string]string{
	"sync.reprocessWindow": "REPROCESS_WINDOW",
	"sync.priceWorkers":    "PRICE_WORKERS",
	"sync.schedule":        "SYNC_SCHEDULE",
	"sync.runTimeout":      "RUN_TIMEOUT",
}

func bindSyncEnv(v *viper.Viper) error {
	for key, alias := range syncEnvAliases {
		prefixed := "PURCHASESYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func decodeSyncConfig(v *viper.Viper) (SyncConfig, error) {
	var root struct {
		Sync SyncConfig `mapstructure:"sync"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return SyncConfig{}, err
	}
	if err := ValidateSyncConfig(root.Sync); err != nil {
		return SyncConfig{}, err
	}
	return root.Sync, nil
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateSyncConfig rejects configurations the engine cannot run with. Feed
// and table names end up in SQL identifiers, so they are restricted to
// lowercase snake case.
func ValidateSyncConfig(cfg SyncConfig) error {
	if len(cfg.Feeds) == 0 {
		return errors.New("sync.feeds cannot be empty")
	}
	for _, feed := range cfg.Feeds {
		if !identifierPattern.MatchString(feed) {
			return fmt.Errorf("sync.feeds: invalid feed name %q", feed)
		}
	}
	if cfg.ReprocessWindow < 0 {
		return errors.New("sync.reprocessWindow cannot be negative")
	}
	if cfg.PriceWorkers < 1 {
		return errors.New("sync.priceWorkers must be at least 1")
	}
	if cfg.LoadBatchSize < 1 {
		return errors.New("sync.loadBatchSize must be at least 1")
	}
	tables := map[string]string{
		"suppliers":        cfg.Tables.Suppliers,
		"collectionPoints": cfg.Tables.CollectionPoints,
		"areaOffices":      cfg.Tables.AreaOffices,
		"supplierTypes":    cfg.Tables.SupplierTypes,
		"currentPrices":    cfg.Tables.CurrentPrices,
		"archivedPrices":   cfg.Tables.ArchivedPrices,
		"checkpoints":      cfg.Tables.Checkpoints,
		"legacyFacts":      cfg.Tables.LegacyFacts,
	}
	for key, name := range tables {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("sync.tables.%s: invalid table name %q", key, name)
		}
	}
	if cfg.Tables.CurrentPrices == cfg.Tables.ArchivedPrices {
		return errors.New("sync.tables: current and archived prices must be distinct")
	}
	return nil
}

// HasFeed reports whether feed is configured.
func (c SyncConfig) HasFeed(feed string) bool {
	for _, f := range c.Feeds {
		if f == feed {
			return true
		}
	}
	return false
}
