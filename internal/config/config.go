package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	OpsAddr      string

	SyncConfigPath string

	SourceStore     string
	ReportingStore  string
	CheckpointStore string

	MongoURI          string
	MongoSourceDB     string
	MongoReportingDB  string
	MongoConnectRetry int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RunLockTTL    time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

const (
	StoreSQL   = "sql"
	StoreMongo = "mongo"
	StoreRedis = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "purchasesync"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		OTLPEndpoint:      strings.TrimSpace(getenv("OTLP_ENDPOINT", "")),
		OpsAddr:           getenv("OPS_ADDR", ":8081"),
		SyncConfigPath:    getenv("SYNC_CONFIG", "sync.yml"),
		SourceStore:       normalizeStore(getenv("SOURCE_STORE", StoreSQL), StoreSQL, StoreMongo),
		ReportingStore:    normalizeStore(getenv("REPORTING_STORE", StoreSQL), StoreSQL, StoreMongo),
		CheckpointStore:   normalizeStore(getenv("CHECKPOINT_STORE", StoreSQL), StoreSQL, StoreRedis, StoreMongo),
		MongoURI:          strings.TrimSpace(getenv("MONGO_URI", "")),
		MongoSourceDB:     getenv("MONGO_SOURCE_DB", "operations"),
		MongoReportingDB:  getenv("MONGO_REPORTING_DB", "reporting"),
		MongoConnectRetry: getenvInt("MONGO_CONNECT_RETRY", 5),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		RunLockTTL:        getenvDuration("RUN_LOCK_TTL", 30*time.Minute),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "reporting"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeStore(raw string, def string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return def
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
