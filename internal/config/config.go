// Package config provides configuration management for the auction indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Sync     SyncConfig
	Metadata MetadataConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// ServerConfig holds query API server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RequestsRPS  int // Per-client requests per second
	RequestBurst int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string // "postgres" or "memory"
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection URL used by the migration tool.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration. The event archive is
// optional and only wired when Enabled is set.
type ClickHouseConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// LedgerConfig holds the JSON-RPC endpoint and contract configuration
type LedgerConfig struct {
	RPCURL              string
	FactoryAddress      string
	FactoryABIPath      string // optional override of the embedded ABI
	AuctionABIPath      string
	DutchAuctionABIPath string
	MaxRPS              int // 0 disables client-side throttling
	RetryAttempts       int
	RetryDelay          time.Duration
	NativeSymbol        string
	NativeName          string
}

// SyncConfig holds sync worker configuration
type SyncConfig struct {
	PollInterval      time.Duration
	LookbackBlocks    uint64
	BackfillBatchSize int
	MaxBlockRange     uint64        // Maximum blocks per eth_getLogs request (0 = unbounded)
	BackfillInterval  time.Duration // 0 = backfill only at startup
}

// MetadataConfig holds metadata cache configuration
type MetadataConfig struct {
	TTL           time.Duration
	IPFSGateway   string
	LogoBaseURL   string
	HTTPTimeout   time.Duration
	MaxRPS        int
	BreakerFails  int
	BreakerPeriod time.Duration
}

// CacheConfig holds API response cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8000"),
			Host:         getEnv("HOST", "0.0.0.0"),
			RequestsRPS:  getEnvAsInt("API_REQUESTS_PER_SECOND", 20),
			RequestBurst: getEnvAsInt("API_REQUEST_BURST", 40),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "auctions"),
				User:           getEnv("POSTGRES_USER", "indexer"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:        getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:           getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:           getEnv("CLICKHOUSE_PORT", "9000"),
				Database:       getEnv("CLICKHOUSE_DB", "auctions"),
				User:           getEnv("CLICKHOUSE_USER", "default"),
				Password:       getEnv("CLICKHOUSE_PASSWORD", ""),
				MigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Ledger: LedgerConfig{
			RPCURL:              getEnv("RPC_URL", "http://localhost:8545"),
			FactoryAddress:      getEnv("FACTORY_CONTRACT_ADDRESS", "0x04b7ab1a9f98225f2d93c336a24c52e0fc718a49"),
			FactoryABIPath:      getEnv("FACTORY_ABI_PATH", ""),
			AuctionABIPath:      getEnv("AUCTION_ABI_PATH", ""),
			DutchAuctionABIPath: getEnv("DUTCH_AUCTION_ABI_PATH", ""),
			MaxRPS:              getEnvAsInt("LEDGER_MAX_RPS", 25),
			RetryAttempts:       getEnvAsInt("LEDGER_RETRY_ATTEMPTS", 2),
			RetryDelay:          getEnvAsDuration("LEDGER_RETRY_DELAY", time.Second),
			NativeSymbol:        getEnv("NATIVE_SYMBOL", "ETH"),
			NativeName:          getEnv("NATIVE_NAME", "Ether"),
		},
		Sync: SyncConfig{
			PollInterval:      getEnvAsDuration("SYNC_INTERVAL", 30*time.Second),
			LookbackBlocks:    uint64(getEnvAsInt("SYNC_LOOKBACK_BLOCKS", 1000)), // #nosec G115 - clamped below
			BackfillBatchSize: getEnvAsInt("SYNC_BACKFILL_BATCH_SIZE", 50),
			MaxBlockRange:     uint64(getEnvAsInt("SYNC_MAX_BLOCK_RANGE", 0)), // #nosec G115 - clamped below
			BackfillInterval:  getEnvAsDuration("SYNC_BACKFILL_INTERVAL", 0),
		},
		Metadata: MetadataConfig{
			TTL:           getEnvAsDuration("METADATA_TTL", 24*time.Hour),
			IPFSGateway:   getEnv("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			LogoBaseURL:   getEnv("TOKEN_LOGO_BASE_URL", "https://raw.githubusercontent.com/trustwallet/assets/master/blockchains/ethereum/assets"),
			HTTPTimeout:   getEnvAsDuration("METADATA_HTTP_TIMEOUT", 10*time.Second),
			MaxRPS:        getEnvAsInt("METADATA_MAX_RPS", 5),
			BreakerFails:  getEnvAsInt("METADATA_BREAKER_FAILURES", 5),
			BreakerPeriod: getEnvAsDuration("METADATA_BREAKER_COOLDOWN", time.Minute),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Negative env values wrap around when converted above
	if config.Sync.LookbackBlocks > 1<<40 {
		config.Sync.LookbackBlocks = 1000
	}
	if config.Sync.MaxBlockRange > 1<<40 {
		config.Sync.MaxBlockRange = 0
	}

	return config, nil
}

// Validate checks the settings the indexer cannot run without
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if !common.IsHexAddress(c.Ledger.FactoryAddress) {
		return fmt.Errorf("FACTORY_CONTRACT_ADDRESS is not a valid address: %q", c.Ledger.FactoryAddress)
	}
	if c.Ledger.RetryAttempts < 1 {
		return fmt.Errorf("LEDGER_RETRY_ATTEMPTS must be at least 1, got %d", c.Ledger.RetryAttempts)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %v", c.Sync.PollInterval)
	}
	if c.Sync.BackfillBatchSize <= 0 {
		return fmt.Errorf("SYNC_BACKFILL_BATCH_SIZE must be positive, got %d", c.Sync.BackfillBatchSize)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
