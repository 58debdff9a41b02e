package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger modes.
const (
	LedgerModeSimnet = "simnet"
	LedgerModeEVM    = "evm"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Ledger
	LedgerMode              string // "simnet" or "evm"
	EmptyPoolPolicy         string // "refund" or "lock"
	RPCURL                  string
	ChainID                 int64
	PredictionMarketAddress string
	OracleGatewayAddress    string
	OraclePrivateKey        string
	GasLimit                uint64 // 0 = estimate

	// Orchestrator
	SettlementSchedule   string
	ConfidenceThreshold  float64
	MinEvidenceSources   int
	MaxConcurrentMarkets int

	// Consensus
	OracleNodes     int
	ConsensusQuorum int // 0 = unanimous
	NodeCallTimeout time.Duration

	// Evidence
	NewsAPIKey       string
	NewsAPIURL       string
	CoinGeckoAPIURL  string // empty disables
	SourceMaxRetries int

	// Inference
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAISeed        int64 // 0 leaves sampling unseeded

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Locking
	LockMode      string // "local" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	// Gas breaker and wallet tracking
	BreakerEnabled         bool
	BreakerMinBalanceWei   *big.Int
	BreakerCheckInterval   time.Duration
	BreakerHysteresisRatio float64
	WalletPollInterval     time.Duration // 0 disables

	// Bettor tooling
	VaultPath string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		LedgerMode:              getEnvOrDefault("LEDGER_MODE", LedgerModeSimnet),
		EmptyPoolPolicy:         getEnvOrDefault("EMPTY_POOL_POLICY", "refund"),
		RPCURL:                  getEnvOrDefault("RPC_URL", "http://localhost:8545"),
		ChainID:                 int64(getIntOrDefault("CHAIN_ID", 421614)),
		PredictionMarketAddress: os.Getenv("PREDICTION_MARKET_ADDRESS"),
		OracleGatewayAddress:    os.Getenv("ORACLE_GATEWAY_ADDRESS"),
		OraclePrivateKey:        os.Getenv("ORACLE_PRIVATE_KEY"),
		GasLimit:                uint64(max(getIntOrDefault("GAS_LIMIT", 0), 0)),

		SettlementSchedule:   getEnvOrDefault("SETTLEMENT_SCHEDULE", "*/30 * * * * *"),
		ConfidenceThreshold:  getFloat64OrDefault("CONFIDENCE_THRESHOLD", 0.7),
		MinEvidenceSources:   getIntOrDefault("MIN_EVIDENCE_SOURCES", 1),
		MaxConcurrentMarkets: getIntOrDefault("MAX_CONCURRENT_MARKETS", 4),

		OracleNodes:     getIntOrDefault("ORACLE_NODES", 3),
		ConsensusQuorum: getIntOrDefault("CONSENSUS_QUORUM", 0),
		NodeCallTimeout: getDurationOrDefault("NODE_CALL_TIMEOUT", 20*time.Second),

		NewsAPIKey:       os.Getenv("NEWS_API_KEY"),
		NewsAPIURL:       getEnvOrDefault("NEWS_API_URL", "https://newsapi.org"),
		CoinGeckoAPIURL:  getEnvAllowEmpty("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
		SourceMaxRetries: getIntOrDefault("SOURCE_MAX_RETRIES", 2),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature: getFloat64OrDefault("OPENAI_TEMPERATURE", 0.3),
		OpenAISeed:        int64(getIntOrDefault("OPENAI_SEED", 1)),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "phantombet"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "phantombet"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "phantombet"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		LockMode:      getEnvOrDefault("LOCK_MODE", "local"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntOrDefault("REDIS_DB", 0),
		LockTTL:       getDurationOrDefault("LOCK_TTL", 5*time.Minute),

		BreakerEnabled:         getBoolOrDefault("BREAKER_ENABLED", false),
		BreakerMinBalanceWei:   getBigIntOrDefault("BREAKER_MIN_BALANCE_WEI", big.NewInt(1_000_000_000_000_000)),
		BreakerCheckInterval:   getDurationOrDefault("BREAKER_CHECK_INTERVAL", 5*time.Minute),
		BreakerHysteresisRatio: getFloat64OrDefault("BREAKER_HYSTERESIS_RATIO", 1.5),
		WalletPollInterval:     getDurationOrDefault("WALLET_POLL_INTERVAL", time.Minute),

		VaultPath: os.Getenv("VAULT_PATH"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}

	switch c.LedgerMode {
	case LedgerModeSimnet:
	case LedgerModeEVM:
		err := c.validateEVM()
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("LEDGER_MODE must be 'simnet' or 'evm', got %q", c.LedgerMode)
	}

	if c.EmptyPoolPolicy != "refund" && c.EmptyPoolPolicy != "lock" {
		return fmt.Errorf("EMPTY_POOL_POLICY must be 'refund' or 'lock', got %q", c.EmptyPoolPolicy)
	}

	if strings.TrimSpace(c.SettlementSchedule) == "" {
		return errors.New("SETTLEMENT_SCHEDULE cannot be empty")
	}

	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0, 1], got %f", c.ConfidenceThreshold)
	}

	if c.MinEvidenceSources < 0 {
		return fmt.Errorf("MIN_EVIDENCE_SOURCES cannot be negative, got %d", c.MinEvidenceSources)
	}

	if c.MaxConcurrentMarkets < 1 {
		return fmt.Errorf("MAX_CONCURRENT_MARKETS must be at least 1, got %d", c.MaxConcurrentMarkets)
	}

	if c.OracleNodes < 1 {
		return fmt.Errorf("ORACLE_NODES must be at least 1, got %d", c.OracleNodes)
	}

	if c.ConsensusQuorum != 0 && (c.ConsensusQuorum*2 <= c.OracleNodes || c.ConsensusQuorum > c.OracleNodes) {
		return fmt.Errorf("CONSENSUS_QUORUM must be 0 or a strict majority of %d nodes, got %d",
			c.OracleNodes, c.ConsensusQuorum)
	}

	if c.NodeCallTimeout <= 0 {
		return errors.New("NODE_CALL_TIMEOUT must be positive")
	}

	if c.SourceMaxRetries < 0 {
		return fmt.Errorf("SOURCE_MAX_RETRIES cannot be negative, got %d", c.SourceMaxRetries)
	}

	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be in [0,2], got %v", c.OpenAITemperature)
	}

	if c.StorageMode != "console" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}

	switch c.LockMode {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when LOCK_MODE=redis")
		}
	default:
		return fmt.Errorf("LOCK_MODE must be 'local' or 'redis', got %q", c.LockMode)
	}

	if c.LockTTL <= 0 {
		return errors.New("LOCK_TTL must be positive")
	}

	if c.BreakerEnabled {
		if c.BreakerMinBalanceWei == nil || c.BreakerMinBalanceWei.Sign() <= 0 {
			return errors.New("BREAKER_MIN_BALANCE_WEI must be positive")
		}
		if c.BreakerCheckInterval <= 0 {
			return errors.New("BREAKER_CHECK_INTERVAL must be positive")
		}
		if c.BreakerHysteresisRatio < 1.0 {
			return fmt.Errorf("BREAKER_HYSTERESIS_RATIO must be >= 1.0, got %f", c.BreakerHysteresisRatio)
		}
	}

	return nil
}

func (c *Config) validateEVM() error {
	if c.RPCURL == "" {
		return errors.New("RPC_URL is required when LEDGER_MODE=evm")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive, got %d", c.ChainID)
	}
	if !common.IsHexAddress(c.PredictionMarketAddress) {
		return fmt.Errorf("PREDICTION_MARKET_ADDRESS must be a hex address, got %q", c.PredictionMarketAddress)
	}
	if !common.IsHexAddress(c.OracleGatewayAddress) {
		return fmt.Errorf("ORACLE_GATEWAY_ADDRESS must be a hex address, got %q", c.OracleGatewayAddress)
	}
	if c.OraclePrivateKey == "" {
		return errors.New("ORACLE_PRIVATE_KEY is required when LEDGER_MODE=evm")
	}
	return nil
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL)
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAllowEmpty returns defaultValue only when key is unset, so an
// explicitly empty value can disable a feature.
func getEnvAllowEmpty(key string, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getBigIntOrDefault(key string, defaultValue *big.Int) *big.Int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return defaultValue
	}

	return n
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
