package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Chain        ChainConfig
	ContentStore ContentStoreConfig
	SMTP         SMTPConfig
	Batch        BatchConfig
	Verification VerificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ChainConfig holds the registry contract endpoint and signing identity.
type ChainConfig struct {
	RPCURL              string
	PrivateKey          string
	ContractAddress     string
	ChainID             int64
	GasLimit            uint64
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// ContentStoreConfig configures content-addressed storage.
type ContentStoreConfig struct {
	IPFSAPIURL string
	GatewayURL string
}

// SMTPConfig configures certificate delivery emails. Empty host disables notification.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BatchConfig tunes the bulk issuance pipeline.
type BatchConfig struct {
	StagingDir        string
	ArtifactDir       string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	JobTTL            time.Duration
	EvictionInterval  time.Duration
	WorkerConcurrency int
	MaxUploadBytes    int64
}

// VerificationConfig governs the public verification surface.
type VerificationConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Chain = ChainConfig{
		RPCURL:              v.GetString("CHAIN_RPC_URL"),
		PrivateKey:          v.GetString("CHAIN_PRIVATE_KEY"),
		ContractAddress:     v.GetString("CHAIN_CONTRACT_ADDRESS"),
		ChainID:             v.GetInt64("CHAIN_ID"),
		GasLimit:            uint64(v.GetInt64("CHAIN_GAS_LIMIT")),
		ConfirmTimeout:      parseDuration(v.GetString("CHAIN_CONFIRM_TIMEOUT"), 2*time.Minute),
		ConfirmPollInterval: parseDuration(v.GetString("CHAIN_CONFIRM_POLL_INTERVAL"), 2*time.Second),
	}

	cfg.ContentStore = ContentStoreConfig{
		IPFSAPIURL: v.GetString("IPFS_API_URL"),
		GatewayURL: v.GetString("IPFS_GATEWAY_URL"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
	}

	maxUpload := v.GetInt64("BATCH_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Batch = BatchConfig{
		StagingDir:        v.GetString("BATCH_STAGING_DIR"),
		ArtifactDir:       v.GetString("BATCH_ARTIFACT_DIR"),
		SignedURLSecret:   v.GetString("BATCH_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("BATCH_SIGNED_URL_TTL"), 24*time.Hour),
		JobTTL:            parseDuration(v.GetString("BATCH_JOB_TTL"), 24*time.Hour),
		EvictionInterval:  parseDuration(v.GetString("BATCH_EVICTION_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("BATCH_WORKER_CONCURRENCY"),
		MaxUploadBytes:    maxUpload,
	}

	cfg.Verification = VerificationConfig{
		BaseURL:  v.GetString("VERIFICATION_BASE_URL"),
		CacheTTL: parseDuration(v.GetString("VERIFICATION_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "certchain")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "certchain-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHAIN_RPC_URL", "http://localhost:8545")
	v.SetDefault("CHAIN_PRIVATE_KEY", "")
	v.SetDefault("CHAIN_CONTRACT_ADDRESS", "")
	v.SetDefault("CHAIN_ID", 1337)
	v.SetDefault("CHAIN_GAS_LIMIT", 0)
	v.SetDefault("CHAIN_CONFIRM_TIMEOUT", "2m")
	v.SetDefault("CHAIN_CONFIRM_POLL_INTERVAL", "2s")

	v.SetDefault("IPFS_API_URL", "")
	v.SetDefault("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "certificates@certchain.local")

	v.SetDefault("BATCH_STAGING_DIR", "./staging")
	v.SetDefault("BATCH_ARTIFACT_DIR", "./artifacts")
	v.SetDefault("BATCH_SIGNED_URL_SECRET", "dev_artifacts_secret")
	v.SetDefault("BATCH_SIGNED_URL_TTL", "24h")
	v.SetDefault("BATCH_JOB_TTL", "24h")
	v.SetDefault("BATCH_EVICTION_INTERVAL", "1h")
	v.SetDefault("BATCH_WORKER_CONCURRENCY", 1)
	v.SetDefault("BATCH_MAX_UPLOAD_BYTES", 5*1024*1024)

	v.SetDefault("VERIFICATION_BASE_URL", "http://localhost:8080")
	v.SetDefault("VERIFICATION_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
