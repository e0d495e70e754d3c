package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	StorageConfig   StorageConfig   `json:"storage"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	FirebaseConfig  FirebaseConfig  `json:"firebase"`
	RedisConfig     RedisConfig     `json:"redis"`
	CacheConfig     CacheConfig     `json:"cache"`
	VaultConfig     VaultConfig     `json:"vault"`
	KafkaConfig     KafkaConfig     `json:"kafka"`
	DashboardConfig DashboardConfig `json:"dashboard"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // comma separated
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
	RateLimit       int    `json:"rate_limit"`       // Requests per minute per user
}

type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length"`
	BcryptCost          int           `json:"bcrypt_cost"`
	Issuer              string        `json:"issuer"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `json:"backend"` // memory, postgres, firestore
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
}

type FirebaseConfig struct {
	ProjectID       string `json:"project_id"`
	CredentialsPath string `json:"credentials_path"`
	CredentialsJSON string `json:"credentials_json"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type CacheConfig struct {
	Enabled    bool          `json:"enabled"`
	TTL        time.Duration `json:"ttl"`
	LocalMaxMB int64         `json:"local_max_mb"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the service secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type DashboardConfig struct {
	Timezone            string    `json:"timezone"`
	PlatformStartDate   string    `json:"platform_start_date"` // YYYY-MM-DD
	DefaultTimeframe    string    `json:"default_timeframe"`
	IntensityThresholds []float64 `json:"intensity_thresholds"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "http://localhost:5173"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 15))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 15))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", orInt(cfg.ServerConfig.RateLimit, 120))

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.AuthConfig.AccessTokenDuration, 24*time.Hour))
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", orInt(cfg.AuthConfig.MinPasswordLength, 8))
	cfg.AuthConfig.BcryptCost = getEnvIntOrDefault("AUTH_BCRYPT_COST", orInt(cfg.AuthConfig.BcryptCost, 12))
	cfg.AuthConfig.Issuer = getEnvOrDefault("AUTH_ISSUER", orString(cfg.AuthConfig.Issuer, "trading-journal"))

	cfg.StorageConfig.Backend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", orString(cfg.StorageConfig.Backend, "memory")))

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "journal"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Database, "trading_journal"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(cfg.DatabaseConfig.MaxConns, 25))

	cfg.FirebaseConfig.ProjectID = getEnvOrDefault("FIREBASE_PROJECT_ID", cfg.FirebaseConfig.ProjectID)
	cfg.FirebaseConfig.CredentialsPath = getEnvOrDefault("FIREBASE_CREDENTIALS_PATH", cfg.FirebaseConfig.CredentialsPath)
	cfg.FirebaseConfig.CredentialsJSON = getEnvOrDefault("FIREBASE_CREDENTIALS_JSON", cfg.FirebaseConfig.CredentialsJSON)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))

	cfg.CacheConfig.Enabled = getEnvBoolOrDefault("CACHE_ENABLED", cfg.CacheConfig.Enabled || cfg.RedisConfig.Enabled)
	cfg.CacheConfig.TTL = getEnvDurationOrDefault("CACHE_TTL", orDuration(cfg.CacheConfig.TTL, time.Minute))
	cfg.CacheConfig.LocalMaxMB = int64(getEnvIntOrDefault("CACHE_LOCAL_MAX_MB", int(orInt64(cfg.CacheConfig.LocalMaxMB, 64))))

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "trading-journal/service"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.VaultConfig.CACert)

	cfg.KafkaConfig.Enabled = getEnvBoolOrDefault("KAFKA_ENABLED", cfg.KafkaConfig.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaConfig.Brokers = splitList(brokers)
	}
	if len(cfg.KafkaConfig.Brokers) == 0 {
		cfg.KafkaConfig.Brokers = []string{"localhost:9092"}
	}
	cfg.KafkaConfig.Topic = getEnvOrDefault("KAFKA_TOPIC", orString(cfg.KafkaConfig.Topic, "journal.record-changes"))

	cfg.DashboardConfig.Timezone = getEnvOrDefault("DASHBOARD_TIMEZONE", orString(cfg.DashboardConfig.Timezone, "UTC"))
	cfg.DashboardConfig.PlatformStartDate = getEnvOrDefault("DASHBOARD_PLATFORM_START", orString(cfg.DashboardConfig.PlatformStartDate, "2020-01-01"))
	cfg.DashboardConfig.DefaultTimeframe = getEnvOrDefault("DASHBOARD_DEFAULT_TIMEFRAME", orString(cfg.DashboardConfig.DefaultTimeframe, "1M"))
	if thresholds := os.Getenv("DASHBOARD_INTENSITY_THRESHOLDS"); thresholds != "" {
		cfg.DashboardConfig.IntensityThresholds = parseFloatList(thresholds)
	}
	if len(cfg.DashboardConfig.IntensityThresholds) == 0 {
		cfg.DashboardConfig.IntensityThresholds = []float64{0, 100, 500, 1000}
	}
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.StorageConfig.Backend {
	case "memory", "postgres", "firestore":
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageConfig.Backend)
	}
	if _, err := c.DashboardConfig.Location(); err != nil {
		return err
	}
	if _, err := c.DashboardConfig.PlatformStart(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone dashboards are bucketed in.
func (d DashboardConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid dashboard timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// PlatformStart parses the platform start date in the dashboard time zone.
func (d DashboardConfig) PlatformStart() (time.Time, error) {
	loc, err := d.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", d.PlatformStartDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid platform start date %q: %w", d.PlatformStartDate, err)
	}
	return t, nil
}

// ApplySecrets overlays secrets fetched from Vault. Unknown keys are ignored.
func (c *Config) ApplySecrets(secrets map[string]string) {
	if v := secrets["jwt_secret"]; v != "" {
		c.AuthConfig.JWTSecret = v
	}
	if v := secrets["db_password"]; v != "" {
		c.DatabaseConfig.Password = v
	}
	if v := secrets["redis_password"]; v != "" {
		c.RedisConfig.Password = v
	}
	if v := secrets["firebase_credentials_json"]; v != "" {
		c.FirebaseConfig.CredentialsJSON = v
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orInt64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloatList(s string) []float64 {
	var out []float64
	for _, part := range splitList(s) {
		if f, err := strconv.ParseFloat(part, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "http://localhost:5173",
			RateLimit:      120,
		},
		AuthConfig: AuthConfig{
			JWTSecret:           "change-me",
			AccessTokenDuration: 24 * time.Hour,
			MinPasswordLength:   8,
			BcryptCost:          12,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		StorageConfig: StorageConfig{Backend: "postgres"},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "journal",
			Database: "trading_journal",
			SSLMode:  "disable",
		},
		CacheConfig: CacheConfig{Enabled: true, TTL: time.Minute, LocalMaxMB: 64},
		KafkaConfig: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "journal.record-changes"},
		DashboardConfig: DashboardConfig{
			Timezone:            "UTC",
			PlatformStartDate:   "2020-01-01",
			DefaultTimeframe:    "1M",
			IntensityThresholds: []float64{0, 100, 500, 1000},
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
