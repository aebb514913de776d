package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BybitConfig    BybitConfig    `json:"bybit"`
	MexcConfig     MexcConfig     `json:"mexc"`
	SniperConfig   SniperConfig   `json:"sniper"`
	DefaultConfig  DefaultLoop    `json:"default_loop"`
	HedgingConfig  HedgingConfig  `json:"hedging"`
	RiskConfig     RiskConfig     `json:"risk"`
	AIConfig       AIConfig       `json:"ai"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
}

// BybitConfig holds Bybit credentials and endpoints. Bybit is the execution
// venue for the sniper loop and the source of private position pushes.
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	WSBaseURL string `json:"ws_base_url"`
	TestNet   bool   `json:"testnet"`
}

// MexcConfig holds MEXC credentials. MEXC serves market data and the
// default loop's spot/futures execution.
type MexcConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	SpotURL    string `json:"spot_url"`
	FuturesURL string `json:"futures_url"`
}

// SniperConfig holds the sniper loop schedule and evaluation settings
type SniperConfig struct {
	FixedRateMs  int      `json:"fixed_rate_ms"`
	Symbols      []string `json:"symbols"`
	Interval     string   `json:"interval"`
	Exchange     string   `json:"exchange"`
	Workers      int      `json:"workers"`
	DrainWaitSec int      `json:"drain_wait_sec"`
}

// DefaultLoop holds the slower default strategy loop settings
type DefaultLoop struct {
	FixedRateMs int               `json:"fixed_rate_ms"`
	Symbols     []string          `json:"symbols"`
	Interval    string            `json:"interval"`
	ExchangeMap map[string]string `json:"exchange_map"` // symbol -> exchange
}

// HedgingConfig holds hedge trigger thresholds
type HedgingConfig struct {
	Enabled              bool    `json:"enabled"`
	FixedRateMs          int     `json:"fixed_rate_ms"`
	LossThresholdPercent float64 `json:"loss_threshold_percent"`
	VolatilityATRPercent float64 `json:"volatility_atr_percent"`
	HedgeRatio           float64 `json:"hedge_ratio"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	ExpiryHours          int     `json:"expiry_hours"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"` // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

type RiskConfig struct {
	MaxRiskPerTrade     float64 `json:"max_risk_per_trade"`
	MaxDailyDrawdown    float64 `json:"max_daily_drawdown"`
	MaxOpenPositions    int     `json:"max_open_positions"`
	MaxPositionNotional float64 `json:"max_position_notional"`
	StopLossPercentMax  float64 `json:"stop_loss_percent_max"`
	ATRMultiplier       float64 `json:"atr_multiplier"`
}

// AIConfig holds the LLM oracle configuration
type AIConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_sec"`
	ScanTimeout int     `json:"scan_timeout_sec"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length"`
	AdminUser           string        `json:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash"`
}

// VaultConfig holds HashiCorp Vault configuration for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for position persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// Base config from file, environment overrides take precedence
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Bybit config
	cfg.BybitConfig.APIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.BybitConfig.APIKey)
	cfg.BybitConfig.SecretKey = getEnvOrDefault("BYBIT_SECRET_KEY", cfg.BybitConfig.SecretKey)
	cfg.BybitConfig.BaseURL = getEnvOrDefault("BYBIT_BASE_URL", cfg.BybitConfig.BaseURL)
	if cfg.BybitConfig.BaseURL == "" {
		cfg.BybitConfig.BaseURL = "https://api.bybit.com"
	}
	cfg.BybitConfig.WSBaseURL = getEnvOrDefault("BYBIT_WS_URL", cfg.BybitConfig.WSBaseURL)
	if cfg.BybitConfig.WSBaseURL == "" {
		cfg.BybitConfig.WSBaseURL = "wss://stream.bybit.com/v5/private"
	}
	cfg.BybitConfig.TestNet = getEnvOrDefault("BYBIT_TESTNET", "false") == "true"

	// MEXC config
	cfg.MexcConfig.APIKey = getEnvOrDefault("MEXC_API_KEY", cfg.MexcConfig.APIKey)
	cfg.MexcConfig.SecretKey = getEnvOrDefault("MEXC_SECRET_KEY", cfg.MexcConfig.SecretKey)
	cfg.MexcConfig.SpotURL = getEnvOrDefault("MEXC_SPOT_URL", cfg.MexcConfig.SpotURL)
	if cfg.MexcConfig.SpotURL == "" {
		cfg.MexcConfig.SpotURL = "https://api.mexc.com"
	}
	cfg.MexcConfig.FuturesURL = getEnvOrDefault("MEXC_FUTURES_URL", cfg.MexcConfig.FuturesURL)
	if cfg.MexcConfig.FuturesURL == "" {
		cfg.MexcConfig.FuturesURL = "https://contract.mexc.com"
	}

	// Sniper schedule
	cfg.SniperConfig.FixedRateMs = getEnvIntOrDefault("SNIPER_FIXED_RATE_MS", defaultInt(cfg.SniperConfig.FixedRateMs, 60000))
	cfg.SniperConfig.Interval = getEnvOrDefault("SNIPER_INTERVAL", defaultStr(cfg.SniperConfig.Interval, "1h"))
	cfg.SniperConfig.Exchange = getEnvOrDefault("SNIPER_EXCHANGE", defaultStr(cfg.SniperConfig.Exchange, "BYBIT"))
	cfg.SniperConfig.Workers = getEnvIntOrDefault("SNIPER_WORKERS", defaultInt(cfg.SniperConfig.Workers, 4))
	cfg.SniperConfig.DrainWaitSec = getEnvIntOrDefault("SNIPER_DRAIN_WAIT_SEC", defaultInt(cfg.SniperConfig.DrainWaitSec, 5))
	if symbols := os.Getenv("SNIPER_SYMBOLS"); symbols != "" {
		cfg.SniperConfig.Symbols = splitSymbols(symbols)
	}

	// Default loop
	cfg.DefaultConfig.FixedRateMs = getEnvIntOrDefault("DEFAULT_FIXED_RATE_MS", defaultInt(cfg.DefaultConfig.FixedRateMs, 300000))
	cfg.DefaultConfig.Interval = getEnvOrDefault("DEFAULT_INTERVAL", defaultStr(cfg.DefaultConfig.Interval, "1h"))
	if symbols := os.Getenv("DEFAULT_SYMBOLS"); symbols != "" {
		cfg.DefaultConfig.Symbols = splitSymbols(symbols)
	}

	// Hedging
	cfg.HedgingConfig.Enabled = getEnvOrDefault("HEDGING_ENABLED", "true") == "true"
	cfg.HedgingConfig.FixedRateMs = getEnvIntOrDefault("HEDGING_FIXED_RATE_MS", defaultInt(cfg.HedgingConfig.FixedRateMs, 60000))
	cfg.HedgingConfig.LossThresholdPercent = getEnvFloatOrDefault("HEDGING_LOSS_THRESHOLD", defaultFloat(cfg.HedgingConfig.LossThresholdPercent, -0.15))
	cfg.HedgingConfig.VolatilityATRPercent = getEnvFloatOrDefault("HEDGING_ATR_PERCENT", defaultFloat(cfg.HedgingConfig.VolatilityATRPercent, 0.04))
	cfg.HedgingConfig.HedgeRatio = getEnvFloatOrDefault("HEDGING_RATIO", defaultFloat(cfg.HedgingConfig.HedgeRatio, 0.5))
	cfg.HedgingConfig.CooldownMinutes = getEnvIntOrDefault("HEDGING_COOLDOWN_MINUTES", defaultInt(cfg.HedgingConfig.CooldownMinutes, 5))
	cfg.HedgingConfig.ExpiryHours = getEnvIntOrDefault("HEDGING_EXPIRY_HOURS", defaultInt(cfg.HedgingConfig.ExpiryHours, 4))

	// Risk
	cfg.RiskConfig.MaxRiskPerTrade = getEnvFloatOrDefault("RISK_MAX_PER_TRADE", defaultFloat(cfg.RiskConfig.MaxRiskPerTrade, 0.015))
	cfg.RiskConfig.MaxDailyDrawdown = getEnvFloatOrDefault("RISK_MAX_DAILY_DRAWDOWN", defaultFloat(cfg.RiskConfig.MaxDailyDrawdown, 0.05))
	cfg.RiskConfig.MaxOpenPositions = getEnvIntOrDefault("RISK_MAX_OPEN_POSITIONS", defaultInt(cfg.RiskConfig.MaxOpenPositions, 5))
	cfg.RiskConfig.StopLossPercentMax = getEnvFloatOrDefault("RISK_STOP_LOSS_MAX", defaultFloat(cfg.RiskConfig.StopLossPercentMax, 0.02))
	cfg.RiskConfig.ATRMultiplier = getEnvFloatOrDefault("RISK_ATR_MULTIPLIER", defaultFloat(cfg.RiskConfig.ATRMultiplier, 1.5))

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "true") == "true"
	cfg.AIConfig.Endpoint = getEnvOrDefault("AI_ENDPOINT", cfg.AIConfig.Endpoint)
	cfg.AIConfig.APIKey = getEnvOrDefault("AI_API_KEY", cfg.AIConfig.APIKey)
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", defaultStr(cfg.AIConfig.Model, "gpt-4o-mini"))
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", defaultInt(cfg.AIConfig.MaxTokens, 1024))
	cfg.AIConfig.TimeoutSec = getEnvIntOrDefault("AI_TIMEOUT_SEC", defaultInt(cfg.AIConfig.TimeoutSec, 30))
	cfg.AIConfig.ScanTimeout = getEnvIntOrDefault("AI_SCAN_TIMEOUT_SEC", defaultInt(cfg.AIConfig.ScanTimeout, 300))

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", defaultInt(cfg.AuthConfig.MinPasswordLength, 8))
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", defaultStr(cfg.AuthConfig.AdminUser, "admin"))
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "sniper-bot/exchange-keys"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "sniper_bot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))
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

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			symbols = append(symbols, strings.ToUpper(trimmed))
		}
	}
	return symbols
}

func defaultStr(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultFloat(current, fallback float64) float64 {
	if current != 0 {
		return current
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		BybitConfig: BybitConfig{
			APIKey:    "your_api_key_here",
			SecretKey: "your_secret_key_here",
			BaseURL:   "https://api.bybit.com",
			WSBaseURL: "wss://stream.bybit.com/v5/private",
			TestNet:   true,
		},
		SniperConfig: SniperConfig{
			FixedRateMs:  60000,
			Symbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			Interval:     "1h",
			Exchange:     "BYBIT",
			Workers:      4,
			DrainWaitSec: 5,
		},
		DefaultConfig: DefaultLoop{
			FixedRateMs: 300000,
			Symbols:     []string{"BTCUSDT", "ETHUSDT"},
			Interval:    "1h",
		},
		HedgingConfig: HedgingConfig{
			Enabled:              true,
			FixedRateMs:          60000,
			LossThresholdPercent: -0.15,
			VolatilityATRPercent: 0.04,
			HedgeRatio:           0.5,
			CooldownMinutes:      5,
			ExpiryHours:          4,
		},
		RiskConfig: RiskConfig{
			MaxRiskPerTrade:    0.015,
			MaxDailyDrawdown:   0.05,
			MaxOpenPositions:   5,
			StopLossPercentMax: 0.02,
			ATRMultiplier:      1.5,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
