package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"lp-pool-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Network    NetworkConfig    `mapstructure:"network"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	PriceCache PriceCacheConfig `mapstructure:"price_cache"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Pools      []Pool           `mapstructure:"pools"`
	Tokens     map[string]Token `mapstructure:"tokens"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	History    HistoryConfig    `mapstructure:"history"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// NetworkConfig covers on-chain data access.
type NetworkConfig struct {
	Name           string        `mapstructure:"name"`
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MonitoringConfig governs sampling cadence and alert thresholds.
type MonitoringConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	ThresholdPct       float64       `mapstructure:"threshold_pct"`
	WarningMultiplier  float64       `mapstructure:"warning_multiplier"`
	CriticalMultiplier float64       `mapstructure:"critical_multiplier"`
	AlignToInterval    bool          `mapstructure:"align_to_interval"`
	StartupDelay       time.Duration `mapstructure:"startup_delay"`
}

// PriceCacheConfig bounds price freshness.
type PriceCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// PricingConfig captures price-source connectivity.
type PricingConfig struct {
	DexScreenerURL string        `mapstructure:"dexscreener_url"`
	CoinGeckoURL   string        `mapstructure:"coingecko_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     uint          `mapstructure:"max_retries"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Pool describes one monitored liquidity pool.
type Pool struct {
	Name        string `mapstructure:"name"`
	Address     string `mapstructure:"address"`
	Type        string `mapstructure:"type"`
	TargetToken string `mapstructure:"target_token"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Token carries per-symbol price-source identifiers.
type Token struct {
	CoinGeckoID string `mapstructure:"coingecko_id"`
}

// AlertingConfig defines alert routing and rate limits.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	MaxMessageLen   int            `mapstructure:"max_message_len"`
	MinSendInterval time.Duration  `mapstructure:"min_send_interval"`
	RequestTimeout  time.Duration  `mapstructure:"request_timeout"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
	Webhook         WebhookConfig  `mapstructure:"webhook"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// WebhookConfig describes generic webhook delivery.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// HistoryConfig sets snapshot persistence behaviour.
type HistoryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Directory       string        `mapstructure:"directory"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LPWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lpwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("network.name", "bsc")
	v.SetDefault("network.request_timeout", "10s")

	v.SetDefault("monitoring.interval", "30s")
	v.SetDefault("monitoring.threshold_pct", 5.0)
	v.SetDefault("monitoring.warning_multiplier", 2.0)
	v.SetDefault("monitoring.critical_multiplier", 3.0)
	v.SetDefault("monitoring.align_to_interval", false)
	v.SetDefault("monitoring.startup_delay", "0s")

	v.SetDefault("price_cache.ttl", "5m")

	v.SetDefault("pricing.dexscreener_url", "https://api.dexscreener.com")
	v.SetDefault("pricing.coingecko_url", "https://api.coingecko.com")
	v.SetDefault("pricing.request_timeout", "15s")
	v.SetDefault("pricing.max_retries", 3)
	v.SetDefault("pricing.user_agent", "lpwatcher/1.0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_message_len", 4096)
	v.SetDefault("alerting.min_send_interval", "1s")
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.webhook.enabled", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.directory", "data")
	v.SetDefault("history.max_open_conns", 10)
	v.SetDefault("history.max_idle_conns", 5)
	v.SetDefault("history.conn_max_lifetime", "30m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be greater than zero")
	}
	if c.Monitoring.ThresholdPct < 0 {
		return fmt.Errorf("monitoring.threshold_pct cannot be negative")
	}
	if c.Monitoring.WarningMultiplier < 1 {
		return fmt.Errorf("monitoring.warning_multiplier must be at least 1")
	}
	if c.Monitoring.CriticalMultiplier < c.Monitoring.WarningMultiplier {
		return fmt.Errorf("monitoring.critical_multiplier must not be below warning_multiplier")
	}
	if c.PriceCache.TTL <= 0 {
		return fmt.Errorf("price_cache.ttl must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	for i, pool := range c.Pools {
		if pool.Address == "" {
			return fmt.Errorf("pools[%d].address is required", i)
		}
		if pool.Type != "v2" && pool.Type != "v3" {
			return fmt.Errorf("pools[%d].type must be v2 or v3, got %q", i, pool.Type)
		}
		if pool.TargetToken == "" {
			return fmt.Errorf("pools[%d].target_token is required", i)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url is required when webhook is enabled")
	}

	return nil
}

// EnabledPools returns the subset of pools with monitoring enabled.
func (c *Config) EnabledPools() []Pool {
	enabled := make([]Pool, 0, len(c.Pools))
	for _, pool := range c.Pools {
		if pool.Enabled {
			enabled = append(enabled, pool)
		}
	}
	return enabled
}

// CoinGeckoID returns the configured secondary-source identifier for a
// symbol, or empty when none is configured. Lookup is case-insensitive
// because viper lowercases map keys.
func (c *Config) CoinGeckoID(symbol string) string {
	if token, ok := c.Tokens[symbol]; ok {
		return token.CoinGeckoID
	}
	for key, token := range c.Tokens {
		if strings.EqualFold(key, symbol) {
			return token.CoinGeckoID
		}
	}
	return ""
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
