package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"chain-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Evaluation  EvaluationConfig  `mapstructure:"evaluation"`
	PriceSource PriceSourceConfig `mapstructure:"price_source"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the persistence backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the two periodic loops.
type SchedulerConfig struct {
	Sampling        LoopConfig    `mapstructure:"sampling"`
	Evaluation      LoopConfig    `mapstructure:"evaluation"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// LoopConfig describes a single periodic task.
type LoopConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// EvaluationConfig holds the alert rule parameters.
type EvaluationConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Lookback     time.Duration `mapstructure:"lookback"`
	OpsEmail     string        `mapstructure:"ops_email"`
	Workers      int           `mapstructure:"workers"`
}

// PriceSourceConfig selects the market-data provider.
type PriceSourceConfig struct {
	Provider  string          `mapstructure:"provider"`
	Moralis   MoralisConfig   `mapstructure:"moralis"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
}

// MoralisConfig covers the Moralis token price API.
type MoralisConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ChainlinkConfig covers on-chain oracle reads.
type ChainlinkConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxStaleness   time.Duration `mapstructure:"max_staleness"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Channels []string       `mapstructure:"channels"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// SMTPConfig describes the mail relay.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelegramConfig mirrors alerts into an operator chat.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the operational HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

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

// envOnlyKeys have no default, so AutomaticEnv alone would never surface them on Unmarshal.
var envOnlyKeys = []string{
	"database.dsn",
	"evaluation.ops_email",
	"price_source.moralis.api_key",
	"price_source.chainlink.rpc_url",
	"alerting.smtp.host",
	"alerting.smtp.username",
	"alerting.smtp.password",
	"alerting.smtp.from",
	"alerting.telegram.bot_token",
	"alerting.telegram.chat_id",
	"logging.file.path",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 10)
	v.SetDefault("logging.file.max_age_days", 28)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.sampling.interval", "5m")
	v.SetDefault("scheduler.sampling.run_on_start", true)
	v.SetDefault("scheduler.evaluation.interval", "1h")
	v.SetDefault("scheduler.evaluation.run_on_start", false)
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.call_timeout", "15s")
	v.SetDefault("scheduler.advisory_lock_key", 7305001)

	v.SetDefault("evaluation.threshold_pct", 3.0)
	v.SetDefault("evaluation.lookback", "1h")
	v.SetDefault("evaluation.workers", 4)

	v.SetDefault("price_source.provider", "moralis")
	v.SetDefault("price_source.moralis.base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("price_source.moralis.request_timeout", "10s")
	v.SetDefault("price_source.moralis.user_agent", "pricewatch/1.0")
	v.SetDefault("price_source.chainlink.request_timeout", "10s")
	v.SetDefault("price_source.chainlink.max_staleness", "3h")

	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.smtp.port", 587)
	v.SetDefault("alerting.smtp.timeout", "15s")
	v.SetDefault("alerting.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")

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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Sampling.Interval <= 0 {
		return fmt.Errorf("scheduler.sampling.interval must be greater than zero")
	}
	if c.Scheduler.Evaluation.Interval <= 0 {
		return fmt.Errorf("scheduler.evaluation.interval must be greater than zero")
	}
	if c.Scheduler.CallTimeout <= 0 {
		return fmt.Errorf("scheduler.call_timeout must be greater than zero")
	}
	if c.Evaluation.ThresholdPct < 0 {
		return fmt.Errorf("evaluation.threshold_pct cannot be negative")
	}
	if c.Evaluation.Lookback <= 0 {
		return fmt.Errorf("evaluation.lookback must be greater than zero")
	}
	if c.Evaluation.Workers <= 0 {
		return fmt.Errorf("evaluation.workers must be greater than zero")
	}

	switch c.Database.Driver {
	case "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("database.driver must be one of postgres, mysql, memory (got %q)", c.Database.Driver)
	}

	switch c.PriceSource.Provider {
	case "moralis":
		if c.PriceSource.Moralis.BaseURL == "" {
			return fmt.Errorf("price_source.moralis.base_url is required")
		}
	case "chainlink":
		if c.PriceSource.Chainlink.RPCURL == "" {
			return fmt.Errorf("price_source.chainlink.rpc_url is required")
		}
	default:
		return fmt.Errorf("price_source.provider must be moralis or chainlink (got %q)", c.PriceSource.Provider)
	}

	for _, ch := range c.Alerting.Channels {
		switch strings.TrimSpace(ch) {
		case "log":
		case "smtp":
			if c.Alerting.SMTP.Host == "" {
				return fmt.Errorf("alerting.smtp.host is required when smtp is enabled")
			}
			if c.Alerting.SMTP.From == "" {
				return fmt.Errorf("alerting.smtp.from is required when smtp is enabled")
			}
		case "telegram":
			if c.Alerting.Telegram.BotToken == "" || c.Alerting.Telegram.ChatID == "" {
				return fmt.Errorf("alerting.telegram.bot_token and chat_id are required when telegram is enabled")
			}
		default:
			return fmt.Errorf("unknown alerting channel %q (valid: log, smtp, telegram)", ch)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
