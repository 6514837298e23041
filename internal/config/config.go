package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smartbudget/internal/analytics"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SMARTBUDGET_PORT.
const EnvPrefix = "SMARTBUDGET"

type Config struct {
	// HTTP Server
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// TrustedProxies is a comma-separated CIDR list whose forwarding
	// headers are honoured, in addition to loopback and private ranges.
	TrustedProxies string `mapstructure:"trusted_proxies"`

	// Backend selection
	DataBackend  string `mapstructure:"data_backend"`
	SQLiteDBPath string `mapstructure:"sqlite_db_path"`
	SeedDir      string `mapstructure:"seed_dir"`

	// AMQP
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Evaluation
	StoreTimeout         time.Duration `mapstructure:"store_timeout"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	SweepConcurrency     int           `mapstructure:"sweep_concurrency"`
	AnomalyLookback      time.Duration `mapstructure:"anomaly_lookback"`
	DefaultMonthlyBudget string        `mapstructure:"default_monthly_budget"`
	StatisticsCacheTTL   time.Duration `mapstructure:"statistics_cache_ttl"`
	StatisticsCacheSize  int           `mapstructure:"statistics_cache_size"`

	// Thresholds
	OverrunPercent      float64 `mapstructure:"overrun_percent"`
	MediumPercent       float64 `mapstructure:"medium_percent"`
	HighPercent         float64 `mapstructure:"high_percent"`
	ZScoreThreshold     float64 `mapstructure:"zscore_threshold"`
	ZScoreHigh          float64 `mapstructure:"zscore_high"`
	MinSamples          int     `mapstructure:"min_samples"`
	CategoryWarnPercent float64 `mapstructure:"category_warn_percent"`
	CategoryHighPercent float64 `mapstructure:"category_high_percent"`
	ShiftMinHistory     int     `mapstructure:"shift_min_history"`
	ShiftHighPercent    float64 `mapstructure:"shift_high_percent"`

	// Google Sheets alert log
	GoogleSpreadsheetID      string `mapstructure:"google_spreadsheet_id"`
	GoogleAlertSheet         string `mapstructure:"google_alert_sheet"`
	GoogleServiceAccountFile string `mapstructure:"google_service_account_file"`
	GoogleServiceAccountJSON string `mapstructure:"google_service_account_json"`
	GoogleOAuthClientFile    string `mapstructure:"google_oauth_client_file"`
	GoogleOAuthTokenFile     string `mapstructure:"google_oauth_token_file"`
}

func setDefaults(v *viper.Viper) {
	th := analytics.DefaultThresholds()

	v.SetDefault("port", "8081")
	v.SetDefault("log_level", "info")
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("data_backend", "memory")
	v.SetDefault("sqlite_db_path", "./data/smartbudget.db")
	v.SetDefault("seed_dir", "./data")

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "smartbudget")
	v.SetDefault("amqp_queue", "evaluate_user")

	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("sweep_interval", 15*time.Minute)
	v.SetDefault("sweep_concurrency", 4)
	v.SetDefault("anomaly_lookback", 90*24*time.Hour)
	v.SetDefault("default_monthly_budget", "0")
	v.SetDefault("statistics_cache_ttl", 5*time.Minute)
	v.SetDefault("statistics_cache_size", 500)

	v.SetDefault("overrun_percent", th.OverrunPercent)
	v.SetDefault("medium_percent", th.MediumPercent)
	v.SetDefault("high_percent", th.HighPercent)
	v.SetDefault("zscore_threshold", th.ZScore)
	v.SetDefault("zscore_high", th.HighZScore)
	v.SetDefault("min_samples", th.MinSamples)
	v.SetDefault("category_warn_percent", th.CategoryWarnPercent)
	v.SetDefault("category_high_percent", th.CategoryHighPercent)
	v.SetDefault("shift_min_history", th.ShiftMinHistory)
	v.SetDefault("shift_high_percent", th.ShiftHighPercent)

	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_alert_sheet", "Alerts")
	v.SetDefault("google_service_account_file", "")
	v.SetDefault("google_service_account_json", "")
	v.SetDefault("google_oauth_client_file", "")
	v.SetDefault("google_oauth_token_file", "")
}

// Load reads .env (if present), an optional config file named by
// SMARTBUDGET_CONFIG, and SMARTBUDGET_* environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Thresholds returns the evaluator policy.
func (c *Config) Thresholds() analytics.Thresholds {
	return analytics.Thresholds{
		OverrunPercent:      c.OverrunPercent,
		MediumPercent:       c.MediumPercent,
		HighPercent:         c.HighPercent,
		ZScore:              c.ZScoreThreshold,
		HighZScore:          c.ZScoreHigh,
		MinSamples:          c.MinSamples,
		CategoryWarnPercent: c.CategoryWarnPercent,
		CategoryHighPercent: c.CategoryHighPercent,
		ShiftMinHistory:     c.ShiftMinHistory,
		ShiftHighPercent:    c.ShiftHighPercent,
	}
}

// DefaultBudget is applied to users without a budget profile. Validate
// guarantees it parses.
func (c *Config) DefaultBudget() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.DefaultMonthlyBudget))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// TrustedProxyCIDRs splits TrustedProxies, dropping blanks.
func (c *Config) TrustedProxyCIDRs() []string {
	var cidrs []string
	for _, part := range strings.Split(c.TrustedProxies, ",") {
		if part = strings.TrimSpace(part); part != "" {
			cidrs = append(cidrs, part)
		}
	}
	return cidrs
}

// AlertLogEnabled reports whether alerts are exported to Google Sheets.
func (c *Config) AlertLogEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	for _, cidr := range c.TrustedProxyCIDRs() {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 10.0.0.0/8", cidr))
		}
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.StoreTimeout < 100*time.Millisecond || c.StoreTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be between 100ms and 1m", c.StoreTimeout))
	}
	if c.SweepInterval < time.Minute || c.SweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be between 1 minute and 24 hours", c.SweepInterval))
	}
	if c.SweepConcurrency < 1 || c.SweepConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be between 1 and 64", c.SweepConcurrency))
	}
	if c.AnomalyLookback < 0 {
		errors = append(errors, fmt.Sprintf("invalid anomaly lookback %v: must not be negative", c.AnomalyLookback))
	}
	if c.StatisticsCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid statistics cache size %d: must be at least 1", c.StatisticsCacheSize))
	}

	if d, err := decimal.NewFromString(strings.TrimSpace(c.DefaultMonthlyBudget)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default monthly budget '%s': must be a number", c.DefaultMonthlyBudget))
	} else if d.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid default monthly budget %s: must not be negative", d))
	}

	if err := c.Thresholds().Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.AlertLogEnabled() {
		if c.GoogleAlertSheet == "" {
			errors = append(errors, "Google alert sheet name is required when a spreadsheet ID is set")
		}
		hasServiceAccount := c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != ""
		hasOAuth := c.GoogleOAuthClientFile != "" && c.GoogleOAuthTokenFile != ""
		if !hasServiceAccount && !hasOAuth {
			errors = append(errors, "Google credentials missing: set a service account (file or JSON) or both OAuth client and token files")
		}
		for _, f := range []string{c.GoogleServiceAccountFile, c.GoogleOAuthClientFile, c.GoogleOAuthTokenFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", f))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
