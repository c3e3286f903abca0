// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
	"github.com/JakeFAU/catalog-crawler/internal/store"
)

// Output drivers.
const (
	DriverCSV      = "csv"
	DriverPostgres = "postgres"
)

// Config captures every crawler knob loaded via Viper.
type Config struct {
	OutputDirectory   string            `mapstructure:"output_directory"`
	DelayRangeSeconds DelayRange        `mapstructure:"delay_range_seconds"`
	Categories        []int             `mapstructure:"categories"`
	MaxRetries        int               `mapstructure:"max_retries"`
	Restart           RestartConfig     `mapstructure:"restart"`
	Headers           map[string]string `mapstructure:"headers"`
	LogsDirectory     string            `mapstructure:"logs_directory"`
	CategoriesFile    string            `mapstructure:"categories_file"`
	BaseURL           string            `mapstructure:"base_url"`
	RequestTimeout    time.Duration     `mapstructure:"request_timeout"`
	Output            OutputConfig      `mapstructure:"output"`
	Logging           LoggingConfig     `mapstructure:"logging"`
	Metrics           MetricsConfig     `mapstructure:"metrics"`
}

// DelayRange is the pre-request delay bound in whole seconds. The literal 0
// in a config file decodes to the zero range.
type DelayRange struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// RestartConfig bounds whole-run restarts.
type RestartConfig struct {
	RestartCount    int `mapstructure:"restart_count"`
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// OutputConfig selects where records go.
type OutputConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from a .env file, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		delayRangeHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToWeakSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_directory", "out")
	v.SetDefault("delay_range_seconds", 0)
	v.SetDefault("categories", []int{})
	v.SetDefault("max_retries", 3)
	v.SetDefault("restart.restart_count", 3)
	v.SetDefault("restart.interval_minutes", 1)
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("logs_directory", "logs")
	v.SetDefault("categories_file", "categories.csv")
	v.SetDefault("base_url", "https://zootovary.ru")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("output.driver", DriverCSV)
	v.SetDefault("output.dsn", "")
	v.SetDefault("output.table", "products")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
}

// delayRangeHook accepts a bare number for delay_range_seconds. Only zero
// is meaningful there; any other number pins min and max to that value.
func delayRangeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(DelayRange{}) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(reflect.ValueOf(data).Int())
		return DelayRange{Min: n, Max: n}, nil
	case reflect.Float32, reflect.Float64:
		n := int(reflect.ValueOf(data).Float())
		return DelayRange{Min: n, Max: n}, nil
	case reflect.String:
		s := strings.TrimSpace(data.(string))
		if s == "" || s == "0" {
			return DelayRange{}, nil
		}
		if lo, hi, ok := strings.Cut(s, ","); ok {
			return map[string]any{"min": strings.TrimSpace(lo), "max": strings.TrimSpace(hi)}, nil
		}
		return nil, fmt.Errorf("delay_range_seconds: expected 0 or {min, max}, got %q", s)
	case reflect.Slice:
		items := reflect.ValueOf(data)
		if items.Len() != 2 {
			return nil, fmt.Errorf("delay_range_seconds: expected two values, got %d", items.Len())
		}
		return map[string]any{"min": items.Index(0).Interface(), "max": items.Index(1).Interface()}, nil
	default:
		return data, nil
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDirectory) == "" {
		return fmt.Errorf("output_directory must be set")
	}
	if c.DelayRangeSeconds.Min < 0 || c.DelayRangeSeconds.Max < c.DelayRangeSeconds.Min {
		return fmt.Errorf("delay_range_seconds must satisfy 0 <= min <= max, got %+v", c.DelayRangeSeconds)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be > 0")
	}
	if c.Restart.RestartCount <= 0 {
		return fmt.Errorf("restart.restart_count must be > 0")
	}
	if c.Restart.IntervalMinutes < 0 {
		return fmt.Errorf("restart.interval_minutes must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if strings.TrimSpace(c.CategoriesFile) == "" {
		return fmt.Errorf("categories_file must be set")
	}
	if strings.TrimSpace(c.LogsDirectory) == "" {
		return fmt.Errorf("logs_directory must be set")
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	switch c.Output.Driver {
	case DriverCSV:
	case DriverPostgres:
		if c.Output.DSN == "" {
			return fmt.Errorf("output.dsn must be set when output.driver is %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("output.driver must be %s or %s, got %q", DriverCSV, DriverPostgres, c.Output.Driver)
	}
	return nil
}

// FetcherConfig converts the retry, delay and header settings.
func (c Config) FetcherConfig() fetcher.Config {
	headers := make(http.Header, len(c.Headers))
	for name, value := range c.Headers {
		headers.Set(name, value)
	}
	return fetcher.Config{
		MaxAttempts: c.MaxRetries,
		Delay: fetcher.DelayRange{
			Min: time.Duration(c.DelayRangeSeconds.Min) * time.Second,
			Max: time.Duration(c.DelayRangeSeconds.Max) * time.Second,
		},
		Headers: headers,
	}
}

// RestartPolicy converts the restart settings.
func (c Config) RestartPolicy() crawler.RestartPolicy {
	return crawler.RestartPolicy{
		MaxRestarts: c.Restart.RestartCount,
		Interval:    time.Duration(c.Restart.IntervalMinutes) * time.Minute,
	}
}

// PostgresConfig converts the output settings for the Postgres store.
func (c Config) PostgresConfig() store.PostgresConfig {
	return store.PostgresConfig{DSN: c.Output.DSN, Table: c.Output.Table}
}
