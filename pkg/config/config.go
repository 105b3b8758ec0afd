// Package config loads the dashboard configuration: struct defaults, then the YAML file, then
// OPSBOARD_* environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OPSBOARD_"

// APIConfig is the backend connection.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" default:"http://127.0.0.1:8000" validate:"required,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
	// FetchTimeout abandons a poll fetch; a late answer is discarded. 0 disables.
	FetchTimeout time.Duration `yaml:"fetch_timeout" default:"20s" validate:"gte=0"`
}

// PollConfig holds one interval per channel.
type PollConfig struct {
	Matrix        time.Duration `yaml:"matrix" default:"60s" validate:"gt=0"`
	Readiness     time.Duration `yaml:"readiness" default:"30s" validate:"gt=0"`
	Rebalances    time.Duration `yaml:"rebalances" default:"60s" validate:"gt=0"`
	Journal       time.Duration `yaml:"journal" default:"15s" validate:"gt=0"`
	Exposure      time.Duration `yaml:"exposure" default:"30s" validate:"gt=0"`
	RiskEvents    time.Duration `yaml:"risk_events" default:"30s" validate:"gt=0"`
	Freshness     time.Duration `yaml:"freshness" default:"60s" validate:"gt=0"`
	Pipeline      time.Duration `yaml:"pipeline" default:"120s" validate:"gt=0"`
	Slippage      time.Duration `yaml:"slippage" default:"60s" validate:"gt=0"`
	TradeActivity time.Duration `yaml:"trade_activity" default:"60s" validate:"gt=0"`
	Backtests     time.Duration `yaml:"backtests" default:"300s" validate:"gt=0"`
	// Refuse re-derives the board even when no channel changed, so ages keep moving.
	Refuse time.Duration `yaml:"refuse" default:"30s" validate:"gt=0"`
}

// FreshnessConfig is an age policy. ErrorAfter 0 disables the age-based error band.
type FreshnessConfig struct {
	WarnAfter  time.Duration `yaml:"warn_after" validate:"gt=0"`
	ErrorAfter time.Duration `yaml:"error_after" validate:"gte=0"`
}

type BooksConfig struct {
	AutomatedPrefixes []string `yaml:"automated_prefixes" default:"[\"auto_\"]"`
	AutomatedLabel    string   `yaml:"automated_label" default:"Automated"`
	ManualLabel       string   `yaml:"manual_label" default:"Manual"`
}

type SparklineConfig struct {
	Window int `yaml:"window" default:"14" validate:"min=2,max=365"`
}

type FeedConfig struct {
	Limit       int `yaml:"limit" default:"30" validate:"min=1,max=1000"`
	JournalRows int `yaml:"journal_rows" default:"50" validate:"min=1,max=5000"`
}

type KeysConfig struct {
	ChordTimeout time.Duration `yaml:"chord_timeout" default:"500ms" validate:"gt=0"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" default:"127.0.0.1:8088" validate:"required,hostname_port"`
	// RefreshGap spaces manual refreshes over HTTP; negative disables the limit.
	RefreshGap time.Duration `yaml:"refresh_gap" default:"2s"`
}

// LogConfig feeds logger.Init.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	File       string `yaml:"file" default:"logs/opsboard.log"`
	MaxSize    int    `yaml:"max_size" default:"100" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" default:"7" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" default:"30" validate:"gte=0"`
	Compress   bool   `yaml:"compress" default:"true"`
}

// StrategyMeta is one entry of the display metadata table.
type StrategyMeta struct {
	Name     string `yaml:"name" validate:"required"`
	Subtitle string `yaml:"subtitle"`
}

// Config is the whole file.
type Config struct {
	API             APIConfig               `yaml:"api"`
	Poll            PollConfig              `yaml:"poll"`
	Freshness       FreshnessConfig         `yaml:"freshness"`
	SystemFreshness FreshnessConfig         `yaml:"system_freshness"`
	Books           BooksConfig             `yaml:"books"`
	Sparkline       SparklineConfig         `yaml:"sparkline"`
	Feed            FeedConfig              `yaml:"feed"`
	Keys            KeysConfig              `yaml:"keys"`
	Server          ServerConfig            `yaml:"server"`
	Log             LogConfig               `yaml:"log"`
	Strategies      map[string]StrategyMeta `yaml:"strategies" validate:"dive"`
}

// Default returns a config holding only defaults.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	// nested policies share a type, so their defaults differ per field
	c.Freshness = FreshnessConfig{WarnAfter: 4 * time.Hour}
	c.SystemFreshness = FreshnessConfig{WarnAfter: 6 * time.Hour, ErrorAfter: 24 * time.Hour}
	return c
}

// Load builds the config. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

var validate = validator.New()

// Validate checks field constraints plus the cross-field ones.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		p    FreshnessConfig
	}{{"freshness", c.Freshness}, {"system_freshness", c.SystemFreshness}} {
		if f.p.ErrorAfter > 0 && f.p.ErrorAfter <= f.p.WarnAfter {
			return fmt.Errorf("%s.error_after (%s) must exceed warn_after (%s)", f.name, f.p.ErrorAfter, f.p.WarnAfter)
		}
	}
	return nil
}

func applyEnv(c *Config) error {
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.Token = getEnv("API_TOKEN", c.API.Token)
	c.Server.Listen = getEnv("SERVER_LISTEN", c.Server.Listen)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	if v := getEnv("AUTOMATED_PREFIXES", ""); v != "" {
		c.Books.AutomatedPrefixes = splitList(v)
	}

	var err error
	if c.API.Timeout, err = parseDurationEnv("API_TIMEOUT", c.API.Timeout); err != nil {
		return err
	}
	if c.API.FetchTimeout, err = parseDurationEnv("API_FETCH_TIMEOUT", c.API.FetchTimeout); err != nil {
		return err
	}
	if c.Keys.ChordTimeout, err = parseDurationEnv("CHORD_TIMEOUT", c.Keys.ChordTimeout); err != nil {
		return err
	}
	if c.Freshness.WarnAfter, err = parseDurationEnv("FRESHNESS_WARN_AFTER", c.Freshness.WarnAfter); err != nil {
		return err
	}
	if c.Feed.Limit, err = parseIntEnv("FEED_LIMIT", c.Feed.Limit); err != nil {
		return err
	}
	if c.Sparkline.Window, err = parseIntEnv("SPARKLINE_WINDOW", c.Sparkline.Window); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
