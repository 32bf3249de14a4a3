// Package config loads bridge settings from defaults, an optional config file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ryotayamanaka/mcp-city/pkg/devices"
)

// EnvPrefix prefixes every environment override, e.g. CITYBRIDGE_GATEWAY_URL.
const EnvPrefix = "CITYBRIDGE"

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Database DatabaseConfig `mapstructure:"database"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Log      LogConfig      `mapstructure:"log"`
	Render   RenderConfig   `mapstructure:"render"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// GatewayConfig points at the device simulator.
type GatewayConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	URL     string        `mapstructure:"url"`
	CSVDir  string        `mapstructure:"csv_dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ToolsConfig struct {
	// Sets lists the device tool sets to expose; empty means all.
	Sets []string `mapstructure:"sets"`
}

type ServeConfig struct {
	Transport string `mapstructure:"transport"` // stdio, http
	Addr      string `mapstructure:"addr"`
	// APIKey, when set, is required as a bearer token on the HTTP routes except /healthz.
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, /path/to/log
}

type RenderConfig struct {
	MaxTokens int    `mapstructure:"max_tokens"`
	Model     string `mapstructure:"model"`
}

type OTelConfig struct {
	Stdout bool `mapstructure:"stdout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.url", "http://localhost:8000")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("database.url", "sqlite:file:city.sqlite?_pragma=busy_timeout(5000)")
	v.SetDefault("database.csv_dir", "./data")
	v.SetDefault("database.timeout", 10*time.Second)
	v.SetDefault("tools.sets", []string{})
	v.SetDefault("serve.transport", "stdio")
	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.api_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("render.max_tokens", 2000)
	v.SetDefault("render.model", "gpt-4o")
	v.SetDefault("otel.stdout", false)
}

// Load reads configuration. configPath is optional; when set the file must
// exist and its extension selects the format (yaml, toml, json).
// Environment variables override the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by the existing device tooling.
	_ = v.BindEnv("gateway.api_key", EnvPrefix+"_GATEWAY_API_KEY", "MCP_CITY_API_KEY", "CITY_DEVICES_API_KEY")
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Gateway.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway.url %q must be an http(s) URL", c.Gateway.URL))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}
	if c.Database.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("database.timeout must be positive"))
	}
	if _, err := devices.ParseSets(c.Tools.Sets); err != nil {
		errs = append(errs, fmt.Errorf("tools.sets: %w", err))
	}
	switch c.Serve.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("serve.transport %q must be stdio or http", c.Serve.Transport))
	}
	if c.Serve.Transport == "http" && c.Serve.Addr == "" {
		errs = append(errs, fmt.Errorf("serve.addr is required for http transport"))
	}
	if c.Serve.Transport == "stdio" && c.Log.Output == "stdout" {
		errs = append(errs, errors.New("log.output stdout would corrupt the stdio transport; use stderr or a file"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NeedsDatabase reports whether the configured tool sets include the city database.
func (c *Config) NeedsDatabase() bool {
	sets, err := devices.ParseSets(c.Tools.Sets)
	if err != nil {
		return false
	}
	for _, s := range sets {
		if s == devices.SetCityDB {
			return true
		}
	}
	return false
}
