// Package rconfig loads reactor tuning knobs from a YAML file (with env
// overrides) and optionally watches that file for hot-reloadable changes.
package rconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the knobs a running reactor needs: where to connect, which
// stream/group/consumer identity to use, batch/concurrency/block-time
// tuning, the claim mode to start with, and ambient logging/metrics
// settings. Fields carry both mapstructure tags (for viper, which handles
// the REACTOR_-prefixed env overrides and layered file reads) and yaml
// tags (so DumpYAML can round-trip the effective config back to the same
// shape an operator would hand-edit).
type Config struct {
	Redis struct {
		Addr     string `mapstructure:"addr" yaml:"addr"`
		Username string `mapstructure:"username" yaml:"username,omitempty"`
		Password string `mapstructure:"password" yaml:"password,omitempty"`
		DB       int    `mapstructure:"db" yaml:"db"`
	} `mapstructure:"redis" yaml:"redis"`

	Stream struct {
		Key string `mapstructure:"key" yaml:"key"`
	} `mapstructure:"stream" yaml:"stream"`

	Group struct {
		Name string `mapstructure:"name" yaml:"name"`
	} `mapstructure:"group" yaml:"group"`

	Consumer struct {
		ID string `mapstructure:"id" yaml:"id,omitempty"`
	} `mapstructure:"consumer" yaml:"consumer"`

	Dispatch struct {
		BatchSize   int64 `mapstructure:"batch_size" yaml:"batch_size"`
		Concurrency int   `mapstructure:"concurrency" yaml:"concurrency"`
		BlockTimeMs int   `mapstructure:"block_time_ms" yaml:"block_time_ms"`
	} `mapstructure:"dispatch" yaml:"dispatch"`

	Claim struct {
		Mode      string `mapstructure:"mode" yaml:"mode"` // all_pending | clear_backlog | autoclaim | new_only
		MinIdleMs int    `mapstructure:"min_idle_ms" yaml:"min_idle_ms"`
		MaxIdleMs int    `mapstructure:"max_idle_ms" yaml:"max_idle_ms"`
	} `mapstructure:"claim" yaml:"claim"`

	Observability struct {
		Metrics struct {
			Enabled bool `mapstructure:"enabled" yaml:"enabled"`
			Port    int  `mapstructure:"port" yaml:"port"`
		} `mapstructure:"metrics" yaml:"metrics"`
		Logging struct {
			Level  string `mapstructure:"level" yaml:"level"`
			Format string `mapstructure:"format" yaml:"format"`
		} `mapstructure:"logging" yaml:"logging"`
	} `mapstructure:"observability" yaml:"observability"`
}

// DumpYAML renders the effective configuration back to YAML, the same
// shape LoadFile accepts. Useful for an operator to inspect what a
// deployment actually resolved to once env overrides and defaults are
// applied, without re-deriving it by hand from REACTOR_* env vars.
func (c *Config) DumpYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("rconfig: marshal: %w", err)
	}
	return out, nil
}

// BlockTime returns Dispatch.BlockTimeMs as a time.Duration.
func (c *Config) BlockTime() time.Duration {
	return time.Duration(c.Dispatch.BlockTimeMs) * time.Millisecond
}

// MinIdle returns Claim.MinIdleMs as a time.Duration.
func (c *Config) MinIdle() time.Duration {
	return time.Duration(c.Claim.MinIdleMs) * time.Millisecond
}

// MaxIdle returns Claim.MaxIdleMs as a time.Duration.
func (c *Config) MaxIdle() time.Duration {
	return time.Duration(c.Claim.MaxIdleMs) * time.Millisecond
}

func defaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("stream.key", "reactor:entries")
	v.SetDefault("group.name", "reactor-workers")
	v.SetDefault("dispatch.batch_size", 32)
	v.SetDefault("dispatch.concurrency", 8)
	v.SetDefault("dispatch.block_time_ms", 5000)
	v.SetDefault("claim.mode", "autoclaim")
	v.SetDefault("claim.min_idle_ms", 30000)
	v.SetDefault("claim.max_idle_ms", 0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
}

// Load reads configuration from CONFIG_PATH (or "config/reactor.yaml" if
// unset), applying REACTOR_-prefixed environment overrides on top.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/reactor.yaml"
	}
	return LoadFile(path)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("REACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("rconfig: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("rconfig: unmarshal: %w", err)
	}
	return &cfg, nil
}
