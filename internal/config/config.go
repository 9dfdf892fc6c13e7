// Package config loads oxidedb's own runtime configuration: a TOML
// file, an OXIDEDB_-prefixed environment overlay, and command-line
// flags, in that order of increasing precedence, layered with viper
// and cobra.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fcoury/oxidedb-sub001/internal/shadow"
)

// Config is oxidedb's full runtime configuration.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	PostgresURL string `mapstructure:"postgres_url"`

	// TestPostgresURL and TestMongoAddr are read only by the test
	// suite's own environment lookups; they're carried here so a
	// single config file can also seed a developer's shell via
	// OXIDEDB_CONFIG without a second file for test settings.
	TestPostgresURL string `mapstructure:"test_postgres_url"`
	TestMongoAddr   string `mapstructure:"test_mongodb_addr"`

	LogLevel   string `mapstructure:"log_level"`
	DebugAreas string `mapstructure:"debug_areas"`

	Shadow ShadowConfig `mapstructure:"shadow"`
}

// ShadowConfig mirrors shadow.Config field for field so viper can
// unmarshal directly into it; Build converts it to the shape
// internal/shadow actually consumes.
type ShadowConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	Addr                  string  `mapstructure:"addr"`
	DBPrefix              string  `mapstructure:"db_prefix"`
	TimeoutMS             int64   `mapstructure:"timeout_ms"`
	SampleRate            float64 `mapstructure:"sample_rate"`
	Mode                  string  `mapstructure:"mode"`
	Compare               string  `mapstructure:"compare"`
	DeterministicSampling bool    `mapstructure:"deterministic_sampling"`
	Username              string  `mapstructure:"username"`
	Password              string  `mapstructure:"password"`
	AuthDB                string  `mapstructure:"auth_db"`
}

// Build converts the unmarshalled shadow section into shadow.Config.
func (s ShadowConfig) Build() shadow.Config {
	return shadow.Config{
		Enabled:               s.Enabled,
		Addr:                  s.Addr,
		DBPrefix:              s.DBPrefix,
		Timeout:               time.Duration(s.TimeoutMS) * time.Millisecond,
		SampleRate:            s.SampleRate,
		Mode:                  s.Mode,
		Compare:               s.Compare,
		DeterministicSampling: s.DeterministicSampling,
		Username:              s.Username,
		Password:              s.Password,
		AuthDB:                s.AuthDB,
	}
}

// defaults are applied before the config file, env, and flags are
// layered on top, so an unset field always has a sane value rather
// than a zero value leaking through as a real setting.
func defaults() map[string]any {
	return map[string]any{
		"listen_addr":     "127.0.0.1:27017",
		"log_level":       "info",
		"shadow.mode":     "observe",
		"shadow.compare":  "full",
		"shadow.auth_db":  "admin",
		"shadow.timeout_ms": 5000,
	}
}

// Load builds a Config from defaults, an optional TOML file, the
// OXIDEDB_ environment prefix, and any flags already defined on fs.
// configPath empty skips the file layer entirely rather than erroring
// on a missing default path.
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("oxidedb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
