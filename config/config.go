package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kasuganosora/stalker/cache"
	"github.com/kasuganosora/stalker/game/ai"
	"github.com/kasuganosora/stalker/game/director"
	"github.com/kasuganosora/stalker/game/world"
)

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Cache     cache.CacheConfig `mapstructure:"cache"`
	Engine    EngineConfig      `mapstructure:"engine"`
	Agent     ai.Config         `mapstructure:"agent"`
	Director  director.Config   `mapstructure:"director"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Security  SecurityConfig    `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type EngineConfig struct {
	// Level is a YAML grid file; empty runs an open field with no walls.
	Level string `mapstructure:"level"`
	// Agents are spawned at boot, one per id.
	Agents           []string      `mapstructure:"agents"`
	Seed             int64         `mapstructure:"seed"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	SnapshotTTL      time.Duration `mapstructure:"snapshot_ttl"`
	World            world.Config  `mapstructure:"world"`
}

type TelemetryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Dir           string        `mapstructure:"dir"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// SampleEvery records one row per this many ticks.
	SampleEvery int `mapstructure:"sample_every"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Default returns the configuration used for keys a file leaves out.
// Tuning sections start from each package's own defaults.
func Default() *Config {
	return &Config{
		Engine:   EngineConfig{World: world.DefaultConfig()},
		Agent:    ai.DefaultConfig(),
		Director: director.DefaultConfig(),
	}
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/stalker.db")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("engine.agents", []string{"stalker"})
	v.SetDefault("engine.seed", 1)
	v.SetDefault("engine.autosave_interval", "30s")
	v.SetDefault("engine.snapshot_ttl", "10m")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dir", "./data/telemetry")
	v.SetDefault("telemetry.flush_interval", "5s")
	v.SetDefault("telemetry.sample_every", 4)
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
}

// WriteYAML writes the configuration to a YAML file with credentials blanked.
func (c *Config) WriteYAML(path string) error {
	out := *c
	out.Server.AdminKey = ""
	out.Database.MySQLDSN = ""
	out.Cache.RedisPassword = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
