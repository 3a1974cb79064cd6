package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Remote       RemoteConfig    `mapstructure:"remote"`
	StateStorage StateStorage    `mapstructure:"state_storage"`
	Archive      ArchiveConfig   `mapstructure:"archive"`
	Sync         SyncConfig      `mapstructure:"sync"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Server       ServerConfig    `mapstructure:"server"`
	Logging      LoggingConfig   `mapstructure:"logging"`
}

// RemoteConfig describes the conversation API the mirror pulls from.
type RemoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AccessToken    string        `mapstructure:"access_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StateStorage struct {
	Type          string `mapstructure:"type"` // "file" or "sqlite"
	FilePath      string `mapstructure:"file_path"`
	MaxStateBytes int    `mapstructure:"max_state_bytes"`
}

type ArchiveConfig struct {
	Dir      string `mapstructure:"dir"`
	Markdown bool   `mapstructure:"markdown"`
}

type SyncConfig struct {
	Workers               int           `mapstructure:"workers"`
	PageLimit             int           `mapstructure:"page_limit"`
	PageFallbackLimits    []int         `mapstructure:"page_fallback_limits"`
	MaxPages              int           `mapstructure:"max_pages"`
	FullInventoryInterval time.Duration `mapstructure:"full_inventory_interval"`
	CursorMaxAge          time.Duration `mapstructure:"cursor_max_age"`
	DeleteRemoved         bool          `mapstructure:"delete_removed"`
	RunTimeout            time.Duration `mapstructure:"run_timeout"`
	CheckpointEveryEvents int           `mapstructure:"checkpoint_every_events"`
	CheckpointInterval    time.Duration `mapstructure:"checkpoint_interval"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("remote.base_url", "https://chatgpt.com/backend-api")
	viper.SetDefault("remote.request_timeout", "30s")

	viper.SetDefault("state_storage.type", "file")
	viper.SetDefault("state_storage.file_path", "data/state")
	viper.SetDefault("state_storage.max_state_bytes", 8*1024*1024)

	viper.SetDefault("archive.dir", "data/archive")
	viper.SetDefault("archive.markdown", true)

	viper.SetDefault("sync.workers", 3)
	viper.SetDefault("sync.page_limit", 100)
	viper.SetDefault("sync.page_fallback_limits", []int{50, 28, 20})
	viper.SetDefault("sync.max_pages", 500)
	viper.SetDefault("sync.full_inventory_interval", "24h")
	viper.SetDefault("sync.cursor_max_age", "24h")
	viper.SetDefault("sync.delete_removed", false)
	viper.SetDefault("sync.run_timeout", "30m")
	viper.SetDefault("sync.checkpoint_every_events", 25)
	viper.SetDefault("sync.checkpoint_interval", "2s")

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.interval", "@every 15m")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

func validate(cfg *Config) error {
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	switch cfg.StateStorage.Type {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unsupported state_storage.type %q", cfg.StateStorage.Type)
	}
	if cfg.Sync.PageLimit <= 0 {
		return fmt.Errorf("sync.page_limit must be positive")
	}
	if cfg.Sync.MaxPages <= 0 {
		return fmt.Errorf("sync.max_pages must be positive")
	}
	return nil
}
