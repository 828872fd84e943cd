package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，如 SFRT_SERVER_PORT
const EnvPrefix = "SFRT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug | release
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent | error | warn | info
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LedgerConfig 乐观锁冲突的重试策略
type LedgerConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Jitter          float64       `mapstructure:"jitter"` // 0.0 ~ 1.0
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")

	v.SetDefault("ledger.max_retries", 8)
	v.SetDefault("ledger.initial_interval", 5*time.Millisecond)
	v.SetDefault("ledger.max_interval", 200*time.Millisecond)
	v.SetDefault("ledger.multiplier", 2.0)
	v.SetDefault("ledger.jitter", 0.2)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dir", "./data/journal")
}

// Load 默认值 < 配置文件 < 环境变量
// path 为空时只用默认值和环境变量
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, errors.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Ledger.Multiplier < 1 {
		return nil, errors.Errorf("ledger.multiplier must be >= 1, got %v", cfg.Ledger.Multiplier)
	}
	if cfg.Ledger.Jitter < 0 || cfg.Ledger.Jitter > 1 {
		return nil, errors.Errorf("ledger.jitter must be within [0, 1], got %v", cfg.Ledger.Jitter)
	}
	return &cfg, nil
}
