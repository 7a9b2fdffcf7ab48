package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr                  string `mapstructure:"addr"`
		LogLevel              string `mapstructure:"log_level"`
		LogFormat             string `mapstructure:"log_format"`
		RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	} `mapstructure:"server"`

	Store struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"store"`

	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Username string   `mapstructure:"username"`
		Password string   `mapstructure:"password"`
		DB       int      `mapstructure:"db"`
		PoolSize int      `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Decision struct {
		QuotaFanout int `mapstructure:"quota_fanout"`
	} `mapstructure:"decision"`

	Sweeper struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"sweeper"`
}

// Load reads file (or configs/application.yaml when empty) and applies
// APP_ prefixed env overrides, e.g. APP_REDIS_ADDRS.
func Load(file string) (Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("application")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// optional unless asked for explicitly; env can fully configure
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can bind it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.request_timeout_seconds", 2)
	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("decision.quota_fanout", 8)
	v.SetDefault("sweeper.interval_seconds", 60)
}

func validate(c *Config) error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 2
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 10
	}
	if c.Decision.QuotaFanout <= 0 {
		c.Decision.QuotaFanout = 8
	}
	if c.Sweeper.IntervalSeconds <= 0 {
		c.Sweeper.IntervalSeconds = 60
	}

	c.Store.Backend = strings.ToLower(c.Store.Backend)
	switch c.Store.Backend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendRedis && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is empty")
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalSeconds) * time.Second
}
