package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// TrendingConfig 热度引擎配置
type TrendingConfig struct {
	// Store 选择持久化后端: gorm 或 redis
	Store         string        `mapstructure:"store" validate:"oneof=gorm redis"`
	KeyPrefix     string        `mapstructure:"key_prefix" validate:"required"`
	PageSize      int           `mapstructure:"page_size" validate:"gte=1"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=1"`
	SweepRPS      float64       `mapstructure:"sweep_rps" validate:"gte=0"`
	DecayLifetime time.Duration `mapstructure:"decay_lifetime" validate:"gt=0"`
	// DeleteWorkers 异步删除队列的消费者数，0 表示删除钩子同步执行
	DeleteWorkers   int          `mapstructure:"delete_workers" validate:"gte=0"`
	DeleteQueueSize int          `mapstructure:"delete_queue_size" validate:"gte=1"`
	Retention       RetentionSet `mapstructure:"retention"`
}

// RetentionSet 每种条目类型的保留策略
type RetentionSet struct {
	Post RetentionPolicy `mapstructure:"post"`
	User RetentionPolicy `mapstructure:"user"`
}

// RetentionPolicy MaxRetained <= 0 表示不限制数量
type RetentionPolicy struct {
	MaxRetained int64   `mapstructure:"max_retained"`
	MinScore    float64 `mapstructure:"min_score" validate:"gte=0"`
}

// For returns the policy configured for an item type name.
func (r RetentionSet) For(itemType string) (RetentionPolicy, bool) {
	switch itemType {
	case "post":
		return r.Post, true
	case "user":
		return r.User, true
	}
	return RetentionPolicy{}, false
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Spec     string `mapstructure:"spec" validate:"required"`
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Insecure    bool    `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("trending.store", "gorm")
	v.SetDefault("trending.key_prefix", "trending")
	v.SetDefault("trending.page_size", 200)
	v.SetDefault("trending.max_attempts", 3)
	v.SetDefault("trending.sweep_rps", 0)
	v.SetDefault("trending.decay_lifetime", 24*time.Hour)
	v.SetDefault("trending.delete_workers", 2)
	v.SetDefault("trending.delete_queue_size", 1024)
	v.SetDefault("trending.retention.post.max_retained", 10000)
	v.SetDefault("trending.retention.post.min_score", 0.5)
	v.SetDefault("trending.retention.user.max_retained", 5000)
	v.SetDefault("trending.retention.user.min_score", 0.5)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "@every 5m")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "trending")
	v.SetDefault("tracing.sample_ratio", 0.1)
	v.SetDefault("tracing.insecure", true)
}

// Load 加载配置：TRENDING_CONFIG 指定文件，否则在 . 与 ./config 下查找 config.yaml
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("TRENDING_CONFIG"))
}

// LoadFrom 从指定文件加载配置；path 为空时按默认路径查找，找不到文件时只使用默认值与环境变量
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRENDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
