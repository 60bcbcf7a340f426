package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/common/cache"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 2 * time.Minute // synchronous runs hold the response open
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeSettings holds judging limits and sandbox settings.
type JudgeSettings struct {
	WorkRoot           string `yaml:"workRoot"`
	DefaultTimeLimitMs int64  `yaml:"defaultTimeLimitMs"`
	MaxTimeLimitMs     int64  `yaml:"maxTimeLimitMs"`
	ComparisonMode     string `yaml:"comparisonMode"`
	IncludeDiff        bool   `yaml:"includeDiff"`
	MaxSourceBytes     int    `yaml:"maxSourceBytes"`
	MaxTestCases       int    `yaml:"maxTestCases"`
	OutputMaxBytes     int64  `yaml:"outputMaxBytes"`
	ErrorMaxLen        int    `yaml:"errorMaxLen"`
	WorkerPoolSize     int    `yaml:"workerPoolSize"`
	ForceRemote        bool   `yaml:"forceRemote"`
}

// RemoteConfig holds remote execution fallback settings.
type RemoteConfig struct {
	Enabled  bool              `yaml:"enabled"`
	BaseURL  string            `yaml:"baseURL"`
	Timeout  time.Duration     `yaml:"timeout"`
	Versions map[string]string `yaml:"versions"`
}

// BreakerConfig holds circuit breaker settings for the remote fallback.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// RecordConfig holds submission record persistence settings.
type RecordConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// AppConfig holds judged config.
type AppConfig struct {
	Server  ServerConfig      `yaml:"server"`
	Logger  logger.Config     `yaml:"logger"`
	Redis   cache.RedisConfig `yaml:"redis"`
	Judge   JudgeSettings     `yaml:"judge"`
	Remote  RemoteConfig      `yaml:"remote"`
	Breaker BreakerConfig     `yaml:"breaker"`
	Record  RecordConfig      `yaml:"record"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = os.TempDir()
	}
	if cfg.Remote.Enabled && cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 15 * time.Second
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
