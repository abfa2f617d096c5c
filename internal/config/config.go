package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Engine     EngineConfig     `yaml:"engine"`
	Reputation ReputationConfig `yaml:"reputation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"` // empty disables auth
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type VerifierConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimit        int           `yaml:"rate_limit"`         // requests per window
	RateWindow       time.Duration `yaml:"rate_window"`        // fixed window size
	BreakerThreshold int           `yaml:"breaker_threshold"`  // consecutive failures before opening
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`   // open -> half-open delay
	MaxRetries       int           `yaml:"max_retries"`        // retries per logical call
	BackoffMs        int           `yaml:"backoff_ms"`         // base retry backoff
	StatePath        string        `yaml:"state_path"`         // bbolt file for limiter/breaker state
}

type EngineConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	SlotMinutes     int           `yaml:"slot_minutes"`
	MaxBatchPerTick int           `yaml:"max_batch_per_tick"` // hard per-invocation cap
	MaxQueueDepth   int           `yaml:"max_queue_depth"`    // backpressure threshold
	MaxDelaySeconds int           `yaml:"max_delay_seconds"`  // delivery queue delay cap
}

type ReputationConfig struct {
	MaxBounceRate    float64 `yaml:"max_bounce_rate"`    // fraction of today's sends
	MaxComplaintRate float64 `yaml:"max_complaint_rate"` // fraction of today's sends
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PIVOTR_VERIFIER_API_KEY"); v != "" {
		cfg.Verifier.APIKey = v
	}
	if v := os.Getenv("PIVOTR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PIVOTR_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/pivotr-mailer/app.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Verifier.Timeout == 0 {
		cfg.Verifier.Timeout = 10 * time.Second
	}
	if cfg.Verifier.RateLimit == 0 {
		cfg.Verifier.RateLimit = 30
	}
	if cfg.Verifier.RateWindow == 0 {
		cfg.Verifier.RateWindow = time.Minute
	}
	if cfg.Verifier.BreakerThreshold == 0 {
		cfg.Verifier.BreakerThreshold = 3
	}
	if cfg.Verifier.BreakerCooldown == 0 {
		cfg.Verifier.BreakerCooldown = time.Minute
	}
	if cfg.Verifier.MaxRetries == 0 {
		cfg.Verifier.MaxRetries = 3
	}
	if cfg.Verifier.BackoffMs == 0 {
		cfg.Verifier.BackoffMs = 500
	}
	if cfg.Verifier.StatePath == "" {
		cfg.Verifier.StatePath = "/var/lib/pivotr-mailer/verifier.db"
	}
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = time.Minute
	}
	if cfg.Engine.SlotMinutes == 0 {
		cfg.Engine.SlotMinutes = 1
	}
	if cfg.Engine.MaxBatchPerTick == 0 {
		cfg.Engine.MaxBatchPerTick = 50
	}
	if cfg.Engine.MaxQueueDepth == 0 {
		cfg.Engine.MaxQueueDepth = 2000
	}
	if cfg.Engine.MaxDelaySeconds == 0 {
		cfg.Engine.MaxDelaySeconds = 900
	}
	if cfg.Reputation.MaxBounceRate == 0 {
		cfg.Reputation.MaxBounceRate = 0.05
	}
	if cfg.Reputation.MaxComplaintRate == 0 {
		cfg.Reputation.MaxComplaintRate = 0.001
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Verifier.BaseURL == "" {
		return fmt.Errorf("verifier.base_url is required")
	}
	if cfg.Verifier.APIKey == "" {
		return fmt.Errorf("verifier.api_key is required (or set PIVOTR_VERIFIER_API_KEY)")
	}
	if cfg.Engine.SlotMinutes < 1 {
		return fmt.Errorf("engine.slot_minutes must be at least 1")
	}
	if cfg.Reputation.MaxBounceRate <= 0 || cfg.Reputation.MaxBounceRate >= 1 {
		return fmt.Errorf("reputation.max_bounce_rate must be in (0, 1)")
	}
	if cfg.Reputation.MaxComplaintRate <= 0 || cfg.Reputation.MaxComplaintRate >= 1 {
		return fmt.Errorf("reputation.max_complaint_rate must be in (0, 1)")
	}
	return nil
}
