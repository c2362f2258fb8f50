package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Viewer struct {
		PingInterval      time.Duration `yaml:"ping_interval"`
		PongTimeout       time.Duration `yaml:"pong_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		MaxMessageBytes   int64         `yaml:"max_message_bytes"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
		MessageBurst      int           `yaml:"message_burst"`
		SendBuffer        int           `yaml:"send_buffer"`
	} `yaml:"viewer"`

	Capture struct {
		FrameInterval         time.Duration `yaml:"frame_interval"`
		ScreenshotTimeout     time.Duration `yaml:"screenshot_timeout"`
		RecordTimeout         time.Duration `yaml:"record_timeout"`
		RecordChunk           time.Duration `yaml:"record_chunk"`
		MinScreenshotBytes    int           `yaml:"min_screenshot_bytes"`
		BusyRetryDelay        time.Duration `yaml:"busy_retry_delay"`
		BackoffInitial        time.Duration `yaml:"backoff_initial"`
		BackoffMax            time.Duration `yaml:"backoff_max"`
		ScreenshotErrorBudget int           `yaml:"screenshot_error_budget"`
		VideoErrorBudget      int           `yaml:"video_error_budget"`
	} `yaml:"capture"`

	Lock struct {
		ScreenshotStaleness time.Duration `yaml:"screenshot_staleness"`
		RecordStaleness     time.Duration `yaml:"record_staleness"`
		SweepInterval       time.Duration `yaml:"sweep_interval"`
		HardCeiling         time.Duration `yaml:"hard_ceiling"`
	} `yaml:"lock"`

	Input struct {
		QueueBound    int           `yaml:"queue_bound"`
		InjectTimeout time.Duration `yaml:"inject_timeout"`
	} `yaml:"input"`

	Registry struct {
		MappingTTL   time.Duration `yaml:"mapping_ttl"`
		ProbeTimeout time.Duration `yaml:"probe_timeout"`
		ListTimeout  time.Duration `yaml:"list_timeout"`
	} `yaml:"registry"`

	ADB struct {
		Path string `yaml:"path"`
	} `yaml:"adb"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		Enabled   bool   `yaml:"enabled"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Viewer
	if c.Viewer.PingInterval <= 0 {
		return fmt.Errorf("viewer.ping_interval must be > 0")
	}
	if c.Viewer.PongTimeout <= c.Viewer.PingInterval {
		return fmt.Errorf("viewer.pong_timeout must be > viewer.ping_interval")
	}
	if c.Viewer.MaxMessageBytes <= 0 {
		return fmt.Errorf("viewer.max_message_bytes must be > 0")
	}
	if c.Viewer.SendBuffer <= 0 {
		return fmt.Errorf("viewer.send_buffer must be > 0")
	}

	// Capture
	if c.Capture.FrameInterval <= 0 {
		return fmt.Errorf("capture.frame_interval must be > 0")
	}
	if c.Capture.ScreenshotTimeout <= 0 {
		return fmt.Errorf("capture.screenshot_timeout must be > 0")
	}
	if c.Capture.RecordChunk <= 0 {
		return fmt.Errorf("capture.record_chunk must be > 0")
	}
	if c.Capture.RecordTimeout <= c.Capture.RecordChunk {
		return fmt.Errorf("capture.record_timeout must be > capture.record_chunk")
	}
	if c.Capture.ScreenshotErrorBudget <= 0 || c.Capture.VideoErrorBudget <= 0 {
		return fmt.Errorf("capture error budgets must be > 0")
	}
	if c.Capture.BackoffInitial <= 0 || c.Capture.BackoffMax < c.Capture.BackoffInitial {
		return fmt.Errorf("capture backoff bounds invalid")
	}
	if c.Capture.BusyRetryDelay <= 0 {
		return fmt.Errorf("capture.busy_retry_delay must be > 0")
	}

	// Lock: staleness must outlast the slowest legitimate operation of its kind
	if c.Lock.ScreenshotStaleness <= c.Capture.ScreenshotTimeout {
		return fmt.Errorf("lock.screenshot_staleness must be > capture.screenshot_timeout")
	}
	if c.Lock.RecordStaleness <= c.Capture.RecordTimeout {
		return fmt.Errorf("lock.record_staleness must be > capture.record_timeout")
	}
	if c.Lock.SweepInterval <= 0 {
		return fmt.Errorf("lock.sweep_interval must be > 0")
	}
	if c.Lock.HardCeiling < c.Lock.RecordStaleness {
		return fmt.Errorf("lock.hard_ceiling must be >= lock.record_staleness")
	}

	// Input
	if c.Input.QueueBound <= 0 {
		return fmt.Errorf("input.queue_bound must be > 0")
	}
	if c.Input.InjectTimeout <= 0 {
		return fmt.Errorf("input.inject_timeout must be > 0")
	}

	// Registry
	if c.Registry.MappingTTL <= 0 {
		return fmt.Errorf("registry.mapping_ttl must be > 0")
	}
	if c.Registry.ProbeTimeout <= 0 {
		return fmt.Errorf("registry.probe_timeout must be > 0")
	}
	if c.Registry.ListTimeout <= 0 {
		return fmt.Errorf("registry.list_timeout must be > 0")
	}

	// ADB
	if c.ADB.Path == "" {
		return fmt.Errorf("adb.path must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Viewer.PingInterval = 30 * time.Second
	cfg.Viewer.PongTimeout = 60 * time.Second
	cfg.Viewer.WriteTimeout = 10 * time.Second
	cfg.Viewer.MaxMessageBytes = 16 * 1024
	cfg.Viewer.MessagesPerSecond = 30
	cfg.Viewer.MessageBurst = 60
	cfg.Viewer.SendBuffer = 8

	cfg.Capture.FrameInterval = 500 * time.Millisecond
	cfg.Capture.ScreenshotTimeout = 5 * time.Second
	cfg.Capture.RecordTimeout = 30 * time.Second
	cfg.Capture.RecordChunk = 10 * time.Second
	cfg.Capture.MinScreenshotBytes = 1024
	cfg.Capture.BusyRetryDelay = 250 * time.Millisecond
	cfg.Capture.BackoffInitial = 500 * time.Millisecond
	cfg.Capture.BackoffMax = 8 * time.Second
	cfg.Capture.ScreenshotErrorBudget = 5
	cfg.Capture.VideoErrorBudget = 3

	cfg.Lock.ScreenshotStaleness = 8 * time.Second
	cfg.Lock.RecordStaleness = 45 * time.Second
	cfg.Lock.SweepInterval = 30 * time.Second
	cfg.Lock.HardCeiling = 60 * time.Second

	cfg.Input.QueueBound = 10
	cfg.Input.InjectTimeout = 3 * time.Second

	cfg.Registry.MappingTTL = 5 * time.Minute
	cfg.Registry.ProbeTimeout = 2 * time.Second
	cfg.Registry.ListTimeout = 10 * time.Second

	cfg.ADB.Path = "adb"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.Enabled = false
	cfg.Auth.JWTSecret = ""

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("RELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("RELAY_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if path := os.Getenv("RELAY_ADB_PATH"); path != "" {
		c.ADB.Path = path
	}
	if addr := os.Getenv("RELAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
