package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the analytics service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Analytics     AnalyticsConfig     `mapstructure:"analytics"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Health        HealthConfig        `mapstructure:"health"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	CORSOrigins           []string      `mapstructure:"cors_origins"`
}

type MongoConfig struct {
	URI                    string        `mapstructure:"uri"`
	Database               string        `mapstructure:"database"`
	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
	MinPoolSize            uint64        `mapstructure:"min_pool_size"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	QueryTimeout           time.Duration `mapstructure:"query_timeout"`
	EnsureIndexes          bool          `mapstructure:"ensure_indexes"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type AnalyticsConfig struct {
	ActiveWindow    string `mapstructure:"active_window"`
	DefaultTopLimit int    `mapstructure:"default_top_limit"`
	MaxTopLimit     int    `mapstructure:"max_top_limit"`
	FallbackEnabled bool   `mapstructure:"fallback_enabled"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("ANALYTICS_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("analytics")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The legacy deployment exported these without a prefix.
	_ = v.BindEnv("mongo.uri", "ANALYTICS_MONGO_URI", "MONGO_URI")
	_ = v.BindEnv("mongo.database", "ANALYTICS_MONGO_DATABASE", "DB_NAME")

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and fills derived defaults.
func (c *Config) Validate() error {
	if err := c.Mongo.validate(); err != nil {
		return err
	}

	reportingTZ := strings.TrimSpace(c.Reporting.Timezone)
	if reportingTZ == "" {
		reportingTZ = "UTC"
	}
	// The zone name is sent to the store for bucketing, so it must be an IANA name.
	if strings.EqualFold(reportingTZ, "Local") {
		return fmt.Errorf("invalid reporting.timezone: %q is not an IANA zone name", reportingTZ)
	}
	if _, err := time.LoadLocation(reportingTZ); err != nil {
		return fmt.Errorf("invalid reporting.timezone: %w", err)
	}
	c.Reporting.Timezone = reportingTZ

	if err := c.Analytics.validate(); err != nil {
		return err
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.RateLimits.RequestsPerMinute < 0 || c.RateLimits.ParallelRequests < 0 {
		return fmt.Errorf("rate_limits values must be >= 0")
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Health.CheckInterval <= 0 {
		c.Health.CheckInterval = 30 * time.Second
	}
	if c.Health.Timeout <= 0 || c.Health.Timeout > c.Health.CheckInterval {
		c.Health.Timeout = 3 * time.Second
	}
	c.Server.CORSOrigins = normalizeStringSlice(c.Server.CORSOrigins)
	return nil
}

func (m *MongoConfig) validate() error {
	m.URI = strings.TrimSpace(m.URI)
	if m.URI == "" {
		return fmt.Errorf("missing required configuration: ANALYTICS_MONGO_URI")
	}
	if !strings.HasPrefix(m.URI, "mongodb://") && !strings.HasPrefix(m.URI, "mongodb+srv://") {
		return fmt.Errorf("invalid mongo.uri: must start with mongodb:// or mongodb+srv:// (got %q...)", redactPrefix(m.URI))
	}
	if strings.TrimSpace(m.Database) == "" {
		return fmt.Errorf("mongo.database must be provided")
	}
	if m.MinPoolSize > m.MaxPoolSize && m.MaxPoolSize > 0 {
		return fmt.Errorf("mongo.min_pool_size cannot exceed mongo.max_pool_size")
	}
	if m.ConnectTimeout <= 0 {
		m.ConnectTimeout = 10 * time.Second
	}
	if m.ServerSelectionTimeout <= 0 {
		m.ServerSelectionTimeout = 5 * time.Second
	}
	if m.QueryTimeout < 0 {
		return fmt.Errorf("mongo.query_timeout must be >= 0")
	}
	return nil
}

func (a *AnalyticsConfig) validate() error {
	window := strings.ToLower(strings.TrimSpace(a.ActiveWindow))
	if window == "" {
		window = "30d"
	}
	if !strings.HasSuffix(window, "d") && !strings.HasSuffix(window, "h") {
		return fmt.Errorf("analytics.active_window must be expressed in d or h (e.g. 30d)")
	}
	a.ActiveWindow = window
	if a.DefaultTopLimit <= 0 {
		a.DefaultTopLimit = 5
	}
	if a.MaxTopLimit <= 0 {
		a.MaxTopLimit = 50
	}
	if a.DefaultTopLimit > a.MaxTopLimit {
		return fmt.Errorf("analytics.default_top_limit cannot exceed analytics.max_top_limit")
	}
	return nil
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	out := c
	out.Mongo.URI = redactPrefix(c.Mongo.URI) + "..."
	if c.Redis.URL != "" {
		out.Redis.URL = redactPrefix(c.Redis.URL) + "..."
	}
	return out
}

func redactPrefix(uri string) string {
	if len(uri) > 10 {
		return uri[:10]
	}
	return uri
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "chatsell_prod")
	v.SetDefault("mongo.max_pool_size", 50)
	v.SetDefault("mongo.min_pool_size", 0)
	v.SetDefault("mongo.connect_timeout", "10s")
	v.SetDefault("mongo.server_selection_timeout", "5s")
	v.SetDefault("mongo.query_timeout", "15s")
	v.SetDefault("mongo.ensure_indexes", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("reporting.timezone", "America/Argentina/Buenos_Aires")

	v.SetDefault("analytics.active_window", "30d")
	v.SetDefault("analytics.default_top_limit", 5)
	v.SetDefault("analytics.max_top_limit", 50)
	v.SetDefault("analytics.fallback_enabled", true)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")

	v.SetDefault("rate_limits.requests_per_minute", 600)
	v.SetDefault("rate_limits.parallel_requests", 20)

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("health.check_interval", "30s")
	v.SetDefault("health.timeout", "3s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		// Env overrides arrive as one comma separated string.
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
