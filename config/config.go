package config

import (
	"time"

	"github.com/BaSui01/datafed/types"
)

// Config is the complete datafed process configuration.
type Config struct {
	// Server holds the HTTP serving settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Federation describes the backend instances and the merge mode.
	Federation FederationSettings `yaml:"federation" env:"FEDERATION"`

	// Client tunes the per-instance HTTP clients.
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Topics configures topic expansion.
	Topics TopicsConfig `yaml:"topics" env:"TOPICS"`

	// Redis configures the optional lookup cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures the OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// JWTSecret enables bearer-token auth on the websocket endpoint when
	// non-empty. Never logged.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// FederationSettings describes the backend instances and merge behaviour.
type FederationSettings struct {
	// Mode is one of base-only, base+custom, federated.
	Mode string `yaml:"mode" env:"MODE"`

	// Instances in precedence-relevant configuration order. Not settable
	// through flat env vars; use the YAML file or the DC_* shorthand.
	Instances []InstanceConfig `yaml:"instances" env:"-"`

	// InstanceTimeout bounds each fan-out leg.
	InstanceTimeout time.Duration `yaml:"instance_timeout" env:"INSTANCE_TIMEOUT"`

	// MaxSearchResults caps merged search output.
	MaxSearchResults int `yaml:"max_search_results" env:"MAX_SEARCH_RESULTS"`
}

// InstanceConfig is the YAML shape of one backend instance.
type InstanceConfig struct {
	ID             string `yaml:"id"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	SearchBaseURL  string `yaml:"search_base_url"`
	SearchIndex    string `yaml:"search_index"`
	Role           string `yaml:"role"`
	SupportsTopics bool   `yaml:"supports_topics"`
}

// ClientConfig tunes the per-instance HTTP clients.
type ClientConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// TopicsConfig configures the topic resolver.
type TopicsConfig struct {
	// CacheFile is an optional pre-built topic graph JSON file.
	CacheFile string `yaml:"cache_file" env:"CACHE_FILE"`

	// RootTopics seeds traversal when no cache file is given.
	RootTopics []string `yaml:"root_topics" env:"ROOT_TOPICS"`

	// MaxDepth bounds recursive member expansion.
	MaxDepth int `yaml:"max_depth" env:"MAX_DEPTH"`
}

// RedisConfig configures the optional lookup cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ToFederationConfig converts the loaded settings into the runtime
// federation config and validates it.
func (c *Config) ToFederationConfig() (types.FederationConfig, error) {
	fc := types.FederationConfig{
		Mode: types.FederationMode(c.Federation.Mode),
	}
	for _, ic := range c.Federation.Instances {
		fc.Instances = append(fc.Instances, types.InstanceDescriptor{
			ID:             ic.ID,
			BaseURL:        ic.BaseURL,
			APIKey:         ic.APIKey,
			SearchBaseURL:  ic.SearchBaseURL,
			SearchIndex:    ic.SearchIndex,
			Role:           types.InstanceRole(ic.Role),
			SupportsTopics: ic.SupportsTopics,
		})
	}
	if err := fc.Validate(); err != nil {
		return types.FederationConfig{}, err
	}
	return fc, nil
}
