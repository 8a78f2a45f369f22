package config

import "time"

// Well-known endpoints and search indexes of the public Data Commons
// deployment.
const (
	DefaultBaseURL       = "https://api.datacommons.org"
	DefaultSearchBaseURL = "https://datacommons.org"
	DefaultBaseIndex     = "base_uae_mem"
	DefaultCustomIndex   = "user_all_minilm_mem"
)

// DefaultConfig returns the baseline configuration: a single public base
// instance, no cache, plain console logging.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Federation: DefaultFederationSettings(),
		Client:     DefaultClientConfig(),
		Topics:     DefaultTopicsConfig(),
		Redis:      DefaultRedisConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultFederationSettings returns a base-only federation over the
// public Data Commons API.
func DefaultFederationSettings() FederationSettings {
	return FederationSettings{
		Mode: "base-only",
		Instances: []InstanceConfig{{
			ID:             "base",
			BaseURL:        DefaultBaseURL,
			SearchBaseURL:  DefaultSearchBaseURL,
			SearchIndex:    DefaultBaseIndex,
			Role:           "base",
			SupportsTopics: true,
		}},
		InstanceTimeout:  10 * time.Second,
		MaxSearchResults: 30,
	}
}

// DefaultClientConfig returns the default per-instance client tuning.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: 10 * time.Second,
		MaxRetries:     2,
		RateLimitRPS:   0, // unlimited
		RateLimitBurst: 0,
	}
}

// DefaultTopicsConfig returns the default topic resolver settings.
func DefaultTopicsConfig() TopicsConfig {
	return TopicsConfig{
		RootTopics: []string{"dc/topic/Root"},
		MaxDepth:   5,
	}
}

// DefaultRedisConfig returns the default (disabled) cache settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
		TTL:     15 * time.Minute,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default (disabled) telemetry
// settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "datafed",
		SampleRate:   0.1,
	}
}
