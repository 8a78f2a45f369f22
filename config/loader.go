package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/datafed/types"
)

// Loader assembles a Config from defaults, an optional YAML file, and
// environment overrides.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("datafed.yaml").
//	    Load()
//
// Precedence: defaults, then file, then DATAFED_* variables, then the
// DC_* shorthand.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the DATAFED env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DATAFED",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an
// error; the defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, types.NewError(types.ErrConfiguration, "failed to load config file").WithCause(err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "failed to apply environment overrides").WithCause(err)
	}

	applyDataCommonsEnv(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, types.NewError(types.ErrConfiguration, "config validation failed").WithCause(err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", l.configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct and applies PREFIX_SECTION_FIELD
// variables according to the env tags.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("invalid %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// applyDataCommonsEnv honors the DC_* shorthand used by Data Commons
// client deployments. DC_TYPE synthesizes the instance list when the
// file did not override the default; the remaining variables patch
// whatever instances are configured.
func applyDataCommonsEnv(cfg *Config) {
	switch os.Getenv("DC_TYPE") {
	case "base":
		cfg.Federation.Mode = string(types.ModeBaseOnly)
		cfg.Federation.Instances = []InstanceConfig{baseInstance()}
	case "custom":
		custom := InstanceConfig{
			ID:          "custom",
			BaseURL:     os.Getenv("DC_BASE_URL"),
			SearchIndex: envOr("DC_CUSTOM_INDEX", DefaultCustomIndex),
			Role:        "custom",
		}
		switch os.Getenv("DC_SEARCH_SCOPE") {
		case "base_only":
			cfg.Federation.Mode = string(types.ModeBaseOnly)
			cfg.Federation.Instances = []InstanceConfig{baseInstance()}
		case "custom_only":
			cfg.Federation.Mode = string(types.ModeFederated)
			cfg.Federation.Instances = []InstanceConfig{custom}
		default: // base_and_custom
			cfg.Federation.Mode = string(types.ModeBaseCustom)
			cfg.Federation.Instances = []InstanceConfig{baseInstance(), custom}
		}
	}

	if key := os.Getenv("DC_API_KEY"); key != "" {
		for i := range cfg.Federation.Instances {
			if cfg.Federation.Instances[i].APIKey == "" {
				cfg.Federation.Instances[i].APIKey = key
			}
		}
	}
	if u := os.Getenv("DC_SV_SEARCH_BASE_URL"); u != "" {
		for i := range cfg.Federation.Instances {
			if cfg.Federation.Instances[i].Role == "base" {
				cfg.Federation.Instances[i].SearchBaseURL = u
			}
		}
	}
	if idx := os.Getenv("DC_BASE_INDEX"); idx != "" {
		for i := range cfg.Federation.Instances {
			if cfg.Federation.Instances[i].Role == "base" {
				cfg.Federation.Instances[i].SearchIndex = idx
			}
		}
	}
	if path := os.Getenv("DC_TOPIC_CACHE_PATH"); path != "" {
		cfg.Topics.CacheFile = path
	}
	if roots := os.Getenv("DC_ROOT_TOPIC_DCIDS"); roots != "" {
		parts := strings.Split(roots, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Topics.RootTopics = parts
	}
}

func baseInstance() InstanceConfig {
	return InstanceConfig{
		ID:             "base",
		BaseURL:        DefaultBaseURL,
		SearchBaseURL:  DefaultSearchBaseURL,
		SearchIndex:    envOr("DC_BASE_INDEX", DefaultBaseIndex),
		Role:           "base",
		SupportsTopics: true,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustLoad loads from path and panics on failure. For main() only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
