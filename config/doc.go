// Package config loads the process configuration from defaults, an
// optional YAML file, and environment overrides, in that order.
package config
