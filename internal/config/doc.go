// Package config provides configuration loading and validation for the healing audio service.
// It reads YAML over built-in defaults and overlays API credentials from the environment.
package config
