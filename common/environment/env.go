// Package environment reads memoryd settings from environment variables.
//
// Every helper takes the current value as its fallback, so callers can layer
// the environment over defaults and a config file:
//
//	cfg.HTTP.Addr = environment.StringOr("MEMORYD_HTTP_ADDR", cfg.HTTP.Addr)
//
// Unparseable values are ignored rather than reported; Config.Validate is the
// single place that rejects bad settings.
package environment

import (
	"os"
	"strconv"
	"time"
)

// StringOr returns the value of the named environment variable, or fallback
// if the variable is unset or empty.
func StringOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// BoolOr parses the named variable with strconv.ParseBool.
func BoolOr(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntOr parses the named variable as a decimal integer.
func IntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// FloatOr parses the named variable as a float64 (e.g. a similarity
// threshold such as "0.25").
func FloatOr(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// DurationOr parses the named variable as a time.Duration ("30s", "2m").
func DurationOr(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
