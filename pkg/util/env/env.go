// Package env reads typed overrides from environment variables.
package env

import (
	"os"
	"strconv"
	"time"
)

// Int returns the parsed int value of an environment variable.
func Int(name string, defvalue int) int {
	if envVar, ok := os.LookupEnv(name); ok {
		if value, err := strconv.Atoi(envVar); err == nil {
			return value
		}
	}
	return defvalue
}

// Float64 returns the parsed float64 value of an environment variable.
func Float64(name string, defvalue float64) float64 {
	if envVar, ok := os.LookupEnv(name); ok {
		if value, err := strconv.ParseFloat(envVar, 64); err == nil {
			return value
		}
	}
	return defvalue
}

// Duration returns the parsed time.Duration value of an environment variable.
func Duration(name string, defvalue time.Duration) time.Duration {
	if envVar, ok := os.LookupEnv(name); ok {
		if value, err := time.ParseDuration(envVar); err == nil {
			return value
		}
	}
	return defvalue
}
