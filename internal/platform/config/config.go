// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from its env struct tags. Every invalid variable is
// reported, not only the first.
func ParseEnv(target any) error {
	err := env.Parse(target)
	if err == nil {
		return nil
	}
	var aggregate env.AggregateError
	if errors.As(err, &aggregate) && len(aggregate.Errors) > 0 {
		return fmt.Errorf("parse env: %w", errors.Join(aggregate.Errors...))
	}
	return fmt.Errorf("parse env: %w", err)
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
