package core

import (
	"strings"

	"github.com/rs/zerolog"
)

// Environment represents the deployment environment of the service.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// String returns the string representation of the environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// DefaultLogLevel is used when LOG_LEVEL is not set.
func (e Environment) DefaultLogLevel() zerolog.Level {
	switch e {
	case Production, Staging:
		return zerolog.InfoLevel
	case Testing:
		return zerolog.WarnLevel
	default:
		return zerolog.DebugLevel
	}
}

// ParseEnvironment normalises the provided value into one of the known environments.
// Unknown values fall back to Development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "testing", "test":
		return Testing
	default:
		return Development
	}
}
