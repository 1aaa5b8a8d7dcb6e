package exchange

import (
	"fmt"
	"strings"
)

// ConfigError reports missing or inconsistent exchange credentials.
// Callers treat it as fatal and never retry it.
type ConfigError struct {
	Exchange string
	Missing  []string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("exchange %s: invalid configuration", e.Exchange)
	}
	return fmt.Sprintf("exchange %s: missing secrets: %s", e.Exchange, strings.Join(e.Missing, ", "))
}

// CircuitOpenError is returned while the breaker for an exchange is open.
type CircuitOpenError struct {
	Exchange string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s exchange", e.Exchange)
}
