// Package gatewayconfig implements C1-C3 of the core: the rule model,
// the raw-to-normalized loader, and the validator (spec §4.1-§4.3).
package gatewayconfig

import "fmt"

// Load parses and normalizes raw JSON configuration into a ProxyConfig,
// the read-only structure the router and dispatcher consume for the
// lifetime of the process (spec §3 "Lifecycles", §6 exit surface). It
// runs the same diagnostics as Validate and fails the load if any
// error-level diagnostic was produced; the full ValidationResult is
// always returned alongside so callers can still inspect warnings (and,
// on failure, the errors) regardless of outcome.
func Load(raw []byte) (*ProxyConfig, *ValidationResult, error) {
	result := Validate(raw)
	if !result.Valid {
		return nil, result, fmt.Errorf("gatewayconfig: invalid configuration (%d error(s)): %s",
			len(result.Errors), result.Errors[0].String())
	}
	return result.Normalized, result, nil
}
