// Package gatewayhttp implements C4-C8 of the core: the router, the
// listener fabric, the dispatcher, the upstream selector, and the
// header policy (spec §4.4-§4.8).
package gatewayhttp

import "github.com/skaznowiecki/gatewd/internal/gatewayconfig"

// Router resolves (port, host, path) to a Rule in constant time, with
// exact-over-wildcard precedence at both the host and path level (spec
// §4.4). The underlying table is immutable for the process lifetime;
// Router itself carries no mutable state.
type Router struct {
	table gatewayconfig.RoutingTable
}

// NewRouter wraps a normalized routing table for lookup.
func NewRouter(table gatewayconfig.RoutingTable) *Router {
	return &Router{table: table}
}

// Resolve implements spec §4.4's algorithm. hostKey and pathKey report
// which key was actually matched (the literal value or the wildcard
// sentinel); the upstream selector's cursor is keyed on these resolved
// values, not on host/path (spec §4.7).
func (r *Router) Resolve(port int, host, path string) (rule gatewayconfig.Rule, hostKey, pathKey string, ok bool) {
	hostMap, ok := r.table[port]
	if !ok {
		return nil, "", "", false
	}

	pathMap, matched := hostMap[host]
	matchedHostKey := host
	if !matched {
		pathMap, matched = hostMap[gatewayconfig.WildcardKey]
		matchedHostKey = gatewayconfig.WildcardKey
		if !matched {
			return nil, "", "", false
		}
	}

	rule, matched = pathMap[path]
	matchedPathKey := path
	if !matched {
		rule, matched = pathMap[gatewayconfig.WildcardKey]
		matchedPathKey = gatewayconfig.WildcardKey
		if !matched {
			return nil, "", "", false
		}
	}

	return rule, matchedHostKey, matchedPathKey, true
}

// Paths returns the set union of path-keys across all host-maps for a
// port. Used by external diagnostics/preview, not by the dispatcher
// (spec §4.4).
func (r *Router) Paths(port int) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, pathMap := range r.table[port] {
		for pathKey := range pathMap {
			if !seen[pathKey] {
				seen[pathKey] = true
				paths = append(paths, pathKey)
			}
		}
	}
	return paths
}

// HasPath reports whether any host-map for port has the exact path or a
// wildcard fallback (spec §4.4).
func (r *Router) HasPath(port int, path string) bool {
	for _, pathMap := range r.table[port] {
		if _, ok := pathMap[path]; ok {
			return true
		}
		if _, ok := pathMap[gatewayconfig.WildcardKey]; ok {
			return true
		}
	}
	return false
}

// HostMap exposes the raw host-map for a port, for the dispatcher's
// rewrite fallback scan (spec §4.6 Rewrite step d).
func (r *Router) HostMap(port int) (gatewayconfig.HostMap, bool) {
	hm, ok := r.table[port]
	return hm, ok
}
