package gatewayconfig

import (
	"encoding/json"
	"net/url"
)

// Rule is a closed tagged union of the three things a route can resolve
// to. It is produced once by normalization and never carries the raw
// JSON shape past the loader (see spec §9, "Polymorphic JSON → tagged
// variants").
type Rule interface {
	isRule()
}

// ProxyRule forwards matching requests to one of Targets, chosen by
// round-robin (spec §3, §4.7). Targets is always populated, even for a
// rule authored as a single bare URL string.
type ProxyRule struct {
	Targets []*url.URL

	// HealthCheck is opaque configuration accepted and preserved for
	// forward compatibility, but not acted on by the dispatcher or
	// selector (spec §3, §9 Open Question 3).
	HealthCheck json.RawMessage
}

func (*ProxyRule) isRule() {}

// RedirectRule issues an HTTP redirect, optionally stripping a prefix
// from the original path before appending the remainder to To.
type RedirectRule struct {
	To          string
	StripPrefix string
	Status      int
}

func (*RedirectRule) isRule() {}

// RewriteRule rewrites the request path and re-dispatches within the
// same listener/port (spec §4.6 Rewrite variant).
type RewriteRule struct {
	To string
}

func (*RewriteRule) isRule() {}

// ruleType is the closed set of `type` discriminator values accepted
// in rule objects (spec §4.1).
const (
	ruleTypeProxy    = "proxy"
	ruleTypeRedirect = "redirect"
	ruleTypeRewrite  = "rewrite"
)

// defaultRedirectStatus is used when a RedirectRule omits `status`.
const defaultRedirectStatus = 302

// validRedirectStatuses are the only semantically meaningful redirect
// codes; others are accepted with a warning (spec §3, §4.3).
var validRedirectStatuses = map[int]bool{
	301: true,
	302: true,
	307: true,
	308: true,
}
