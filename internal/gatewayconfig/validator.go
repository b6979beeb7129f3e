package gatewayconfig

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationResult is the outcome of validating a raw configuration
// document, independent of whether it is subsequently loaded (spec
// §4.3). Normalized is populated only when Valid is true.
type ValidationResult struct {
	Valid      bool         `json:"valid"`
	Errors     []Diagnostic `json:"errors"`
	Warnings   []Diagnostic `json:"warnings"`
	Normalized *ProxyConfig `json:"normalized,omitempty"`
}

// Validate parses and normalizes raw JSON configuration, accumulating
// every structural, semantic, and shadowing diagnostic it finds rather
// than stopping at the first problem. It never returns a Go error: a
// document that fails to parse as a JSON object is itself reported as
// an INVALID_JSON diagnostic.
func Validate(raw []byte) *ValidationResult {
	sink := &diagnosticSink{}

	topKeys, top, err := orderedObject(json.RawMessage(raw))
	if err != nil {
		sink.addError(CodeInvalidJSON, "", "document does not parse as a JSON object: %v", err)
		return &ValidationResult{Valid: false, Errors: sink.errors, Warnings: sink.warnings}
	}

	cfg := normalizeDocument(sink, topKeys, top)

	result := &ValidationResult{
		Valid:    len(sink.errors) == 0,
		Errors:   sink.errors,
		Warnings: sink.warnings,
	}
	if result.Valid {
		result.Normalized = cfg
	}
	return result
}

func normalizeDocument(sink *diagnosticSink, topKeys []string, top map[string]json.RawMessage) *ProxyConfig {
	cfg := &ProxyConfig{
		Routes: RoutingTable{},
		TLS:    map[int]*TLSMaterial{},
	}

	portCount := 0
	for _, key := range topKeys {
		if key == keyDefaults {
			cfg.Defaults = decodeDefaults(sink, top[key])
			continue
		}

		port, err := strconv.Atoi(key)
		if err != nil || port < 1 || port > 65535 {
			sink.addError(CodeInvalidPort, key, "port key %q must be an integer in [1, 65535]", key)
			continue
		}
		portCount++

		hostMap := decodePortEntry(sink, key, top[key], cfg.TLS, port)
		if hostMap != nil {
			cfg.Routes[port] = hostMap
		}
	}

	if portCount == 0 {
		sink.addWarning(CodeEmptyConfig, "", "configuration has no port entries")
	}
	return cfg
}

// inlineRuleKeys are the field names that mark an object as a rule
// config rather than a map of path-keys, used to generalize spec §4.1's
// "rule authored as an object" to the port level (SPEC_FULL "rule
// object directly under a port").
var inlineRuleKeys = map[string]bool{
	"type": true, "to": true, "status": true,
	"strip_prefix": true, "health_check": true,
}

func isInlineRuleShape(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !inlineRuleKeys[k] {
			return false
		}
	}
	return true
}

// decodePortEntry normalizes one of the three port-value shapes from
// spec §4.2 into a HostMap, lifting the reserved `tls` key into tlsOut
// first so the remainder can be handled without routing intent leaking
// into reserved-key iteration (spec §9).
func decodePortEntry(sink *diagnosticSink, portPath string, raw json.RawMessage, tlsOut map[int]*TLSMaterial, port int) HostMap {
	if s, ok := asString(raw); ok {
		// Shape 1: bare origin URL string.
		u, valid := validateOriginURL(sink, portPath, s)
		if !valid {
			return nil
		}
		return HostMap{WildcardKey: PathMap{WildcardKey: &ProxyRule{Targets: []*url.URL{u}}}}
	}

	if !looksLikeObject(raw) {
		sink.addError(CodeInvalidRuleType, portPath, "port entry must be a URL string or an object")
		return nil
	}

	keys, values, err := orderedObject(raw)
	if err != nil {
		sink.addError(CodeInvalidJSON, portPath, "malformed port entry: %v", err)
		return nil
	}

	if tlsRaw, ok := values[keyTLS]; ok {
		if mat := decodeTLSMaterial(sink, portPath+".tls", tlsRaw); mat != nil {
			tlsOut[port] = mat
		}
	}

	if hostsRaw, ok := values[keyHosts]; ok {
		// Shape 2: object with reserved "hosts" key.
		return decodeHostsObject(sink, portPath, hostsRaw)
	}

	// Shape 3: object without "hosts". The remainder (minus "tls") is
	// either a path-map for host "*", or a single inline rule for "*"/"*".
	remainder := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != keyTLS {
			remainder = append(remainder, k)
		}
	}
	if isInlineRuleShape(remainder) {
		rule := decodeRuleConfig(sink, portPath, raw)
		if rule == nil {
			return nil
		}
		return HostMap{WildcardKey: PathMap{WildcardKey: rule}}
	}

	pathMap := decodePathsObject(sink, portPath, remainder, values)
	if pathMap == nil {
		return nil
	}
	return HostMap{WildcardKey: pathMap}
}

func decodeHostsObject(sink *diagnosticSink, portPath string, hostsRaw json.RawMessage) HostMap {
	keys, values, err := orderedObject(hostsRaw)
	if err != nil {
		sink.addError(CodeInvalidJSON, portPath+".hosts", "malformed hosts object: %v", err)
		return nil
	}

	hostMap := HostMap{}
	var seenWildcard bool
	var wildcardPath string
	var warnedShadow bool

	for _, hostKey := range keys {
		hostPath := fmt.Sprintf("%s.hosts.%s", portPath, hostKey)
		if hostKey == WildcardKey {
			seenWildcard = true
			wildcardPath = hostPath
		} else if seenWildcard && !warnedShadow {
			sink.addWarning(CodeShadowedHost, wildcardPath, "wildcard host-key appears before host %q in document order", hostKey)
			warnedShadow = true
		}

		pathMap := decodeHostConfig(sink, hostPath, values[hostKey])
		if pathMap != nil {
			hostMap[hostKey] = pathMap
		}
	}

	if len(hostMap) == 0 {
		return nil
	}
	return hostMap
}

func decodeHostConfig(sink *diagnosticSink, hostPath string, raw json.RawMessage) PathMap {
	if s, ok := asString(raw); ok {
		u, valid := validateOriginURL(sink, hostPath, s)
		if !valid {
			return nil
		}
		return PathMap{WildcardKey: &ProxyRule{Targets: []*url.URL{u}}}
	}

	if !looksLikeObject(raw) {
		sink.addError(CodeInvalidRuleType, hostPath, "host entry must be a URL string or an object of paths")
		return nil
	}

	keys, values, err := orderedObject(raw)
	if err != nil {
		sink.addError(CodeInvalidJSON, hostPath, "malformed host entry: %v", err)
		return nil
	}
	return decodePathsObject(sink, hostPath, keys, values)
}

func decodePathsObject(sink *diagnosticSink, scopePath string, keys []string, values map[string]json.RawMessage) PathMap {
	pathMap := PathMap{}
	var seenWildcard bool
	var wildcardPath string
	var warnedShadow bool

	for _, pathKey := range keys {
		nodePath := fmt.Sprintf("%s.%s", scopePath, pathKey)
		if pathKey != WildcardKey && !strings.HasPrefix(pathKey, "/") {
			sink.addError(CodeMalformedPathKey, nodePath, "path-key %q must begin with '/' or be exactly '*'", pathKey)
			continue
		}
		if pathKey == WildcardKey {
			seenWildcard = true
			wildcardPath = nodePath
		} else if seenWildcard && !warnedShadow {
			sink.addWarning(CodeShadowedPath, wildcardPath, "wildcard path-key appears before path %q in document order", pathKey)
			warnedShadow = true
		}

		rule := decodeRuleConfig(sink, nodePath, values[pathKey])
		if rule != nil {
			pathMap[pathKey] = rule
		}
	}

	if len(pathMap) == 0 {
		return nil
	}
	return pathMap
}

// rawRuleFields mirrors the JSON shape of a rule object (spec §6).
type rawRuleFields struct {
	Type        string          `json:"type"`
	To          json.RawMessage `json:"to"`
	Status      *int            `json:"status"`
	StripPrefix string          `json:"strip_prefix"`
	HealthCheck json.RawMessage `json:"health_check"`
}

func decodeRuleConfig(sink *diagnosticSink, path string, raw json.RawMessage) Rule {
	if s, ok := asString(raw); ok {
		u, valid := validateOriginURL(sink, path, s)
		if !valid {
			return nil
		}
		return &ProxyRule{Targets: []*url.URL{u}}
	}

	if !looksLikeObject(raw) {
		sink.addError(CodeInvalidRuleType, path, "rule must be a URL string or an object")
		return nil
	}

	var fields rawRuleFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		sink.addError(CodeInvalidRuleType, path, "malformed rule object: %v", err)
		return nil
	}

	typ := fields.Type
	if typ == "" {
		typ = ruleTypeProxy
	}

	switch typ {
	case ruleTypeProxy:
		return decodeProxyRule(sink, path, fields)
	case ruleTypeRedirect:
		return decodeRedirectRule(sink, path, fields)
	case ruleTypeRewrite:
		return decodeRewriteRule(sink, path, fields)
	default:
		sink.addError(CodeInvalidRuleType, path+".type", "unknown rule type %q", fields.Type)
		return nil
	}
}

func decodeProxyRule(sink *diagnosticSink, path string, fields rawRuleFields) Rule {
	if len(fields.To) == 0 {
		sink.addError(CodeMissingRequiredField, path, "proxy rule missing required field 'to'")
		return nil
	}

	var targetsRaw []string
	if s, ok := asString(fields.To); ok {
		targetsRaw = []string{s}
	} else if err := json.Unmarshal(fields.To, &targetsRaw); err != nil {
		sink.addError(CodeInvalidURL, path+".to", "'to' must be a URL string or a sequence of URL strings")
		return nil
	}

	if len(targetsRaw) == 0 {
		sink.addError(CodeEmptyTarget, path+".to", "proxy rule has no targets")
		return nil
	}

	targets := make([]*url.URL, 0, len(targetsRaw))
	ok := true
	for i, t := range targetsRaw {
		elemPath := fmt.Sprintf("%s.to[%d]", path, i)
		if t == "" {
			sink.addError(CodeEmptyTarget, elemPath, "target is empty")
			ok = false
			continue
		}
		u, valid := validateOriginURL(sink, elemPath, t)
		if !valid {
			ok = false
			continue
		}
		targets = append(targets, u)
	}
	if !ok || len(targets) == 0 {
		return nil
	}

	return &ProxyRule{Targets: targets, HealthCheck: fields.HealthCheck}
}

func decodeRedirectRule(sink *diagnosticSink, path string, fields rawRuleFields) Rule {
	if len(fields.To) == 0 {
		sink.addError(CodeMissingRequiredField, path, "redirect rule missing required field 'to'")
		return nil
	}
	to, ok := asString(fields.To)
	if !ok {
		sink.addError(CodeInvalidURL, path+".to", "redirect 'to' must be a string")
		return nil
	}
	if to == "" {
		sink.addError(CodeEmptyTarget, path+".to", "redirect target is empty")
		return nil
	}
	if !validateRedirectTarget(sink, path+".to", to) {
		return nil
	}

	status := defaultRedirectStatus
	if fields.Status != nil {
		status = *fields.Status
		if !validRedirectStatuses[status] {
			sink.addWarning(CodeInvalidRedirectStatus, path+".status", "status %d is not one of 301, 302, 307, 308", status)
		}
	}

	return &RedirectRule{To: to, StripPrefix: fields.StripPrefix, Status: status}
}

func decodeRewriteRule(sink *diagnosticSink, path string, fields rawRuleFields) Rule {
	if len(fields.To) == 0 {
		sink.addError(CodeMissingRequiredField, path, "rewrite rule missing required field 'to'")
		return nil
	}
	to, ok := asString(fields.To)
	if !ok {
		sink.addError(CodeInvalidURL, path+".to", "rewrite 'to' must be a string")
		return nil
	}
	if !validateRewriteTarget(sink, path+".to", to) {
		return nil
	}
	return &RewriteRule{To: to}
}

func validateOriginURL(sink *diagnosticSink, path, raw string) (*url.URL, bool) {
	if raw == "" {
		sink.addError(CodeEmptyTarget, path, "target is empty")
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		sink.addError(CodeInvalidURL, path, "invalid URL %q: %v", raw, err)
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		sink.addError(CodeInvalidProtocol, path, "scheme must be http or https, got %q", u.Scheme)
		return nil, false
	}
	if u.Hostname() == "" {
		sink.addError(CodeMissingHostname, path, "URL %q has no hostname", raw)
		return nil, false
	}
	return u, true
}

// validateRedirectTarget allows a RedirectRule's `to` to be either a
// well-formed http/https URL or a path beginning with '/' (spec §3,
// §4.3). It assumes the caller already rejected an empty string.
func validateRedirectTarget(sink *diagnosticSink, path, raw string) bool {
	if len(raw) > 0 && raw[0] == '/' {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		sink.addError(CodeInvalidURL, path, "redirect target %q is neither an absolute URL nor a path beginning with '/'", raw)
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		sink.addError(CodeInvalidProtocol, path, "scheme must be http or https, got %q", u.Scheme)
		return false
	}
	if u.Hostname() == "" {
		sink.addError(CodeMissingHostname, path, "URL %q has no hostname", raw)
		return false
	}
	return true
}

// validateRewriteTarget requires a RewriteRule's `to` to be a non-empty
// path fragment beginning with '/' (spec §3, §4.3).
func validateRewriteTarget(sink *diagnosticSink, path, raw string) bool {
	if raw == "" {
		sink.addError(CodeEmptyTarget, path, "rewrite target is empty")
		return false
	}
	if raw[0] != '/' {
		sink.addError(CodeInvalidURL, path, "rewrite target %q must begin with '/'", raw)
		return false
	}
	return true
}

type rawTLSMaterial struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
	CA   string `json:"ca"`
}

func decodeTLSMaterial(sink *diagnosticSink, path string, raw json.RawMessage) *TLSMaterial {
	var rt rawTLSMaterial
	if err := json.Unmarshal(raw, &rt); err != nil {
		sink.addError(CodeInvalidJSON, path, "malformed tls block: %v", err)
		return nil
	}
	if rt.Cert == "" || rt.Key == "" {
		sink.addError(CodeMissingRequiredField, path, "tls block requires 'cert' and 'key'")
		return nil
	}
	return &TLSMaterial{CertPath: rt.Cert, KeyPath: rt.Key, CAPath: rt.CA}
}

type rawDefaults struct {
	Headers *struct {
		XForwarded *bool `json:"x_forwarded"`
		PassHost   *bool `json:"pass_host"`
	} `json:"headers"`
	TimeoutMS int `json:"timeout_ms"`
	Retries   *struct {
		Attempts  int `json:"attempts"`
		BackoffMS int `json:"backoff_ms"`
	} `json:"retries"`
}

func decodeDefaults(sink *diagnosticSink, raw json.RawMessage) Defaults {
	var rd rawDefaults
	if err := json.Unmarshal(raw, &rd); err != nil {
		sink.addError(CodeInvalidJSON, keyDefaults, "malformed __defaults block: %v", err)
		return Defaults{}
	}

	var d Defaults
	if rd.Headers != nil {
		if rd.Headers.XForwarded != nil {
			d.Headers.XForwarded = *rd.Headers.XForwarded
		}
		if rd.Headers.PassHost != nil {
			d.Headers.PassHost = *rd.Headers.PassHost
		}
	}
	d.TimeoutMS = rd.TimeoutMS
	if rd.Retries != nil {
		d.Retries.Attempts = rd.Retries.Attempts
		d.Retries.BackoffMS = rd.Retries.BackoffMS
	}
	return d
}
