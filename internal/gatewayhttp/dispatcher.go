package gatewayhttp

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
	"github.com/skaznowiecki/gatewd/internal/metrics"
)

// Dispatcher is the per-request state machine over the three rule
// variants (spec §4.6). One Dispatcher is shared by every listener the
// fabric opens; it owns the round-robin cursors and the connection
// pool for the whole process.
type Dispatcher struct {
	router    *Router
	selector  *Selector
	transport *TransportPool
	defaults  gatewayconfig.Defaults
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher builds a Dispatcher over router, using defaults for
// the header policy. logger and m may be nil.
func NewDispatcher(router *Router, defaults gatewayconfig.Defaults, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		router:    router,
		selector:  NewSelector(),
		transport: NewTransportPool(),
		defaults:  defaults,
		logger:    logger,
		metrics:   m,
	}
}

// ServeRequest is the entry point every listener in the fabric invokes
// for an accepted request on the given port (spec §4.5, §4.6).
func (d *Dispatcher) ServeRequest(w http.ResponseWriter, r *http.Request, port int, isTLS bool) {
	host := normalizeHost(r.Host)
	forwardURI := r.URL.RequestURI()

	rule, hostKey, pathKey, ok := d.router.Resolve(port, host, r.URL.Path)
	if !ok {
		d.notFound(w, port)
		return
	}
	d.dispatchRule(w, r, port, isTLS, host, rule, hostKey, pathKey, forwardURI)
}

// dispatchRule dispatches one resolved rule. A rewrite is never
// followed a second time: dispatchRewrite itself only ever proxies or
// falls back to a host-map scan, so there is no recursive call back
// into dispatchRule (spec §4.6 step 3, §9).
func (d *Dispatcher) dispatchRule(w http.ResponseWriter, r *http.Request, port int, isTLS bool, host string, rule gatewayconfig.Rule, hostKey, pathKey, forwardURI string) {
	switch rr := rule.(type) {
	case *gatewayconfig.ProxyRule:
		target, idx := d.selector.Next(rr.Targets, port, hostKey, pathKey)
		d.metrics.ObserveCursor(port, hostKey, pathKey, idx)
		d.proxyTo(w, r, port, isTLS, target, forwardURI)

	case *gatewayconfig.RedirectRule:
		d.dispatchRedirect(w, port, rr, forwardURI)

	case *gatewayconfig.RewriteRule:
		d.dispatchRewrite(w, r, port, isTLS, host, rr, forwardURI)

	default:
		d.logger.Error("unreachable rule variant reached dispatcher", zap.Int("port", port))
		d.metrics.ObserveResult(port, "internal_error")
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
	}
}

// dispatchRedirect implements spec §4.6 Redirect: strip_prefix is
// applied to the forwarded path before concatenation with To, and the
// result never touches the connection pool or the round-robin cursor.
func (d *Dispatcher) dispatchRedirect(w http.ResponseWriter, port int, rule *gatewayconfig.RedirectRule, forwardURI string) {
	location := rule.To
	if rule.StripPrefix != "" && strings.HasPrefix(forwardURI, rule.StripPrefix) {
		location = rule.To + strings.TrimPrefix(forwardURI, rule.StripPrefix)
	}
	w.Header().Set("Location", location)
	w.WriteHeader(rule.Status)
	d.metrics.ObserveResult(port, "redirect")
}

// dispatchRewrite implements spec §4.6 Rewrite: U' = rule.To + U is
// re-resolved against the same (port, host). An exact or wildcard-path
// match on a ProxyRule forwards with the ORIGINAL URL U, not U' (spec
// §4.6 step 3, §9); only the scan fallback below uses U'.
func (d *Dispatcher) dispatchRewrite(w http.ResponseWriter, r *http.Request, port int, isTLS bool, host string, rule *gatewayconfig.RewriteRule, originalURI string) {
	rewrittenURI := rule.To + originalURI
	rewrittenPath := requestPath(rewrittenURI)

	reResolved, hostKey, pathKey, ok := d.router.Resolve(port, host, rewrittenPath)
	if ok {
		if proxyRule, isProxy := reResolved.(*gatewayconfig.ProxyRule); isProxy {
			target, idx := d.selector.Next(proxyRule.Targets, port, hostKey, pathKey)
			d.metrics.ObserveCursor(port, hostKey, pathKey, idx)
			d.proxyTo(w, r, port, isTLS, target, originalURI)
			return
		}
		// Re-resolved to a Redirect or another Rewrite: not a direct
		// proxy target, so this falls through to the scan fallback
		// rather than chaining a second rewrite.
	}

	d.fallbackScan(w, r, port, isTLS, host, rewrittenURI)
}

// fallbackScan scans the port's host-map (exact host, else wildcard)
// for any ProxyRule and forwards to its first target using uri as the
// upstream path (spec §4.6 Rewrite step d). Targets beyond the first
// are never consulted here; this path never touches the round-robin
// cursor.
func (d *Dispatcher) fallbackScan(w http.ResponseWriter, r *http.Request, port int, isTLS bool, host, uri string) {
	hostMap, ok := d.router.HostMap(port)
	if !ok {
		d.notFound(w, port)
		return
	}

	pathMap, matched := hostMap[host]
	if !matched {
		pathMap, matched = hostMap[gatewayconfig.WildcardKey]
		if !matched {
			d.notFound(w, port)
			return
		}
	}

	keys := make([]string, 0, len(pathMap))
	for k := range pathMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if proxyRule, isProxy := pathMap[k].(*gatewayconfig.ProxyRule); isProxy {
			d.proxyTo(w, r, port, isTLS, proxyRule.Targets[0], uri)
			return
		}
	}
	d.notFound(w, port)
}

// proxyTo forwards r to target, rewriting the path+query to uri and
// applying the header policy (spec §4.6 Proxy, §4.8).
func (d *Dispatcher) proxyTo(w http.ResponseWriter, r *http.Request, port int, isTLS bool, target *url.URL, uri string) {
	fh := ApplyHeaderPolicy(r.Header, r.Host, remoteIP(r.RemoteAddr), isTLS, d.defaults.Headers)

	outURL := *target
	outURL.Path, outURL.RawPath, outURL.RawQuery = splitRequestURI(uri)

	outreq, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
	if err != nil {
		herr := newHandlerError(http.StatusBadGateway, err)
		d.logger.Error("building forwarded request", zap.String("error_id", herr.ID), zap.Error(herr))
		d.metrics.ObserveResult(port, "bad_gateway")
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
		return
	}
	outreq.Header = fh.Header
	outreq.Host = fh.Host
	outreq.ContentLength = r.ContentLength

	transport := d.transport.Get(target.Scheme, target.Host)
	resp, err := transport.RoundTrip(outreq)
	if err != nil {
		herr := newHandlerError(http.StatusBadGateway, err)
		d.logger.Warn("upstream request failed", zap.String("upstream", target.Host), zap.String("error_id", herr.ID), zap.Error(herr))
		d.metrics.ObserveResult(port, "bad_gateway")
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	// Once the status line has gone out, an upstream I/O failure aborts
	// the client response rather than rewriting the status (spec §4.6
	// Proxy step d).
	if _, err := io.Copy(w, resp.Body); err != nil {
		d.logger.Warn("streaming response body aborted", zap.Error(err))
		panic(http.ErrAbortHandler)
	}
	d.metrics.ObserveResult(port, "ok")
}

func (d *Dispatcher) notFound(w http.ResponseWriter, port int) {
	d.metrics.ObserveResult(port, "not_found")
	http.Error(w, "404 Not Found", http.StatusNotFound)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// remoteIP strips the port from an http.Request's RemoteAddr.
func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// normalizeHost lowercases an inbound Host header and strips any port,
// matching the host-key shape the validator produces (spec §4.2, §4.4).
func normalizeHost(h string) string {
	if h == "" {
		return gatewayconfig.WildcardKey
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return strings.ToLower(h)
}

// requestPath extracts the path component of a path[?query] string.
func requestPath(uri string) string {
	path, _, _ := splitRequestURI(uri)
	return path
}

// splitRequestURI parses a path[?query] string into the fields needed
// to rewrite a target URL's path and query.
func splitRequestURI(uri string) (path, rawPath, rawQuery string) {
	u, err := url.Parse(uri)
	if err != nil {
		return uri, "", ""
	}
	return u.Path, u.RawPath, u.RawQuery
}
