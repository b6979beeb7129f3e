package gatewayhttp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
)

func newTestDispatcher(t *testing.T, table gatewayconfig.RoutingTable, defaults gatewayconfig.Defaults) *Dispatcher {
	t.Helper()
	router := NewRouter(table)
	return NewDispatcher(router, defaults, nil, nil)
}

func TestDispatcher_ProxiesToSingleTarget(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/widgets", r.URL.Path)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	table := gatewayconfig.RoutingTable{
		80: {gatewayconfig.WildcardKey: {gatewayconfig.WildcardKey: &gatewayconfig.ProxyRule{Targets: []*url.URL{target}}}},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestDispatcher_RoundRobinsAcrossRequests(t *testing.T) {
	var seen []string
	upstreamA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "a")
	}))
	defer upstreamA.Close()
	upstreamB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "b")
	}))
	defer upstreamB.Close()

	a, _ := url.Parse(upstreamA.URL)
	b, _ := url.Parse(upstreamB.URL)

	table := gatewayconfig.RoutingTable{
		80: {gatewayconfig.WildcardKey: {gatewayconfig.WildcardKey: &gatewayconfig.ProxyRule{Targets: []*url.URL{a, b}}}},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		d.ServeRequest(rec, req, 80, false)
	}

	assert.Equal(t, []string{"a", "b", "a", "b"}, seen)
}

func TestDispatcher_RedirectWithStripPrefix(t *testing.T) {
	table := gatewayconfig.RoutingTable{
		80: {gatewayconfig.WildcardKey: {gatewayconfig.WildcardKey: &gatewayconfig.RedirectRule{
			To:          "https://cdn.example.com",
			StripPrefix: "/static",
			Status:      301,
		}}},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/static/logo.png", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://cdn.example.com/logo.png", rec.Header().Get("Location"))
}

func TestDispatcher_RewriteForwardsOriginalURLOnExactMatch(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer upstream.Close()
	target, _ := url.Parse(upstream.URL)

	table := gatewayconfig.RoutingTable{
		80: {
			gatewayconfig.WildcardKey: {
				"/old":          &gatewayconfig.RewriteRule{To: "/internal"},
				"/internal/old": &gatewayconfig.ProxyRule{Targets: []*url.URL{target}},
			},
		},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Forwarded with the ORIGINAL URL, not the rewritten one.
	assert.Equal(t, "/old", gotPath)
}

func TestDispatcher_RewriteFallsBackToScanWhenUnresolved(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer upstream.Close()
	target, _ := url.Parse(upstream.URL)

	table := gatewayconfig.RoutingTable{
		80: {
			gatewayconfig.WildcardKey: {
				"/old":             &gatewayconfig.RewriteRule{To: "/internal"},
				"/catch-all-proxy": &gatewayconfig.ProxyRule{Targets: []*url.URL{target}},
			},
		},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Rewritten path "/internal/old" resolves to nothing exact or
	// wildcard, so the scan fallback picks up the only ProxyRule under
	// the host and forwards with the REWRITTEN URL.
	assert.Equal(t, "/internal/old", gotPath)
}

func TestDispatcher_UnresolvedRouteReturns404(t *testing.T) {
	d := newTestDispatcher(t, gatewayconfig.RoutingTable{}, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatcher_UnreachableUpstreamReturns502(t *testing.T) {
	target, _ := url.Parse("http://127.0.0.1:1")
	table := gatewayconfig.RoutingTable{
		80: {gatewayconfig.WildcardKey: {gatewayconfig.WildcardKey: &gatewayconfig.ProxyRule{Targets: []*url.URL{target}}}},
	}
	d := newTestDispatcher(t, table, gatewayconfig.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDispatcher_AppliesHeaderPolicyToUpstreamRequest(t *testing.T) {
	var gotHost, gotXFF string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotXFF = r.Header.Get("X-Forwarded-For")
	}))
	defer upstream.Close()
	target, _ := url.Parse(upstream.URL)

	table := gatewayconfig.RoutingTable{
		80: {gatewayconfig.WildcardKey: {gatewayconfig.WildcardKey: &gatewayconfig.ProxyRule{Targets: []*url.URL{target}}}},
	}
	defaults := gatewayconfig.Defaults{Headers: gatewayconfig.HeaderDefaults{XForwarded: true, PassHost: true}}
	d := newTestDispatcher(t, table, defaults)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "public.example.com"
	req.RemoteAddr = "203.0.113.9:54321"
	rec := httptest.NewRecorder()
	d.ServeRequest(rec, req, 80, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public.example.com", gotHost)
	assert.Equal(t, "203.0.113.9", gotXFF)
}
