package gatewayhttp

import (
	"net/http"

	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
)

// ForwardHeaders is the result of applying the header policy: the
// header set to send upstream, and the Host to put on the outbound
// request. An empty Host means "let the transport fill in the
// upstream's own host" rather than passing the client's Host through
// (spec §4.8).
type ForwardHeaders struct {
	Header http.Header
	Host   string
}

// ApplyHeaderPolicy derives the forwarded header set from the inbound
// request's header, client IP, and TLS status (spec §4.8). It is a
// pure function: calling it twice with the same inputs, or reordering
// it relative to target selection, never changes the result (spec §8
// testable property 6).
func ApplyHeaderPolicy(reqHeader http.Header, reqHost, clientIP string, isTLS bool, defaults gatewayconfig.HeaderDefaults) ForwardHeaders {
	out := reqHeader.Clone()

	if defaults.XForwarded {
		if existing := out.Get("X-Forwarded-For"); existing != "" {
			out.Set("X-Forwarded-For", existing+", "+clientIP)
		} else {
			out.Set("X-Forwarded-For", clientIP)
		}
		out.Set("X-Forwarded-Host", reqHost)
		if isTLS {
			out.Set("X-Forwarded-Proto", "https")
		} else {
			out.Set("X-Forwarded-Proto", "http")
		}
	}

	fh := ForwardHeaders{Header: out}
	if defaults.PassHost {
		fh.Host = reqHost
	}
	return fh
}
