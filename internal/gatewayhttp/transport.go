package gatewayhttp

import (
	"net/http"
	"sync"
	"time"
)

const (
	maxConnsPerUpstream     = 100
	maxIdleConnsPerUpstream = 10
	idleConnTimeout         = 60 * time.Second
)

// TransportPool lazily creates and caches one *http.Transport per
// upstream scheme+host:port, so the dispatcher reuses TCP connections
// across requests instead of opening one per request (spec §4.6e, §5,
// §9 "Connection pooling").
type TransportPool struct {
	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewTransportPool returns an empty pool.
func NewTransportPool() *TransportPool {
	return &TransportPool{transports: make(map[string]*http.Transport)}
}

// Get returns the transport for scheme+hostport, creating it on first
// use.
func (p *TransportPool) Get(scheme, hostport string) *http.Transport {
	key := scheme + "://" + hostport

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.transports[key]; ok {
		return t
	}
	t := &http.Transport{
		MaxConnsPerHost:     maxConnsPerUpstream,
		MaxIdleConnsPerHost: maxIdleConnsPerUpstream,
		IdleConnTimeout:     idleConnTimeout,
	}
	p.transports[key] = t
	return t
}

// CloseIdleConnections drains every pooled transport's idle sockets,
// called when the fabric shuts down (spec §4.5).
func (p *TransportPool) CloseIdleConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		t.CloseIdleConnections()
	}
}
