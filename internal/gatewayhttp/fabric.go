package gatewayhttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
)

// Fabric binds one net.Listener per configured port, terminating TLS
// where TLS material is present, and hands every accepted request to a
// Dispatcher (spec §4.5).
type Fabric struct {
	dispatcher    *Dispatcher
	logger        *zap.Logger
	useProxyProto bool

	mu        sync.Mutex
	servers   map[int]*http.Server
	listeners map[int]net.Listener
}

// NewFabric returns a Fabric with no listeners bound yet. When
// useProxyProto is true, every listener is wrapped to parse a leading
// PROXY protocol header, so RemoteAddr reflects the real client behind
// an L4 load balancer.
func NewFabric(dispatcher *Dispatcher, logger *zap.Logger, useProxyProto bool) *Fabric {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fabric{
		dispatcher:    dispatcher,
		logger:        logger,
		useProxyProto: useProxyProto,
		servers:       make(map[int]*http.Server),
		listeners:     make(map[int]net.Listener),
	}
}

// Start binds every port present in routes, in parallel. A bind or
// TLS-load failure is logged and that port alone is skipped; the rest
// continue to start (spec §4.5, §7).
func (f *Fabric) Start(ctx context.Context, routes gatewayconfig.RoutingTable, tlsMaterial map[int]*gatewayconfig.TLSMaterial) error {
	var g errgroup.Group
	for port := range routes {
		port := port
		g.Go(func() error {
			f.startPort(port, tlsMaterial[port])
			return nil
		})
	}
	return g.Wait()
}

func (f *Fabric) startPort(port int, material *gatewayconfig.TLSMaterial) {
	isTLS := material != nil

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		f.logger.Error("binding listener; skipping port", zap.Int("port", port), zap.Error(err))
		return
	}
	if f.useProxyProto {
		ln = &proxyproto.Listener{Listener: ln}
	}

	server := &http.Server{}

	if isTLS {
		tlsConfig, err := loadTLSConfig(material)
		if err != nil {
			f.logger.Error("loading TLS material; skipping port", zap.Int("port", port), zap.Error(err))
			ln.Close()
			return
		}
		server.TLSConfig = tlsConfig
		if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
			f.logger.Warn("enabling http/2 failed", zap.Int("port", port), zap.Error(err))
		}
		ln = tls.NewListener(ln, server.TLSConfig)
	}

	server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.dispatcher.ServeRequest(w, r, port, isTLS)
	})

	f.mu.Lock()
	f.servers[port] = server
	f.listeners[port] = ln
	f.mu.Unlock()

	f.logger.Info("listener started", zap.Int("port", port), zap.Bool("tls", isTLS))
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			f.logger.Error("listener stopped", zap.Int("port", port), zap.Error(err))
		}
	}()
}

func loadTLSConfig(material *gatewayconfig.TLSMaterial) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(material.CertPath, material.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading cert/key pair: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	if material.CAPath != "" {
		caBytes, err := os.ReadFile(material.CAPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", material.CAPath)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}

// Stop gracefully drains every listener's in-flight requests and closes
// the connection pool (spec §4.5, §5).
func (f *Fabric) Stop(ctx context.Context) error {
	f.mu.Lock()
	servers := make([]*http.Server, 0, len(f.servers))
	for _, s := range f.servers {
		servers = append(servers, s)
	}
	f.mu.Unlock()

	var g errgroup.Group
	for _, s := range servers {
		s := s
		g.Go(func() error {
			return s.Shutdown(ctx)
		})
	}
	err := g.Wait()
	f.dispatcher.transport.CloseIdleConnections()
	return err
}

// Ports reports which ports currently have a bound listener, for
// tests and diagnostics.
func (f *Fabric) Ports() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ports := make([]int, 0, len(f.listeners))
	for p := range f.listeners {
		ports = append(ports, p)
	}
	return ports
}
