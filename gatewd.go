// Package gatewd is a configuration-driven reverse proxy and edge
// gateway. Its core surface is three calls: Load, Start, and Stop;
// Validate and Log are helpers alongside them.
package gatewd

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
	"github.com/skaznowiecki/gatewd/internal/gatewayhttp"
	"github.com/skaznowiecki/gatewd/internal/metrics"
)

// ProxyConfig is the normalized configuration produced by Load.
type ProxyConfig = gatewayconfig.ProxyConfig

// ValidationResult is returned alongside ProxyConfig by Load, and can
// also be produced on its own by Validate.
type ValidationResult = gatewayconfig.ValidationResult

// Diagnostic is one validation error or warning, carrying a dotted
// path into the source document.
type Diagnostic = gatewayconfig.Diagnostic

// Listeners is the handle Start returns and Stop consumes.
type Listeners = *gatewayhttp.Fabric

// Load parses and normalizes raw JSON configuration into a
// ProxyConfig. The returned ValidationResult is populated even on
// failure, so callers can report every diagnostic rather than just the
// first.
func Load(raw []byte) (*ProxyConfig, *ValidationResult, error) {
	return gatewayconfig.Load(raw)
}

// Validate runs the validator without requiring the document to be
// loadable, for tools that want to preview warnings and errors without
// starting anything.
func Validate(raw []byte) *ValidationResult {
	return gatewayconfig.Validate(raw)
}

// Options configures Start beyond what lives in ProxyConfig itself.
type Options struct {
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	UseProxyProto bool
}

// Start brings up one listener per port named in cfg.Routes, using
// cfg.TLS to decide which of them terminate TLS.
func Start(ctx context.Context, cfg *ProxyConfig, opts Options) (Listeners, error) {
	router := gatewayhttp.NewRouter(cfg.Routes)
	dispatcher := gatewayhttp.NewDispatcher(router, cfg.Defaults, opts.Logger, opts.Metrics)
	fabric := gatewayhttp.NewFabric(dispatcher, opts.Logger, opts.UseProxyProto)

	if err := fabric.Start(ctx, cfg.Routes, cfg.TLS); err != nil {
		return nil, err
	}
	return fabric, nil
}

// Stop gracefully drains every listener Start opened.
func Stop(ctx context.Context, l Listeners) error {
	return l.Stop(ctx)
}

var (
	defaultLogger     *zap.Logger
	defaultLoggerOnce sync.Once
)

// Log returns the process-wide logger, building a production
// zap.Logger the first time it's called. It does not consult
// Options.Logger; Start uses whatever logger Options carries.
func Log() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		defaultLogger = l
	})
	return defaultLogger
}
