// Package logging builds the zap logger shared by the CLI, server and pipeline.
package logging

import (
	"fmt"
	"net/http"

	"github.com/motemen/go-loghttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger; verbose lowers the level to debug.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop returns logger, or a no-op logger when nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// HTTPTransport wraps base so that outgoing requests are logged at debug level.
// When debug logging is disabled base is returned unchanged.
func HTTPTransport(logger *zap.Logger, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil || !logger.Core().Enabled(zapcore.DebugLevel) {
		return base
	}
	return &loghttp.Transport{
		Transport: base,
		LogRequest: func(req *http.Request) {
			logger.Debug("HTTP request",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
			)
		},
		LogResponse: func(resp *http.Response) {
			logger.Debug("HTTP response",
				zap.String("method", resp.Request.Method),
				zap.String("url", resp.Request.URL.String()),
				zap.Int("status_code", resp.StatusCode),
			)
		},
	}
}
