package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationScope = "imarker-server"

// seams for tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel and Graylog integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	gelfWriter *gelf.Writer

	seq atomic.Pointer[seqBinding]
}

// SetupOption enables an optional log sink or decoration.
type SetupOption func(*setupConfig)

type setupConfig struct {
	graylogAddr string
	session     []slog.Attr
}

// WithGraylog ships every record as GELF over UDP to addr.
func WithGraylog(addr string) SetupOption {
	return func(c *setupConfig) {
		c.graylogAddr = addr
	}
}

// WithSession adds fixed session attributes, such as the namespace, to every record.
func WithSession(attrs ...slog.Attr) SetupOption {
	return func(c *setupConfig) {
		c.session = append(c.session, attrs...)
	}
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Records go to file, or to stdout when
// file is nil. If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...SetupOption) {
	cfg := &setupConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	lvl := parseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if provider != nil {
		otelHandler := otelslog.NewHandler(instrumentationScope, otelslog.WithLoggerProvider(provider))
		handlers = append(handlers, otelHandler)
	}

	var gelfErr error
	if m.gelfWriter != nil {
		_ = m.gelfWriter.Close()
		m.gelfWriter = nil
	}
	if cfg.graylogAddr != "" {
		w, err := gelf.NewWriter(cfg.graylogAddr)
		if err != nil {
			gelfErr = err
		} else {
			w.Facility = instrumentationScope
			m.gelfWriter = w
			handlers = append(handlers, slog.NewTextHandler(w, handlerOpts))
		}
	}

	m.logger = slog.New(newSessionHandler(newSinks(handlers...), cfg.session, &m.seq))
	m.logger.Info("Logging initialized", "level", level)
	if gelfErr != nil {
		m.logger.Warn("Graylog disabled", "address", cfg.graylogAddr, "error", gelfErr)
	}
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// BindSeq stamps every later record with src's published sequence number.
// A nil src stops the stamping.
func (m *SlogManager) BindSeq(src SeqSource) {
	if src == nil {
		m.seq.Store(nil)
		return
	}
	m.seq.Store(&seqBinding{src: src})
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close releases the Graylog connection.
func (m *SlogManager) Close() error {
	if m.gelfWriter == nil {
		return nil
	}
	err := m.gelfWriter.Close()
	m.gelfWriter = nil
	return err
}
