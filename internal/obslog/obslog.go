// Package obslog sets up this module's observability stack: a
// multi-sink slog.Logger for structured events (including Ctx.Trace
// output), a zap SugaredLogger for per-message hot-path logging, and an otel
// tracer for per-LWN spans. Grounded on internal/logging.SetupLogger.
package obslog

import (
	"context"
	"log/slog"
	"os"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName identifies the tracer the demo driver pulls spans from.
const TracerName = "corebuf/pipeline"

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Stack bundles the loggers and tracer a running process needs: Log for
// Ctx.Error/Warning/Trace, Hot for the writer's per-message logging, and
// Tracer for per-LWN spans.
type Stack struct {
	Log    *slog.Logger
	Hot    *zap.SugaredLogger
	Tracer trace.Tracer
}

// Setup initializes the global logging/tracing stack and returns a
// cleanup function to flush and close every sink.
func Setup(seqURL string) (*Stack, func(), error) {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})

	var handler slog.Handler = consoleHandler
	var seqClose func()

	if seqURL != "" {
		_, seqHandler := slogseq.NewLogger(
			seqURL,
			slogseq.WithBatchSize(1),
			slogseq.WithFlushInterval(500*time.Millisecond),
			slogseq.WithHandlerOptions(&slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
		if seqHandler != nil {
			handler = &multiHandler{handlers: []slog.Handler{consoleHandler, seqHandler}}
			seqClose = seqHandler.Close
		}
	}

	log := slog.New(handler)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(provider)
	tracer := provider.Tracer(TracerName)

	stack := &Stack{
		Log:    log,
		Hot:    zapLogger.Sugar(),
		Tracer: tracer,
	}

	closeFn := func() {
		if seqClose != nil {
			seqClose()
		}
		_ = zapLogger.Sync()
		_ = provider.Shutdown(context.Background())
	}

	return stack, closeFn, nil
}
