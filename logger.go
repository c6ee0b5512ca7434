package edgeidx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// Logger wraps slog.Logger with edgeidx-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that writes JSON to w (stderr if nil).
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text to w
// (stderr if nil).
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithRank adds the worker rank and group size.
func (l *Logger) WithRank(comm cluster.Comm) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", comm.Rank(), "size", comm.Size()),
	}
}

// WithPopulation adds the population group path.
func (l *Logger) WithPopulation(group string) *Logger {
	return &Logger{
		Logger: l.Logger.With("population", group),
	}
}

// WithDirection adds the index direction.
func (l *Logger) WithDirection(d rangeindex.Direction) *Logger {
	return &Logger{
		Logger: l.Logger.With("direction", d.String()),
	}
}

// LogMemoryEstimate logs the expected per-worker memory before edges are read.
func (l *Logger) LogMemoryEstimate(ctx context.Context, edgesPerWorker, bytes uint64) {
	l.InfoContext(ctx, "reading edges",
		"edges_per_worker", edgesPerWorker,
		"estimated_memory", humanize.IBytes(bytes),
	)
}

// LogBuild logs the local build of one direction.
func (l *Logger) LogBuild(ctx context.Context, nodes, descriptors uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"nodes", nodes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "build completed",
			"nodes", nodes,
			"descriptors", descriptors,
			"duration", duration,
		)
	}
}

// LogExchange logs the outcome of the collective exchange.
func (l *Logger) LogExchange(ctx context.Context, nodeOffset, descriptorOffset, descriptors uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "exchange failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "exchange completed",
			"node_offset", nodeOffset,
			"descriptor_offset", descriptorOffset,
			"descriptors_total", descriptors,
		)
	}
}

// LogWrite logs one worker's part of a direction write.
func (l *Logger) LogWrite(ctx context.Context, rows, bytes uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "write completed",
			"rows", rows,
			"bytes", humanize.IBytes(bytes),
			"duration", duration,
		)
	}
}

// LogPhase logs a lockstep phase transition.
func (l *Logger) LogPhase(phase cluster.Phase, elapsed time.Duration, err error) {
	if err != nil {
		l.Warn("phase failed",
			"phase", phase.String(),
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.Debug("phase completed",
			"phase", phase.String(),
			"elapsed", elapsed,
		)
	}
}

// LogPopulation logs the result of one population in WriteAll.
func (l *Logger) LogPopulation(ctx context.Context, sourceNodes, targetNodes uint64, err error) {
	if err != nil {
		l.WarnContext(ctx, "population skipped",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "population indexed",
			"source_nodes", sourceNodes,
			"target_nodes", targetNodes,
		)
	}
}
