// Package logger provides the structured logger shared by the deployer packages.
package logger

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the structured logger passed to every component. *zap.SugaredLogger satisfies the
// logging methods. Loggers are always injected; tests use Test, TestObserved or Nop.
type Logger interface {
	Name() string

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	Sync() error
}

// Options configure the CLI logger.
type Options struct {
	// Level is a zap level name. Empty means info.
	Level string
	// Console selects the human readable encoder instead of JSON.
	Console bool
}

// New builds a logger for opts.
func New(opts Options) (Logger, error) {
	lvl := zapcore.InfoLevel
	if opts.Level != "" {
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	if opts.Console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &sugared{z.Sugar()}, nil
}

// Named returns a child of l named after a component, e.g. the network a run targets. Loggers
// not built by this package are returned unchanged.
func Named(l Logger, name string) Logger {
	if s, ok := l.(*sugared); ok {
		return &sugared{s.SugaredLogger.Named(name)}
	}

	return l
}

// With returns a child of l that adds keysAndValues to every entry.
func With(l Logger, keysAndValues ...any) Logger {
	if s, ok := l.(*sugared); ok {
		return &sugared{s.SugaredLogger.With(keysAndValues...)}
	}

	return l
}

// Test returns a debug level logger writing to tb.
func Test(tb testing.TB) Logger {
	tb.Helper()

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zaptest.NewTestingWriter(tb), zapcore.DebugLevel)

	return &sugared{zap.New(core).Sugar()}
}

// TestObserved is Test plus the entries logged at lvl or above, for assertions.
func TestObserved(tb testing.TB, lvl zapcore.Level) (Logger, *observer.ObservedLogs) {
	tb.Helper()

	core, logs := observer.New(lvl)
	tee := zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	})

	return &sugared{zaptest.NewLogger(tb, zaptest.WrapOptions(tee)).Sugar()}, logs
}

// Nop discards everything.
func Nop() Logger {
	return &sugared{zap.NewNop().Sugar()}
}

type sugared struct {
	*zap.SugaredLogger
}

func (s *sugared) Name() string {
	return s.Desugar().Name()
}
