package securelog

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper over a zap SugaredLogger that takes key/value pairs.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger for the given mode. "prod" and "production" select
// JSON output at info level; anything else is the development console encoder.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Logger{sugar: zl.Sugar()}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{sugar: zl.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.get().Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.get().Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.get().Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.get().Errorw(msg, kv...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.get().With(kv...)}
}

func (l *Logger) Sync() {
	_ = l.get().Sync()
}

// Failure logs an error without including user-provided data.
// It records the caller location and error type chain.
func (l *Logger) Failure(context string, err error) {
	l.failure(zapcore.ErrorLevel, context, err)
}

// Misuse is Failure at warn level, for errors that point at a caller or
// configuration bug rather than a runtime fault.
func (l *Logger) Misuse(context string, err error) {
	l.failure(zapcore.WarnLevel, context, err)
}

func (l *Logger) failure(level zapcore.Level, context string, err error) {
	if err == nil {
		return
	}
	kv := []any{
		"at", callerLocation(3),
		"types", strings.Join(errorTypes(err), "->"),
	}
	if context != "" {
		kv = append(kv, "context", context)
	}
	if level == zapcore.WarnLevel {
		l.get().Warnw("caller error", kv...)
		return
	}
	l.get().Errorw("error", kv...)
}

func (l *Logger) get() *zap.SugaredLogger {
	if l == nil || l.sugar == nil {
		return zap.NewNop().Sugar()
	}
	return l.sugar
}

func callerLocation(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s:%d %s", file, line, name)
}

func errorTypes(err error) []string {
	types := []string{}
	seen := map[string]struct{}{}
	for err != nil {
		name := fmt.Sprintf("%T", err)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			types = append(types, name)
		}
		err = errors.Unwrap(err)
	}
	return types
}
