package log

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

var innerLogger atomic.Pointer[Logger]

// Options configures a zap-backed Logger.
type Options struct {
	Level Level
	// Format is "json" or "console".
	Format string
	// Outputs are zap sink URLs or paths; stderr when empty.
	Outputs []string
	// Sampled drops repeated entries past 100 per second per message.
	Sampled bool
}

func DefaultOptions(level Level) Options {
	return Options{
		Level:   level,
		Format:  "json",
		Outputs: []string{"stderr"},
		Sampled: true,
	}
}

type Logger struct {
	zapLogger *zap.Logger
	level     zap.AtomicLevel
}

// New builds a JSON logger writing to stderr and panics if zap rejects the
// configuration.
func New(level Level) *Logger {
	logger, err := NewWithOptions(DefaultOptions(level))
	if err != nil {
		panic(err)
	}
	return logger
}

// NewWithOptions builds a logger from opts. The first logger built becomes
// the one returned by Provide.
func NewWithOptions(opts Options) (*Logger, error) {
	if len(opts.Outputs) == 0 {
		opts.Outputs = []string{"stderr"}
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch opts.Format {
	case "", "json":
		opts.Format = "json"
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	atomicLevel := zap.NewAtomicLevelAt(levelToZap[opts.Level])
	config := zap.Config{
		Level:            atomicLevel,
		Encoding:         opts.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      opts.Outputs,
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	if opts.Sampled {
		config.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	zapLogger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	logger := &Logger{zapLogger: zapLogger, level: atomicLevel}
	innerLogger.CompareAndSwap(nil, logger)
	return logger, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		zapLogger: zap.NewNop(),
		level:     zap.NewAtomicLevelAt(zap.FatalLevel),
	}
}

// Provide returns the first logger built with New, or a no-op logger.
func Provide() *Logger {
	if logger := innerLogger.Load(); logger != nil {
		return logger
	}
	return NewNop()
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(zap.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(zap.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(zap.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(zap.ErrorLevel, msg, fields) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.log(zap.FatalLevel, msg, fields) }

func (l *Logger) log(level zapcore.Level, msg string, fields []Field) {
	if ce := l.zapLogger.Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields...)...)
	}
}

// With returns a child sharing the parent's level.
func (l *Logger) With(fields ...Field) Log {
	return &Logger{
		zapLogger: l.zapLogger.With(toZapFields(fields...)...),
		level:     l.level,
	}
}

// WithContext returns the receiver; contexts carry no log fields yet.
func (l *Logger) WithContext(_ context.Context) Log {
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(levelToZap[level])
}

func (l *Logger) GetLevel() Level {
	for level, zl := range levelToZap {
		if zl == l.level.Level() {
			return level
		}
	}
	return LevelInfo
}

func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

var levelToZap = map[Level]zapcore.Level{
	LevelDebug: zap.DebugLevel,
	LevelInfo:  zap.InfoLevel,
	LevelWarn:  zap.WarnLevel,
	LevelError: zap.ErrorLevel,
	LevelFatal: zap.FatalLevel,
}

func (f Field) toZap() zap.Field {
	switch f.Type {
	case BoolType:
		return zap.Bool(f.Key, f.Value.(bool))
	case DurationType:
		return zap.Duration(f.Key, f.Value.(time.Duration))
	case IntType:
		return zap.Int(f.Key, f.Value.(int))
	case Int64Type:
		return zap.Int64(f.Key, f.Value.(int64))
	case Int32Type:
		return zap.Int32(f.Key, f.Value.(int32))
	case StringType:
		return zap.String(f.Key, f.Value.(string))
	case Uint64Type:
		return zap.Uint64(f.Key, f.Value.(uint64))
	case Uint32Type:
		return zap.Uint32(f.Key, f.Value.(uint32))
	case ErrorType:
		err, _ := f.Value.(error)
		return zap.NamedError(f.Key, err)
	default:
		return zap.Any(f.Key, f.Value)
	}
}

func toZapFields(fields ...Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = f.toZap()
	}
	return out
}
