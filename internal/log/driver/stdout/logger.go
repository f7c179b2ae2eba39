package stdout

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/songzhibin97/qwork/pkg/log"
)

// StdoutLogger implements log.Logger on top of a zap core writing to stdout.
type StdoutLogger struct {
	zapLogger *zap.Logger
	level     log.Level
}

// New creates a new StdoutLogger with the given configuration.
func New(config *Config) (*StdoutLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder(config.TimeFormat),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if config.Format == FormatConsole {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var out io.Writer = os.Stdout
	if config.Output != nil {
		out = config.Output
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zapLevel(config.Level))

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &StdoutLogger{
		zapLogger: zap.New(core, options...),
		level:     config.Level,
	}, nil
}

// Debug logs a debug message.
func (l *StdoutLogger) Debug(msg string, fields ...log.Field) {
	l.log(log.DebugLevel, msg, fields)
}

// Info logs an informational message.
func (l *StdoutLogger) Info(msg string, fields ...log.Field) {
	l.log(log.InfoLevel, msg, fields)
}

// Warn logs a warning message.
func (l *StdoutLogger) Warn(msg string, fields ...log.Field) {
	l.log(log.WarnLevel, msg, fields)
}

// Error logs an error message.
func (l *StdoutLogger) Error(msg string, fields ...log.Field) {
	l.log(log.ErrorLevel, msg, fields)
}

// Fatal logs a fatal message and exits the program.
func (l *StdoutLogger) Fatal(msg string, fields ...log.Field) {
	l.zapLogger.Fatal(msg, zapFields(fields)...)
}

// With creates a child logger with additional structured fields.
func (l *StdoutLogger) With(fields ...log.Field) log.Logger {
	if len(fields) == 0 {
		return l
	}
	return &StdoutLogger{
		zapLogger: l.zapLogger.With(zapFields(fields)...),
		level:     l.level,
	}
}

// WithContext creates a child logger carrying the request, account and
// trace identifiers found in ctx.
func (l *StdoutLogger) WithContext(ctx context.Context) log.Logger {
	fields := log.ContextFields(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, log.String(log.FieldTraceID, sc.TraceID().String()))
	}
	return l.With(fields...)
}

// Sync flushes buffered entries.
func (l *StdoutLogger) Sync() error {
	return l.zapLogger.Sync()
}

func (l *StdoutLogger) log(level log.Level, msg string, fields []log.Field) {
	if level < l.level {
		return
	}

	zf := zapFields(fields)
	switch level {
	case log.DebugLevel:
		l.zapLogger.Debug(msg, zf...)
	case log.InfoLevel:
		l.zapLogger.Info(msg, zf...)
	case log.WarnLevel:
		l.zapLogger.Warn(msg, zf...)
	default:
		l.zapLogger.Error(msg, zf...)
	}
}

func zapLevel(level log.Level) zapcore.Level {
	switch level {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func zapFields(fields []log.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, field := range fields {
		out[i] = zapField(field)
	}
	return out
}

func zapField(field log.Field) zap.Field {
	switch v := field.Value.(type) {
	case string:
		return zap.String(field.Key, v)
	case int:
		return zap.Int(field.Key, v)
	case int64:
		return zap.Int64(field.Key, v)
	case float64:
		return zap.Float64(field.Key, v)
	case bool:
		return zap.Bool(field.Key, v)
	case time.Time:
		return zap.Time(field.Key, v)
	case time.Duration:
		return zap.Duration(field.Key, v)
	case error:
		return zap.NamedError(field.Key, v)
	default:
		return zap.Any(field.Key, v)
	}
}

func timeEncoder(format string) zapcore.TimeEncoder {
	switch format {
	case time.RFC3339:
		return zapcore.RFC3339TimeEncoder
	case time.RFC3339Nano:
		return zapcore.RFC3339NanoTimeEncoder
	default:
		return func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format(format))
		}
	}
}
