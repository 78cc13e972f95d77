package logger

import (
	"context"
	"os"
	"strconv"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter implements the domain.Logger interface using Zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a new ZapAdapter.
// It configures Zap based on the provided application configuration.
func NewZapAdapter(cfgProvider config.Provider, serviceName string) (domain.Logger, error) {
	appConfig := cfgProvider.Get()
	logLevel := appConfig.Log.Level

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(logLevel)); err != nil {
		zapLevel = zapcore.InfoLevel // Default to InfoLevel if parsing fails
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
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Errors, Fatals to stderr; Info, Debug, Warn to stdout
	infoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel && lvl < zapcore.ErrorLevel
	})
	errorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel && lvl >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stdout), infoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stderr), errorLevel),
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	zapLogger = zapLogger.With(zap.String("service", serviceName))

	return &ZapAdapter{logger: zapLogger}, nil
}

// NewFromZap wraps an already configured zap logger, e.g. zap.NewNop() in tests.
func NewFromZap(l *zap.Logger) domain.Logger {
	return &ZapAdapter{logger: l}
}

func (za *ZapAdapter) extractFieldsFromContext(ctx context.Context, additionalFields []any) []zap.Field {
	fields := make([]zap.Field, 0, len(additionalFields)/2+3)

	if ctx != nil {
		if requestID, ok := ctx.Value(contextkeys.RequestIDKey).(string); ok && requestID != "" {
			fields = append(fields, zap.String(string(contextkeys.RequestIDKey), requestID))
		}
		if userID, ok := ctx.Value(contextkeys.UserIDKey).(int); ok {
			fields = append(fields, zap.Int(string(contextkeys.UserIDKey), userID))
		}
		if resource, ok := ctx.Value(contextkeys.ResourceKey).(string); ok && resource != "" {
			fields = append(fields, zap.String(string(contextkeys.ResourceKey), resource))
		}
	}

	return append(fields, toZapFields(additionalFields)...)
}

// toZapFields converts alternating key/value pairs. Malformed pairs are kept under
// positional keys instead of being dropped.
func toZapFields(args []any) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields = append(fields, zap.Any("orphan_field_"+strconv.Itoa(i), args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			fields = append(fields, zap.Any("invalid_key_"+strconv.Itoa(i), args[i]))
			fields = append(fields, zap.Any("invalid_value_"+strconv.Itoa(i+1), args[i+1]))
			continue
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func (za *ZapAdapter) Debug(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	za.logger.Debug(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Info(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.InfoLevel) {
		return
	}
	za.logger.Info(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.WarnLevel) {
		return
	}
	za.logger.Warn(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Error(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.ErrorLevel) {
		return
	}
	za.logger.Error(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Fatal(ctx context.Context, msg string, args ...any) {
	// Fatal should always log, regardless of core enablement check for other levels
	za.logger.Fatal(msg, za.extractFieldsFromContext(ctx, args)...) // Zap's Fatal logs and then calls os.Exit(1)
}

func (za *ZapAdapter) With(args ...any) domain.Logger {
	return &ZapAdapter{logger: za.logger.With(toZapFields(args)...)}
}

// Sync flushes buffered entries.
func (za *ZapAdapter) Sync() error {
	return za.logger.Sync()
}
