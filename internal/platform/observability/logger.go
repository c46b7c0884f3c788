package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shopstream/api/internal/platform/requestctx"
)

// NewLogger builds the process-wide JSON logger. The level comes from
// API_LOG_LEVEL (falling back to LOG_LEVEL, then info) so deployments can
// turn on debug logging without a rebuild. Key names follow the Cloud
// Logging conventions ("severity", "message") used across the service.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.Config{
		Level:             levelFromEnv(),
		Encoding:          "json",
		EncoderConfig:     encoderConfig(),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

func levelFromEnv() zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	for _, name := range []string{"API_LOG_LEVEL", "LOG_LEVEL"} {
		raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
		if raw == "" {
			continue
		}
		if err := level.UnmarshalText([]byte(raw)); err == nil {
			break
		}
	}
	return level
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
	}
}

// WithLogger attaches the logger to ctx for request-scoped retrieval.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// PrintfAdapter lets zap serve dependencies that expect a Printf-style
// logger, such as the idempotency middleware.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter wraps the logger; nil falls back to a discard logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf logs at info level.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Infof(format, args...)
}
