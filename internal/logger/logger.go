package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the structured logger used by the API server
func New(env string) (*zap.Logger, error) {
	return build(env, "stdout")
}

// NewCLI creates a logger for the storefront client. Output goes to stderr so
// command results on stdout stay machine-readable.
func NewCLI(env string) (*zap.Logger, error) {
	return build(env, "stderr")
}

// NewWithWriter creates a logger that writes to w using the encoder selected by env
func NewWithWriter(env string, w io.Writer) *zap.Logger {
	core := zapcore.NewCore(newEncoder(env), zapcore.AddSync(w), levelFor(env))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func build(env string, output string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Encoding = "json"
		config.EncoderConfig = productionEncoderConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

func productionEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newEncoder(env string) zapcore.Encoder {
	if env == "production" {
		return zapcore.NewJSONEncoder(productionEncoderConfig())
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	return zapcore.NewConsoleEncoder(cfg)
}

func levelFor(env string) zapcore.Level {
	if env == "production" {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}
