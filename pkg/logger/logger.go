// Package logger builds the zap logger shared by every Grove component.
// New is called once at startup; components derive their own loggers from
// the result with Named.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceField = "grove"

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum level to emit ("debug", "info", "warn",
	// "error"). Unrecognized values fall back to info.
	Level string `yaml:"level"`
	// Format selects the encoder: "console" for development output,
	// anything else means JSON.
	Format string `yaml:"format"`
	// OutputFile is the log destination: "stdout" (the default), "stderr",
	// or a file path opened in append mode.
	OutputFile string `yaml:"output_file"`
}

// New creates a zap.Logger from config.
func New(config Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(config.Level))); err != nil {
			level.SetLevel(zap.InfoLevel)
		}
	}

	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(config.Format), sink, level)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", serviceField)),
	), nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		f, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(f), nil
	}
}
