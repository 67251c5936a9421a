package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum log level to output (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is the output format (json, console)
	Format string `yaml:"format"`
	// Output is the output destination (stdout, stderr, or file path)
	Output string `yaml:"output"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	encoding, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = encoding
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zc.OutputPaths = []string{output(cfg.Output)}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// parseLevel converts a string log level to a zap level. An empty level
// means info.
func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: %w", err)
	}
	return l, nil
}

func parseFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("logging: unknown format %q", format)
	}
}

// output maps an output destination to a zap sink URL.
func output(dst string) string {
	switch dst {
	case "", "stderr":
		return "stderr"
	case "stdout":
		return "stdout"
	default:
		return dst
	}
}
