// Package logging builds the zap logger shared by the CLI commands.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger tuned by environment name: JSON output in
// production, colored console output otherwise. LOG_LEVEL overrides the
// default level in either mode.
func New(environment string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			cfg.Level.SetLevel(parsed)
		}
	}
	return cfg.Build()
}
