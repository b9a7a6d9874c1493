// Package logging builds the service logger from configuration.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/sage/config"
)

// New creates the service logger. Pretty logs use zap's development
// encoder, production logs are JSON at the configured level.
func New(cfg *config.Config) (ectologger.Logger, error) {
	if cfg.PrettyLogs {
		zapLogger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
