// Package logger builds the process-wide zap logger. Components receive
// Named children of it rather than reaching for a global.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger: JSON production output unless development
// is set, at the given level (debug, info, warn, error; default info).
func New(level string, development bool) (*zap.SugaredLogger, error) {
	var zapConfig zap.Config
	if development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	log, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// ParseLevel maps a level name to its zap level. Unknown names are info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
