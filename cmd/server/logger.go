package main

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func levelFromString(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newLogger builds a JSON production logger, or a development logger at debug level.
func newLogger(level string) (*zap.Logger, error) {
	parsedLevel := levelFromString(level)
	if parsedLevel == zapcore.DebugLevel {
		developmentConfig := zap.NewDevelopmentConfig()
		developmentConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
		return developmentConfig.Build()
	}
	productionConfig := zap.NewProductionConfig()
	productionConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
	productionConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return productionConfig.Build()
}
