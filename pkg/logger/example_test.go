package logger_test

import (
	"errors"

	"github.com/wonny/autoquant/backend/pkg/config"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// Example_basic demonstrates basic logger usage
func Example_basic() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	log.Debug("This won't appear (level is info)")
	log.Info("Analysis started")

	// Structured fields
	log.WithFields(map[string]interface{}{
		"phase":    "phase4_technical_screening",
		"selected": 5,
	}).Info("phase4 completed")

	// Run correlation
	log.WithRun(12, "3f1c0c7e").WithError(errors.New("completion timeout")).Warn("Retrying completion call")
}
