package logger

import (
	"fmt"
	"strings"

	"github.com/straye-as/pipeline-api/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used for the named loggers of the pipeline
const (
	ComponentFunnels      = "funnels"
	ComponentDeals        = "deals"
	ComponentProducts     = "products"
	ComponentParticipants = "participants"
	ComponentHistory      = "history"
	ComponentFiles        = "files"
	ComponentComments     = "comments"
	ComponentMetrics      = "stage_metrics"
	ComponentHTTP         = "http"
	ComponentJobs         = "jobs"
)

// NewLogger builds the service logger. JSON output is used in production or
// when logging.format is "json"; development gets a colored console encoder
// without stack traces on warnings.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	switch {
	case strings.EqualFold(cfg.Logging.Format, "json") || cfg.App.Environment == "production":
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case strings.EqualFold(cfg.Logging.Format, "console") || cfg.Logging.Format == "":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Logging.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Logging.Level))
	zapCfg.InitialFields = map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
		"db_driver":   strings.ToLower(cfg.Database.Driver),
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// ParseLevel maps a configured level name to a zap level, falling back to info
func ParseLevel(name string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Component returns a child logger whose entries carry the component name
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.Named(name).With(zap.String("component", name))
}
