package observ

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production gets JSON output,
// everything else the human-readable development encoder.
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build(zap.Fields(zap.String("service", "docstream")))
}

// DocumentFields are the fields every per-document log line carries.
func DocumentFields(tenantID, documentID string) []zap.Field {
	return []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("document_id", documentID),
	}
}
