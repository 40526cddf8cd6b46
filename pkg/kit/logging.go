package kit

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the production zap logger every binary uses.
// LOG_LEVEL overrides the default info level.
func NewLogger(service string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]any{"service": service}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if al, err := zap.ParseAtomicLevel(lvl); err == nil {
			cfg.Level = al
		}
	}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
