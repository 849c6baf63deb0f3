package token

import (
	"context"

	"github.com/pysugar/pulse-dashboard/internal/config"
	"github.com/pysugar/pulse-dashboard/internal/db"
	"gorm.io/gorm"
)

// OpenBackend picks the token backend named by cfg.TokenBackend. database
// serves the default sqlite backend.
func OpenBackend(ctx context.Context, cfg *config.Config, database *gorm.DB) (Backend, error) {
	switch cfg.TokenBackend {
	case config.BackendRedis:
		rdb, err := db.InitRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(rdb), nil
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return NewDBBackend(database), nil
	}
}
