package store

import (
	"context"
	"log/slog"
	"strings"

	"tradebot/pkg/config"
	"tradebot/pkg/memprofile"
)

// Open builds the user store for cfg: Postgres when a database URL is set,
// in-memory otherwise. The pool size and the read cache follow the memory
// profile.
func Open(ctx context.Context, cfg config.DatabaseConfig, profile memprofile.Profile, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var backing Store
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		pg, err := OpenPostgres(ctx, dsn, profile.PoolSize, log)
		if err != nil {
			return nil, err
		}
		backing = pg
	} else {
		log.Warn("DATABASE_URL not set, users are kept in memory")
		backing = NewMemoryStore()
	}

	if !profile.AdvancedCache || profile.CacheEntries <= 0 {
		return backing, nil
	}

	cached, err := NewCachedStore(backing, profile.CacheEntries)
	if err != nil {
		backing.Close()
		return nil, err
	}

	log.Info("User cache enabled", "entries", profile.CacheEntries)
	return cached, nil
}
