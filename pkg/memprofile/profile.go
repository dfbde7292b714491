package memprofile

import (
	"log/slog"

	"tradebot/pkg/config"
)

const (
	DefaultLimitMB = 512

	smallLimitMB  = 256
	mediumLimitMB = 512
)

// Requests are the feature toggles asked for by configuration. Whether a
// feature is actually enabled also depends on the memory budget.
type Requests struct {
	IntelligentCache bool
	DeepFeatures     bool
	AdvancedCache    bool
}

// Profile is the resolved set of memory-dependent toggles and limits.
type Profile struct {
	LimitMB          int
	IntelligentCache bool
	DeepFeatures     bool
	AdvancedCache    bool
	CacheEntries     int
	PoolSize         int
}

// Resolve derives a Profile from a memory budget in megabytes.
//
// Every value falls into one of three brackets. Budgets at or below zero land
// in the smallest one; nothing is rejected.
func Resolve(limitMB int, req Requests) Profile {
	return Profile{
		LimitMB:          limitMB,
		IntelligentCache: req.IntelligentCache && limitMB > smallLimitMB,
		DeepFeatures:     req.DeepFeatures && limitMB > mediumLimitMB,
		AdvancedCache:    req.AdvancedCache,
		CacheEntries:     bracket(limitMB, 100, 500, 1000),
		PoolSize:         bracket(limitMB, 5, 10, 20),
	}
}

// FromConfig resolves the profile for the configured budget. The hosting
// platform preset pins a 512 MB budget with only advanced caching requested.
func FromConfig(cfg config.MemoryConfig, log *slog.Logger) Profile {
	req := Requests{
		IntelligentCache: cfg.IntelligentMemory,
		DeepFeatures:     cfg.DeepLearning,
		AdvancedCache:    cfg.AdvancedCaching,
	}
	limit := cfg.LimitMB

	if cfg.RenderPreset {
		req = Requests{AdvancedCache: true}
		limit = DefaultLimitMB
	}

	profile := Resolve(limit, req)
	if log != nil {
		log.Info("Memory profile resolved", "profile", profile, "render_preset", cfg.RenderPreset)
	}

	return profile
}

// LogValue implements slog.LogValuer.
func (p Profile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("limit_mb", p.LimitMB),
		slog.Bool("intelligent_cache", p.IntelligentCache),
		slog.Bool("deep_features", p.DeepFeatures),
		slog.Bool("advanced_cache", p.AdvancedCache),
		slog.Int("cache_entries", p.CacheEntries),
		slog.Int("pool_size", p.PoolSize),
	)
}

func bracket(limitMB int, small int, medium int, large int) int {
	switch {
	case limitMB <= smallLimitMB:
		return small
	case limitMB <= mediumLimitMB:
		return medium
	default:
		return large
	}
}
