package cache

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

// New builds the cache backend named in cfg. The returned close func is
// never nil.
func New(cfg config.Cache, l logger.Logger) (TileCache, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Backend {
	case "", "none":
		return NopCache{}, noClose, nil
	case "memory":
		c := NewMemoryCache(cfg.TTL, cfg.Capacity)
		return c, c.Close, nil
	case "sqlite":
		c, err := NewSQLiteCache(cfg.SQLitePath, l)
		if err != nil {
			return nil, noClose, err
		}
		return c, c.Close, nil
	case "redis":
		c, err := NewRedisCache(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, noClose, err
		}
		return c, c.Close, nil
	case "filesystem":
		c, err := NewFilesystemCache(cfg.Dir)
		if err != nil {
			return nil, noClose, err
		}
		return c, noClose, nil
	default:
		return nil, noClose, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
