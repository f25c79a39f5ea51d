package content

import (
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

type Backend string

const (
	BackendMap        Backend = "map"
	BackendFilesystem Backend = "filesystem"
	BackendSQLite     Backend = "sqlite"
	BackendRedis      Backend = "redis"
	BackendBadger     Backend = "badger"
)

type Config struct {
	Backend Backend
	Path    string
	TTL     time.Duration
	Redis   RedisConfig
}

// Open builds the store selected by cfg.Backend.
func Open(cfg Config, l logger.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMap, "":
		return NewMapStore(), nil
	case BackendFilesystem:
		return NewFilesystemStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path, l)
	case BackendRedis:
		rc := cfg.Redis
		if rc.TTL == 0 {
			rc.TTL = cfg.TTL
		}
		return NewRedisStore(rc)
	case BackendBadger:
		return NewBadgerStore(cfg.Path, cfg.TTL, l)
	}
	return nil, fmt.Errorf("unknown content store backend %q", cfg.Backend)
}
