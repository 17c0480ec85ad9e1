package credstore

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kurun/runcheck/internal/config"
)

// Open builds the store selected by cfg.Backend. A backend that cannot be
// constructed is logged and replaced by NopStore, so callers always get a
// usable Store. Only an unknown backend name is an error.
func Open(cfg config.StoreConfig, logger Logger) (Store, error) {
	if logger == nil {
		logger = nopLogger{}
	}

	switch cfg.Backend {
	case config.StoreKeyring:
		return NewKeyringStore(OSKeyring{}, cfg.KeyringService, DefaultCheckTimeout, logger), nil

	case config.StoreFile:
		s, err := NewFileStore(config.ExpandHome(cfg.File), config.ExpandHome(cfg.IdentityFile), logger)
		if err != nil {
			logger.Error("file store unavailable: %v", err)
			return NopStore{}, nil
		}
		return s, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := NewRedisStore(client, cfg.Redis.Prefix, DefaultRedisTimeout, logger)
		if !s.Available() {
			_ = client.Close()
			return NopStore{}, nil
		}
		return s, nil

	case config.StoreMemory:
		return NewMemoryStore(), nil

	case config.StoreNone, "":
		return NopStore{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
