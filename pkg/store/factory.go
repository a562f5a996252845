package store

import (
	"context"
	"fmt"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/store/file"
	"crawlfleet/pkg/store/mysql"
	"crawlfleet/pkg/store/redis"
)

// CreateFleetStore creates the fleet store for the configured backend
func CreateFleetStore(ctx context.Context, cfg *config.Config) (interfaces.FleetStore, error) {
	switch cfg.Store.Backend {
	case "file", "":
		return file.NewFleetStore(cfg.StatePath()), nil
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return redis.NewFleetRepository(client, cfg.Store.Key), nil
	case "mysql":
		repo, err := mysql.NewRepository(ctx, cfg.MySQL.DSN(), cfg.Store.Key)
		if err != nil {
			return nil, err
		}
		return repo.Fleet, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
