package redis

import (
	"context"
	"fmt"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/interfaces"

	"github.com/go-redis/redis/v8"
)

const (
	stateKeySuffix  = ":state"        // Serialized fleet
	backupKeySuffix = ":state:bak"    // Serialized fleet, written once per watchdog cycle
	statusKeySuffix = ":state:status" // Hash worker name -> status, for quick inspection
	lockKeySuffix   = ":watchdog:lock"
)

// FleetRepository stores the fleet as one serialized blob under a key prefix
type FleetRepository struct {
	redis  *redis.Client
	prefix string
}

// NewFleetRepository creates Fleet repository
func NewFleetRepository(redisClient *RedisClient, prefix string) *FleetRepository {
	if prefix == "" {
		prefix = "crawlfleet"
	}
	return &FleetRepository{
		redis:  redisClient.GetClient(),
		prefix: prefix,
	}
}

// Location returns the primary state key
func (r *FleetRepository) Location() string {
	return "redis key " + r.prefix + stateKeySuffix
}

// Load reads the fleet; a missing key is an empty fleet
func (r *FleetRepository) Load(ctx context.Context) (*model.Fleet, error) {
	data, err := r.redis.Get(ctx, r.prefix+stateKeySuffix).Bytes()
	if err == redis.Nil {
		return model.NewFleet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fleet: %w", err)
	}

	fleet, err := model.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt state at %s: %w", r.Location(), err)
	}
	return fleet, nil
}

// Save replaces the fleet blob and the status index in one transaction
func (r *FleetRepository) Save(ctx context.Context, fleet *model.Fleet) error {
	data, err := model.Serialize(fleet)
	if err != nil {
		return err
	}

	statusKey := r.prefix + statusKeySuffix
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+stateKeySuffix, data, 0)
		pipe.Del(ctx, statusKey)
		for _, w := range fleet.List() {
			pipe.HSet(ctx, statusKey, w.Name, w.Status.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save fleet: %w", err)
	}
	return nil
}

// Backup writes the backup blob
func (r *FleetRepository) Backup(ctx context.Context, fleet *model.Fleet) error {
	data, err := model.Serialize(fleet)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, r.prefix+backupKeySuffix, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to backup fleet: %w", err)
	}
	return nil
}

// Clear removes the fleet blob and status index
func (r *FleetRepository) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.prefix+stateKeySuffix, r.prefix+statusKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to clear fleet: %w", err)
	}
	return nil
}

// StatusIndex returns worker name -> status as last saved
func (r *FleetRepository) StatusIndex(ctx context.Context) (map[string]string, error) {
	out, err := r.redis.HGetAll(ctx, r.prefix+statusKeySuffix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get status index: %w", err)
	}
	return out, nil
}

// LockFleet takes the watchdog lease for this fleet
func (r *FleetRepository) LockFleet(ctx context.Context) (interfaces.FleetLease, error) {
	lease := NewLease(r.redis, r.prefix+lockKeySuffix)
	ok, err := lease.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrFleetLocked, r.prefix+lockKeySuffix)
	}
	return lease, nil
}

// Close closes the Redis connection
func (r *FleetRepository) Close() error {
	return r.redis.Close()
}
