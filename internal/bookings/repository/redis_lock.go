package repository

import (
	"context"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "fleetrent:vehicle-lock:"

// releaseScript deletes the key only if it still belongs to the caller.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisVehicleLockRepository struct {
	client redis.Cmdable
}

// NewRedisVehicleLockRepository is used when several service instances share
// a Redis deployment and Mongo round-trips for locking are undesirable.
func NewRedisVehicleLockRepository(client redis.Cmdable) VehicleLockRepository {
	return &redisVehicleLockRepository{client: client}
}

func LockKey(vehicleID string) string {
	return lockKeyPrefix + vehicleID
}

func (r *redisVehicleLockRepository) Acquire(ctx context.Context, vehicleID, owner string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, LockKey(vehicleID), owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire vehicle lock: %w", err)
	}
	if !ok {
		return bookingserrors.ErrLockHeld
	}
	return nil
}

func (r *redisVehicleLockRepository) Release(ctx context.Context, vehicleID, owner string) error {
	if err := r.client.Eval(ctx, releaseScript, []string{LockKey(vehicleID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release vehicle lock: %w", err)
	}
	return nil
}
