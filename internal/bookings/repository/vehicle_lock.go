package repository

import (
	"context"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/pkg/config"
	"fleetrent/pkg/model"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// VehicleLockRepository provides per-vehicle advisory locks. Acquire returns
// ErrLockHeld when another owner holds an unexpired lock.
type VehicleLockRepository interface {
	Acquire(ctx context.Context, vehicleID, owner string, ttl time.Duration) error
	Release(ctx context.Context, vehicleID, owner string) error
}

type mongoVehicleLockRepository struct {
	collection *mongo.Collection
}

func NewMongoVehicleLockRepository(cfg *config.Config) VehicleLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoVehicleLockRepository{
		collection: db.Collection(VehicleLocksCollection),
	}
}

func (r *mongoVehicleLockRepository) Acquire(ctx context.Context, vehicleID, owner string, ttl time.Duration) error {
	ts := now()
	lock := &model.VehicleLock{
		ID:        vehicleID,
		Owner:     owner,
		ExpiresAt: ts.Add(ttl),
		CreatedAt: ts,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to acquire vehicle lock: %w", err)
	}

	// The TTL monitor only runs once a minute, so an expired lock may still
	// be present. Take it over if so.
	filter := bson.M{"_id": vehicleID, "expires_at": bson.M{"$lte": ts}}
	update := bson.M{"$set": bson.M{"owner": owner, "expires_at": lock.ExpiresAt, "created_at": ts}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to take over expired vehicle lock: %w", err)
	}
	if result.ModifiedCount == 0 {
		return bookingserrors.ErrLockHeld
	}
	return nil
}

func (r *mongoVehicleLockRepository) Release(ctx context.Context, vehicleID, owner string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": vehicleID, "owner": owner})
	if err != nil {
		return fmt.Errorf("failed to release vehicle lock: %w", err)
	}
	return nil
}
