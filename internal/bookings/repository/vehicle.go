package repository

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/pkg/config"
	"fleetrent/pkg/model"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *model.Vehicle) error
	FindByID(ctx context.Context, id string) (*model.Vehicle, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Vehicle, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, update *model.VehicleUpdate) error
	Delete(ctx context.Context, id string) error
	// SetAvailability persists a derived availability and bumps the revision.
	SetAvailability(ctx context.Context, id string, status model.AvailabilityStatus) error
	// Touch bumps the revision only. Called first inside booking
	// transactions to claim the vehicle document.
	Touch(ctx context.Context, id string) error
}

type mongoVehicleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoVehicleRepository(cfg *config.Config) VehicleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoVehicleRepository{
		cfg:        cfg,
		collection: db.Collection(VehiclesCollection),
	}
}

func (r *mongoVehicleRepository) Create(ctx context.Context, vehicle *model.Vehicle) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	vehicle.CreatedAt = now()
	vehicle.UpdatedAt = vehicle.CreatedAt
	if vehicle.AvailabilityStatus == "" {
		vehicle.AvailabilityStatus = model.Available
	}

	result, err := r.collection.InsertOne(ctx, vehicle)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrDuplicateRegistration
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}

	vehicle.ID = insertedHex(result)
	return nil
}

func (r *mongoVehicleRepository) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var vehicle model.Vehicle
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}

	return &vehicle, nil
}

func (r *mongoVehicleRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Vehicle, error) {
	result := make(map[string]*model.Vehicle, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oids, err := objectIDs(ids)
	if err != nil {
		return nil, err
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}
	defer cursor.Close(ctx)

	var vehicles []*model.Vehicle
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	for _, v := range vehicles {
		result[v.ID] = v
	}
	return result, nil
}

func (r *mongoVehicleRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "vehicle_name", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}
	defer cursor.Close(ctx)

	var vehicles []*model.Vehicle
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	return vehicles, nil
}

func (r *mongoVehicleRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	return count, nil
}

func (r *mongoVehicleRepository) Update(ctx context.Context, id string, update *model.VehicleUpdate) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": now()}
	if update.Name != nil {
		set["vehicle_name"] = *update.Name
	}
	if update.Type != nil {
		set["type"] = *update.Type
	}
	if update.RegistrationNumber != nil {
		set["registration_number"] = *update.RegistrationNumber
	}
	if update.DailyRentPrice != nil {
		set["daily_rent_price"] = *update.DailyRentPrice
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrDuplicateRegistration
		}
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrVehicleNotFound
	}
	return nil
}

func (r *mongoVehicleRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if result.DeletedCount == 0 {
		return bookingserrors.ErrVehicleNotFound
	}
	return nil
}

func (r *mongoVehicleRepository) SetAvailability(ctx context.Context, id string, status model.AvailabilityStatus) error {
	return r.bump(ctx, id, bson.M{
		"$set": bson.M{"availability_status": status, "updated_at": now()},
		"$inc": bson.M{"revision": 1},
	})
}

func (r *mongoVehicleRepository) Touch(ctx context.Context, id string) error {
	return r.bump(ctx, id, bson.M{"$inc": bson.M{"revision": 1}})
}

func (r *mongoVehicleRepository) bump(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update vehicle %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrVehicleNotFound
	}
	return nil
}
