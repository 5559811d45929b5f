package repository

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/pkg/config"
	mongotx "fleetrent/pkg/db/mongo"
	"fleetrent/pkg/model"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// BookingRepository is the reservation side of the ledger. Bookings are never
// deleted; status moves only through UpdateStatus.
type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindActiveByVehicle(ctx context.Context, vehicleID string) ([]*model.Booking, error)
	FindExpiredActive(ctx context.Context, today time.Time, vehicleID string) ([]*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) error
	FindAll(ctx context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context, customerID string) (int64, error)
	CountActiveByVehicle(ctx context.Context, vehicleID string) (int64, error)
	CountActiveByCustomer(ctx context.Context, customerID string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(BookingsCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = now()
	booking.UpdatedAt = booking.CreatedAt
	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.ID = insertedHex(result)
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindActiveByVehicle(ctx context.Context, vehicleID string) ([]*model.Booking, error) {
	filter := bson.M{
		"vehicle_id": vehicleID,
		"status":     model.BookingActive,
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "rent_start_date", Value: 1}}))
}

// FindExpiredActive returns active bookings whose end date is strictly before
// today. An empty vehicleID selects every vehicle.
func (r *mongoBookingRepository) FindExpiredActive(ctx context.Context, today time.Time, vehicleID string) ([]*model.Booking, error) {
	filter := bson.M{
		"status":        model.BookingActive,
		"rent_end_date": bson.M{"$lt": today},
	}
	if vehicleID != "" {
		filter["vehicle_id"] = vehicleID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "vehicle_id", Value: 1}, {Key: "rent_end_date", Value: 1}}))
}

// UpdateStatus is a compare-and-set on status. It returns ErrStatusChanged
// when the booking exists but is no longer in the from status.
func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": oid, "status": from}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrStatusChanged
	}
	return nil
}

// FindAll lists bookings, newest first. A non-empty customerID restricts the
// result to that customer's bookings.
func (r *mongoBookingRepository) FindAll(ctx context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "rent_start_date", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, customerFilter(customerID), opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context, customerID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, customerFilter(customerID))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) CountActiveByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	return r.countActive(ctx, bson.M{"vehicle_id": vehicleID})
}

func (r *mongoBookingRepository) CountActiveByCustomer(ctx context.Context, customerID string) (int64, error) {
	return r.countActive(ctx, bson.M{"customer_id": customerID})
}

func (r *mongoBookingRepository) countActive(ctx context.Context, filter bson.M) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter["status"] = model.BookingActive
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func customerFilter(customerID string) bson.M {
	if customerID == "" {
		return bson.M{}
	}
	return bson.M{"customer_id": customerID}
}
