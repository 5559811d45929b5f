//go:build integration

package repository_test

import (
	"context"
	"fleetrent/internal/bookings/repository"
	migrations "fleetrent/internal/migrations/mongo"
	"fleetrent/pkg/client"
	"fleetrent/pkg/config"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Transactions need a replica set; a single-node one is enough.
const (
	DefaultMongoURI   = "mongodb://localhost:27017/?replicaSet=rs0"
	ConnectionTimeout = 10 * time.Second
)

// MongoHelper owns a throwaway database with the production collections,
// validators and indexes applied.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
	Config   *config.Config
}

func NewMongoHelper(t *testing.T) *MongoHelper {
	t.Helper()

	mongoURI := os.Getenv("TEST_MONGO_URI")
	if mongoURI == "" {
		mongoURI = DefaultMongoURI
	}
	dbName := fmt.Sprintf("fleetrent_it_%s", primitive.NewObjectID().Hex())

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	log := logger.Discard()
	if err := migrations.RunMigration(ctx, mc, dbName, log); err != nil {
		t.Fatalf("failed to migrate %s: %v", dbName, err)
	}

	h := &MongoHelper{
		Client:   mc,
		Database: mc.Database(dbName),
		DBName:   dbName,
		Config: &config.Config{
			MongoDatabaseName: dbName,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
			RequestTimeout:    10 * time.Second,
			LockTTL:           5 * time.Second,
			LockWaitTimeout:   5 * time.Second,
			Log:               log,
			Client:            &client.Client{Mongo: mc},
		},
	}
	t.Cleanup(func() { h.Close(t) })
	return h
}

// Close drops the database and disconnects.
func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Database.Drop(ctx); err != nil {
		t.Logf("warning: failed to drop %s: %v", m.DBName, err)
	}
	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

func (m *MongoHelper) Ledger() *repository.Ledger {
	return repository.NewMongoLedger(m.Config)
}

func (m *MongoHelper) CountDocuments(t *testing.T, collection string, filter any) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.Database.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collection, err)
	}
	return count
}

func (m *MongoHelper) AddUser(t *testing.T, ledger *repository.Ledger, name string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: name + "@example.com", Role: role}
	if err := ledger.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user %s: %v", name, err)
	}
	return u
}

func (m *MongoHelper) AddVehicle(t *testing.T, ledger *repository.Ledger, name string, rate int64) *model.Vehicle {
	t.Helper()
	v := &model.Vehicle{
		Name:               name,
		Type:               model.VehicleTypeCar,
		RegistrationNumber: "DHA-" + name,
		DailyRentPrice:     rate,
	}
	if err := ledger.Vehicles.Create(context.Background(), v); err != nil {
		t.Fatalf("failed to seed vehicle %s: %v", name, err)
	}
	return v
}
