package repository

import (
	"context"
	"fleetrent/pkg/config"
	"fleetrent/pkg/model"
	"fmt"
)

// Ledger groups the repositories that booking mutations compose into one
// transaction.
type Ledger struct {
	Bookings BookingRepository
	Vehicles VehicleRepository
	Users    UserRepository
}

func NewMongoLedger(cfg *config.Config) *Ledger {
	return &Ledger{
		Bookings: NewMongoBookingRepository(cfg),
		Vehicles: NewMongoVehicleRepository(cfg),
		Users:    NewMongoUserRepository(cfg),
	}
}

// RefreshAvailability re-derives the vehicle's availability from its active
// bookings and persists it. Call it last inside every mutating transaction.
func (l *Ledger) RefreshAvailability(ctx context.Context, vehicleID string) (model.AvailabilityStatus, error) {
	active, err := l.Bookings.FindActiveByVehicle(ctx, vehicleID)
	if err != nil {
		return "", err
	}

	status := model.DeriveAvailability(active)
	if err := l.Vehicles.SetAvailability(ctx, vehicleID, status); err != nil {
		return "", fmt.Errorf("failed to persist availability: %w", err)
	}
	return status, nil
}
