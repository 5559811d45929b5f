package model

import "time"

type VehicleType string

const (
	VehicleTypeCar  VehicleType = "car"
	VehicleTypeBike VehicleType = "bike"
	VehicleTypeVan  VehicleType = "van"
	VehicleTypeSUV  VehicleType = "SUV"
)

// AvailabilityStatus is a cached projection of the vehicle's active bookings.
// It is only ever written with the result of DeriveAvailability.
type AvailabilityStatus string

const (
	Available AvailabilityStatus = "available"
	Booked    AvailabilityStatus = "booked"
)

type Vehicle struct {
	ID                 string             `json:"id,omitempty" bson:"_id,omitempty"`
	Name               string             `json:"vehicle_name" bson:"vehicle_name"`
	Type               VehicleType        `json:"type" bson:"type"`
	RegistrationNumber string             `json:"registration_number" bson:"registration_number"`
	DailyRentPrice     int64              `json:"daily_rent_price" bson:"daily_rent_price"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status" bson:"availability_status"`
	// Revision is bumped by every booking mutation on the vehicle so that
	// concurrent transactions on it collide on this document.
	Revision  int64     `json:"-" bson:"revision"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type VehicleCreate struct {
	Name               string `json:"vehicle_name" validate:"required,min=2,max=100"`
	Type               string `json:"type" validate:"required,oneof=car bike van SUV"`
	RegistrationNumber string `json:"registration_number" validate:"required,registration"`
	DailyRentPrice     int64  `json:"daily_rent_price" validate:"required,gt=0"`
}

// VehicleUpdate is a partial update. Availability is deliberately absent.
type VehicleUpdate struct {
	Name               *string `json:"vehicle_name,omitempty" validate:"omitempty,min=2,max=100"`
	Type               *string `json:"type,omitempty" validate:"omitempty,oneof=car bike van SUV"`
	RegistrationNumber *string `json:"registration_number,omitempty" validate:"omitempty,registration"`
	DailyRentPrice     *int64  `json:"daily_rent_price,omitempty" validate:"omitempty,gt=0"`
}

func (u *VehicleUpdate) IsEmpty() bool {
	return u.Name == nil && u.Type == nil && u.RegistrationNumber == nil && u.DailyRentPrice == nil
}
