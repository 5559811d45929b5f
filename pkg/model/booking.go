package model

import (
	"fleetrent/pkg/clock"
	"time"
)

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
	BookingReturned  BookingStatus = "returned"
)

func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingReturned
}

// Booking reserves a vehicle for the half-open day range
// [RentStartDate, RentEndDate). Both dates are civil dates at 00:00 UTC.
type Booking struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty"`
	CustomerID    string        `json:"customer_id" bson:"customer_id"`
	VehicleID     string        `json:"vehicle_id" bson:"vehicle_id"`
	RentStartDate time.Time     `json:"rent_start_date" bson:"rent_start_date"`
	RentEndDate   time.Time     `json:"rent_end_date" bson:"rent_end_date"`
	TotalPrice    int64         `json:"total_price" bson:"total_price"`
	Status        BookingStatus `json:"status" bson:"status"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) Days() int {
	return clock.DaysBetween(b.RentStartDate, b.RentEndDate)
}

// Overlaps reports whether b's active window intersects [start, end).
// Touching boundaries do not overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.RentStartDate, b.RentEndDate, start, end)
}

type CreateBookingRequest struct {
	CustomerID    string `json:"customer_id" validate:"required,mongodb"`
	VehicleID     string `json:"vehicle_id" validate:"required,mongodb"`
	RentStartDate string `json:"rent_start_date" validate:"required,civildate"`
	RentEndDate   string `json:"rent_end_date" validate:"required,civildate"`
}

// UpdateBookingRequest carries the target status. Its value is checked by
// the transition rules, after the booking is found.
type UpdateBookingRequest struct {
	Status string `json:"status"`
}

type VehicleSummary struct {
	Name               string             `json:"vehicle_name"`
	RegistrationNumber string             `json:"registration_number,omitempty"`
	Type               VehicleType        `json:"type,omitempty"`
	DailyRentPrice     int64              `json:"daily_rent_price,omitempty"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status,omitempty"`
}

type CustomerSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookingView is the rendered booking: civil dates as YYYY-MM-DD and the
// denormalized vehicle/customer fields attached for display.
type BookingView struct {
	ID            string           `json:"id"`
	CustomerID    string           `json:"customer_id"`
	VehicleID     string           `json:"vehicle_id"`
	RentStartDate string           `json:"rent_start_date"`
	RentEndDate   string           `json:"rent_end_date"`
	TotalPrice    int64            `json:"total_price"`
	Status        BookingStatus    `json:"status"`
	Vehicle       *VehicleSummary  `json:"vehicle,omitempty"`
	Customer      *CustomerSummary `json:"customer,omitempty"`
}

func NewBookingView(b *Booking) *BookingView {
	return &BookingView{
		ID:            b.ID,
		CustomerID:    b.CustomerID,
		VehicleID:     b.VehicleID,
		RentStartDate: clock.FormatDate(b.RentStartDate),
		RentEndDate:   clock.FormatDate(b.RentEndDate),
		TotalPrice:    b.TotalPrice,
		Status:        b.Status,
	}
}
