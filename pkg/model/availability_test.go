package model

import (
	"fleetrent/pkg/clock"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	d := clock.MustDate

	tests := []struct {
		name   string
		s1, e1 string
		s2, e2 string
		want   bool
	}{
		{"shared middle days", "2024-06-01", "2024-06-04", "2024-06-02", "2024-06-05", true},
		{"touching end to start", "2024-06-01", "2024-06-04", "2024-06-04", "2024-06-06", false},
		{"touching start to end", "2024-06-04", "2024-06-06", "2024-06-01", "2024-06-04", false},
		{"contained", "2024-06-01", "2024-06-10", "2024-06-03", "2024-06-04", true},
		{"containing", "2024-06-03", "2024-06-04", "2024-06-01", "2024-06-10", true},
		{"identical", "2024-06-01", "2024-06-02", "2024-06-01", "2024-06-02", true},
		{"disjoint", "2024-06-01", "2024-06-02", "2024-06-05", "2024-06-07", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(d(tt.s1), d(tt.e1), d(tt.s2), d(tt.e2))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Overlaps(d(tt.s2), d(tt.e2), d(tt.s1), d(tt.e1)), "overlap must be symmetric")
		})
	}
}

func TestDeriveAvailability(t *testing.T) {
	tests := []struct {
		name     string
		bookings []*Booking
		want     AvailabilityStatus
	}{
		{"no bookings", nil, Available},
		{"only terminal bookings", []*Booking{{Status: BookingCancelled}, {Status: BookingReturned}}, Available},
		{"one active among terminal", []*Booking{{Status: BookingReturned}, {Status: BookingActive}}, Booked},
		{"nil entries ignored", []*Booking{nil}, Available},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAvailability(tt.bookings))
		})
	}
}

func TestBooking_Days(t *testing.T) {
	b := &Booking{RentStartDate: clock.MustDate("2024-06-01"), RentEndDate: clock.MustDate("2024-06-04")}
	assert.Equal(t, 3, b.Days())
	assert.True(t, b.Overlaps(clock.MustDate("2024-06-03"), clock.MustDate("2024-06-08")))
	assert.False(t, b.Overlaps(clock.MustDate("2024-06-04"), clock.MustDate("2024-06-08")))
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.False(t, BookingActive.Terminal())
	assert.True(t, BookingCancelled.Terminal())
	assert.True(t, BookingReturned.Terminal())
}

func TestNewBookingView(t *testing.T) {
	b := &Booking{
		ID:            "65f1c0ffee0000000000aaaa",
		RentStartDate: clock.MustDate("2024-06-01"),
		RentEndDate:   clock.MustDate("2024-06-04"),
		TotalPrice:    3000,
		Status:        BookingActive,
	}
	v := NewBookingView(b)
	assert.Equal(t, "2024-06-01", v.RentStartDate)
	assert.Equal(t, "2024-06-04", v.RentEndDate)
	assert.Nil(t, v.Vehicle)
}
