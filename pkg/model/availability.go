package model

import "time"

// Overlaps is the half-open interval test: [s1, e1) and [s2, e2) share at
// least one day iff s1 < e2 && s2 < e1.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// DeriveAvailability computes a vehicle's availability from its bookings.
// Every mutation persists this result rather than flipping the flag itself.
func DeriveAvailability(bookings []*Booking) AvailabilityStatus {
	for _, b := range bookings {
		if b != nil && b.Status == BookingActive {
			return Booked
		}
	}
	return Available
}
