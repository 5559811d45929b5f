package model

import "time"

// VehicleLock is an advisory lock held around an admission on one vehicle.
// ID is the vehicle ID; Owner identifies the holder so only it can release.
type VehicleLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
