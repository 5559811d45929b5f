package model

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// User is a customer or admin profile. Credentials live with the identity
// service; this document only carries what bookings need.
type User struct {
	ID    string `json:"id,omitempty" bson:"_id,omitempty"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
	Role  Role   `json:"role" bson:"role"`
	// Revision is bumped by admissions for the customer and by profile
	// deletes, so the two collide instead of interleaving.
	Revision  int64     `json:"-" bson:"revision"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

type UserCreate struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email_address"`
	Phone string `json:"phone,omitempty" validate:"omitempty,min=11,max=20"`
	Role  string `json:"role" validate:"required,oneof=admin customer"`
}

// UserUpdate is a partial update; nil fields keep their stored value.
type UserUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email *string `json:"email,omitempty" validate:"omitempty,email_address"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,min=11,max=20"`
	Role  *string `json:"role,omitempty" validate:"omitempty,oneof=admin customer"`
}

func (u *UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.Role == nil
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
