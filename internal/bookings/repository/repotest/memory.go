// Package repotest provides an in-memory ledger for tests of code that sits
// on top of the booking repositories.
package repotest

import (
	"context"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/internal/bookings/repository"
	mongotx "fleetrent/pkg/db/mongo"
	"fleetrent/pkg/model"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store holds every collection. ExecuteTransaction snapshots it and restores
// the snapshot when fn fails, which is enough isolation for callers that
// serialize writers per vehicle.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	bookings map[string]*model.Booking
	vehicles map[string]*model.Vehicle
	users    map[string]*model.User
	faults   map[string]error
}

// Fault operation names accepted by FailOn.
const (
	OpFindExpiredActive   = "FindExpiredActive"
	OpFindActiveByVehicle = "FindActiveByVehicle"
	OpUpdateStatus        = "UpdateStatus"
	OpCreateBooking       = "CreateBooking"
	OpCount               = "Count"
	OpSetAvailability     = "SetAvailability"
	OpTouch               = "Touch"
	OpTouchUser           = "TouchUser"
	OpCountUsers          = "CountUsers"
)

func NewStore() *Store {
	return &Store{
		bookings: make(map[string]*model.Booking),
		vehicles: make(map[string]*model.Vehicle),
		users:    make(map[string]*model.User),
		faults:   make(map[string]error),
	}
}

// Ledger wires a repository.Ledger to the store.
func (s *Store) Ledger() *repository.Ledger {
	return &repository.Ledger{
		Bookings: &bookings{s},
		Vehicles: &vehicles{s},
		Users:    &users{s},
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

func (s *Store) AddUser(name string, role model.Role) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{
		ID:        primitive.NewObjectID().Hex(),
		Name:      name,
		Email:     fmt.Sprintf("%s@example.com", name),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) AddVehicle(name string, rate int64) *model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &model.Vehicle{
		ID:                 primitive.NewObjectID().Hex(),
		Name:               name,
		Type:               model.VehicleTypeCar,
		RegistrationNumber: "REG-" + name,
		DailyRentPrice:     rate,
		AvailabilityStatus: model.Available,
		CreatedAt:          time.Now().UTC(),
	}
	s.vehicles[v.ID] = v
	return v
}

// AddBooking stores b as given, bypassing every admission rule. Tests use it
// to seed history such as expired active bookings.
func (s *Store) AddBooking(b *model.Booking) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = primitive.NewObjectID().Hex()
	}
	cp := *b
	s.bookings[b.ID] = &cp
	return b
}

func (s *Store) Booking(id string) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (s *Store) User(id string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *Store) Vehicle(id string) *model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil
	}
	cp := *v
	return &cp
}

// Bookings returns every booking of a vehicle ordered by start date.
func (s *Store) Bookings(vehicleID string) []*model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(b *model.Booking) bool { return b.VehicleID == vehicleID })
}

// filter must be called with mu held.
func (s *Store) filter(keep func(*model.Booking) bool) []*model.Booking {
	var out []*model.Booking
	for _, b := range s.bookings {
		if keep(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RentStartDate.Equal(out[j].RentStartDate) {
			return out[i].RentStartDate.Before(out[j].RentStartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type storeSnapshot struct {
	bookings map[string]model.Booking
	vehicles map[string]model.Vehicle
	users    map[string]model.User
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSnapshot{
		bookings: copyValues(s.bookings),
		vehicles: copyValues(s.vehicles),
		users:    copyValues(s.users),
	}
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = copyPointers(snap.bookings)
	s.vehicles = copyPointers(snap.vehicles)
	s.users = copyPointers(snap.users)
}

func copyValues[T any](in map[string]*T) map[string]T {
	out := make(map[string]T, len(in))
	for id, v := range in {
		out[id] = *v
	}
	return out
}

func copyPointers[T any](in map[string]T) map[string]*T {
	out := make(map[string]*T, len(in))
	for id, v := range in {
		v := v
		out[id] = &v
	}
	return out
}

func validID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}

type bookings struct{ s *Store }

func (r *bookings) Create(_ context.Context, b *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpCreateBooking); err != nil {
		return err
	}
	b.ID = primitive.NewObjectID().Hex()
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	r.s.bookings[b.ID] = &cp
	return nil
}

func (r *bookings) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *bookings) FindActiveByVehicle(_ context.Context, vehicleID string) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpFindActiveByVehicle); err != nil {
		return nil, err
	}
	return r.s.filter(func(b *model.Booking) bool {
		return b.VehicleID == vehicleID && b.Status == model.BookingActive
	}), nil
}

func (r *bookings) FindExpiredActive(_ context.Context, today time.Time, vehicleID string) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpFindExpiredActive); err != nil {
		return nil, err
	}
	return r.s.filter(func(b *model.Booking) bool {
		return b.Status == model.BookingActive &&
			b.RentEndDate.Before(today) &&
			(vehicleID == "" || b.VehicleID == vehicleID)
	}), nil
}

func (r *bookings) UpdateStatus(_ context.Context, id string, from, to model.BookingStatus) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpUpdateStatus); err != nil {
		return err
	}
	b, ok := r.s.bookings[id]
	if !ok || b.Status != from {
		return bookingserrors.ErrStatusChanged
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *bookings) FindAll(_ context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.filter(func(b *model.Booking) bool {
		return customerID == "" || b.CustomerID == customerID
	})
	if offset >= int64(len(all)) {
		return []*model.Booking{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *bookings) Count(_ context.Context, customerID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpCount); err != nil {
		return 0, err
	}
	var n int64
	for _, b := range r.s.bookings {
		if customerID == "" || b.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

func (r *bookings) CountActiveByVehicle(_ context.Context, vehicleID string) (int64, error) {
	return r.countActive(func(b *model.Booking) bool { return b.VehicleID == vehicleID })
}

func (r *bookings) CountActiveByCustomer(_ context.Context, customerID string) (int64, error) {
	return r.countActive(func(b *model.Booking) bool { return b.CustomerID == customerID })
}

func (r *bookings) countActive(match func(*model.Booking) bool) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, b := range r.s.bookings {
		if b.Status == model.BookingActive && match(b) {
			n++
		}
	}
	return n, nil
}

// ExecuteTransaction runs transactions one at a time and rolls back every
// collection on error.
func (r *bookings) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	snap := r.s.snapshot()
	if err := fn(ctx); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

type vehicles struct{ s *Store }

func (r *vehicles) Create(_ context.Context, v *model.Vehicle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.vehicles {
		if existing.RegistrationNumber == v.RegistrationNumber {
			return bookingserrors.ErrDuplicateRegistration
		}
	}
	v.ID = primitive.NewObjectID().Hex()
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	if v.AvailabilityStatus == "" {
		v.AvailabilityStatus = model.Available
	}
	cp := *v
	r.s.vehicles[v.ID] = &cp
	return nil
}

func (r *vehicles) FindByID(_ context.Context, id string) (*model.Vehicle, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, bookingserrors.ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *vehicles) FindByIDs(_ context.Context, ids []string) (map[string]*model.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]*model.Vehicle, len(ids))
	for _, id := range ids {
		if v, ok := r.s.vehicles[id]; ok {
			cp := *v
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *vehicles) FindAll(_ context.Context, limit int, offset int64) ([]*model.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*model.Vehicle, 0, len(r.s.vehicles))
	for _, v := range r.s.vehicles {
		cp := *v
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if offset >= int64(len(all)) {
		return []*model.Vehicle{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *vehicles) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.vehicles)), nil
}

func (r *vehicles) Update(_ context.Context, id string, update *model.VehicleUpdate) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return bookingserrors.ErrVehicleNotFound
	}
	if update.RegistrationNumber != nil {
		for otherID, other := range r.s.vehicles {
			if otherID != id && other.RegistrationNumber == *update.RegistrationNumber {
				return bookingserrors.ErrDuplicateRegistration
			}
		}
		v.RegistrationNumber = *update.RegistrationNumber
	}
	if update.Name != nil {
		v.Name = *update.Name
	}
	if update.Type != nil {
		v.Type = model.VehicleType(*update.Type)
	}
	if update.DailyRentPrice != nil {
		v.DailyRentPrice = *update.DailyRentPrice
	}
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *vehicles) Delete(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.vehicles[id]; !ok {
		return bookingserrors.ErrVehicleNotFound
	}
	delete(r.s.vehicles, id)
	return nil
}

func (r *vehicles) SetAvailability(_ context.Context, id string, status model.AvailabilityStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpSetAvailability); err != nil {
		return err
	}
	v, ok := r.s.vehicles[id]
	if !ok {
		return bookingserrors.ErrVehicleNotFound
	}
	v.AvailabilityStatus = status
	v.Revision++
	return nil
}

func (r *vehicles) Touch(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpTouch); err != nil {
		return err
	}
	v, ok := r.s.vehicles[id]
	if !ok {
		return bookingserrors.ErrVehicleNotFound
	}
	v.Revision++
	return nil
}

type users struct{ s *Store }

// emailTaken must be called with mu held.
func (r *users) emailTaken(email, exceptID string) bool {
	for id, u := range r.s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (r *users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.emailTaken(u.Email, "") {
		return bookingserrors.ErrDuplicateEmail
	}
	u.ID = primitive.NewObjectID().Hex()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *users) FindByID(_ context.Context, id string) (*model.User, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, bookingserrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *users) FindByIDs(_ context.Context, ids []string) (map[string]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *users) FindAll(_ context.Context, limit int, offset int64) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= int64(len(all)) {
		return []*model.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *users) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpCountUsers); err != nil {
		return 0, err
	}
	return int64(len(r.s.users)), nil
}

func (r *users) Update(_ context.Context, id string, update *model.UserUpdate) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return bookingserrors.ErrUserNotFound
	}
	if update.Email != nil {
		if r.emailTaken(*update.Email, id) {
			return bookingserrors.ErrDuplicateEmail
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Phone != nil {
		u.Phone = *update.Phone
	}
	if update.Role != nil {
		u.Role = model.Role(*update.Role)
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *users) Delete(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return bookingserrors.ErrUserNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *users) Touch(_ context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpTouchUser); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return bookingserrors.ErrUserNotFound
	}
	u.Revision++
	return nil
}

// Locks is an in-process VehicleLockRepository.
type Locks struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewLocks() *Locks {
	return &Locks{owners: make(map[string]string)}
}

func (l *Locks) Acquire(_ context.Context, vehicleID, owner string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[vehicleID]; held {
		return bookingserrors.ErrLockHeld
	}
	l.owners[vehicleID] = owner
	return nil
}

func (l *Locks) Release(_ context.Context, vehicleID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[vehicleID] == owner {
		delete(l.owners, vehicleID)
	}
	return nil
}

// Hold takes the lock for vehicleID on behalf of an outside owner.
func (l *Locks) Hold(vehicleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[vehicleID] = "held"
}

func (l *Locks) Held(vehicleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.owners[vehicleID]
	return held
}

var (
	_ repository.BookingRepository     = (*bookings)(nil)
	_ repository.VehicleRepository     = (*vehicles)(nil)
	_ repository.UserRepository        = (*users)(nil)
	_ repository.VehicleLockRepository = (*Locks)(nil)
)
