package service

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/internal/bookings/reconciler"
	"fleetrent/internal/bookings/repository/repotest"
	"fleetrent/internal/bookings/validator"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/config"
	apperrors "fleetrent/pkg/errors"
	"fleetrent/pkg/events"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────
// Fixture
// ────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.BookingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store     *repotest.Store
	locks     *repotest.Locks
	clock     *clock.Fixed
	publisher *recordingPublisher
	service   BookingService

	admin    model.Identity
	customer model.Identity
	other    model.Identity
	vehicle  *model.Vehicle
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()

	log := logger.Discard()
	cfg := &config.Config{
		Log:             log,
		LockTTL:         time.Second,
		LockWaitTimeout: 50 * time.Millisecond,
	}

	store := repotest.NewStore()
	locks := repotest.NewLocks()
	clk := &clock.Fixed{Day: clock.MustDate(today)}
	pub := &recordingPublisher{}
	ledger := store.Ledger()

	rec := reconciler.New(ledger, clk, pub, log)
	svc := NewBookingService(ledger, locks, rec, validator.New(log), clk, pub, cfg)

	admin := store.AddUser("admin", model.RoleAdmin)
	customer := store.AddUser("alice", model.RoleCustomer)
	other := store.AddUser("bob", model.RoleCustomer)

	return &fixture{
		store:     store,
		locks:     locks,
		clock:     clk,
		publisher: pub,
		service:   svc,
		admin:     model.Identity{UserID: admin.ID, Role: model.RoleAdmin},
		customer:  model.Identity{UserID: customer.ID, Role: model.RoleCustomer},
		other:     model.Identity{UserID: other.ID, Role: model.RoleCustomer},
		vehicle:   store.AddVehicle("corolla", 50),
	}
}

func (f *fixture) admit(t *testing.T, start, end string) (*model.BookingView, error) {
	t.Helper()
	return f.service.Admit(context.Background(), f.vehicle.ID, f.customer.UserID, clock.MustDate(start), clock.MustDate(end))
}

func (f *fixture) mustAdmit(t *testing.T, start, end string) *model.BookingView {
	t.Helper()
	view, err := f.admit(t, start, end)
	require.NoError(t, err)
	return view
}

func (f *fixture) availability() model.AvailabilityStatus {
	return f.store.Vehicle(f.vehicle.ID).AvailabilityStatus
}

// assertDerived checks that the stored availability equals the one derived
// from the vehicle's bookings.
func (f *fixture) assertDerived(t *testing.T) {
	t.Helper()
	want := model.DeriveAvailability(f.store.Bookings(f.vehicle.ID))
	assert.Equal(t, want, f.availability(), "stored availability drifted from bookings")
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, code, appErr.Code, "unexpected error: %v", err)
}

// ────────────────────────────────────────────────
// Admission
// ────────────────────────────────────────────────

func TestAdmit_PricesAndBooksVehicle(t *testing.T) {
	f := newFixture(t, "2024-05-20")

	view := f.mustAdmit(t, "2024-06-01", "2024-06-04")

	assert.Equal(t, int64(150), view.TotalPrice)
	assert.Equal(t, model.BookingActive, view.Status)
	assert.Equal(t, "2024-06-01", view.RentStartDate)
	assert.Equal(t, "2024-06-04", view.RentEndDate)
	require.NotNil(t, view.Vehicle)
	assert.Equal(t, "corolla", view.Vehicle.Name)
	assert.Equal(t, int64(50), view.Vehicle.DailyRentPrice)
	assert.Equal(t, model.Booked, view.Vehicle.AvailabilityStatus)

	assert.Equal(t, model.Booked, f.availability())
	assert.Equal(t, []events.EventType{events.BookingAdmitted}, f.publisher.types())
	assert.False(t, f.locks.Held(f.vehicle.ID), "lock must be released")
}

func TestAdmit_SameDayStartIsAllowed(t *testing.T) {
	f := newFixture(t, "2024-06-01")
	view := f.mustAdmit(t, "2024-06-01", "2024-06-02")
	assert.Equal(t, int64(50), view.TotalPrice)
}

func TestAdmit_OverlapIsRejected(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.mustAdmit(t, "2024-06-01", "2024-06-04")

	tests := []struct {
		name       string
		start, end string
	}{
		{"identical", "2024-06-01", "2024-06-04"},
		{"starts inside", "2024-06-03", "2024-06-06"},
		{"ends inside", "2024-05-28", "2024-06-02"},
		{"contains", "2024-05-30", "2024-06-10"},
		{"contained", "2024-06-02", "2024-06-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.admit(t, tt.start, tt.end)
			assertCode(t, err, apperrors.CodeConflict)
			assert.Equal(t, "Vehicle is already booked for the selected dates", apperrors.AsAppError(err).Message)
		})
	}

	assert.Len(t, f.store.Bookings(f.vehicle.ID), 1)
	f.assertDerived(t)
}

func TestAdmit_TouchingBoundariesDoNotConflict(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.mustAdmit(t, "2024-06-01", "2024-06-04")

	f.mustAdmit(t, "2024-06-04", "2024-06-06")
	f.mustAdmit(t, "2024-05-29", "2024-06-01")

	assert.Len(t, f.store.Bookings(f.vehicle.ID), 3)
}

func TestAdmit_TerminalBookingsDoNotConflict(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.store.AddBooking(&model.Booking{
		CustomerID:    f.customer.UserID,
		VehicleID:     f.vehicle.ID,
		RentStartDate: clock.MustDate("2024-06-01"),
		RentEndDate:   clock.MustDate("2024-06-04"),
		Status:        model.BookingCancelled,
	})

	f.mustAdmit(t, "2024-06-01", "2024-06-04")
}

func TestAdmit_ExpiredBookingIsReconciledFirst(t *testing.T) {
	f := newFixture(t, "2024-06-10")
	// Ended yesterday but still active: the reconciler has not run yet.
	stale := f.store.AddBooking(&model.Booking{
		CustomerID:    f.other.UserID,
		VehicleID:     f.vehicle.ID,
		RentStartDate: clock.MustDate("2024-06-01"),
		RentEndDate:   clock.MustDate("2024-06-09"),
		Status:        model.BookingActive,
	})

	f.mustAdmit(t, "2024-06-10", "2024-06-12")

	assert.Equal(t, model.BookingReturned, f.store.Booking(stale.ID).Status)
	assert.Equal(t, model.Booked, f.availability())
	assert.Contains(t, f.publisher.types(), events.BookingReconciled)
}

func TestAdmit_ReconcileFailureDoesNotBlockAdmission(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.store.FailOn(repotest.OpFindExpiredActive, errors.New("connection reset"))

	view := f.mustAdmit(t, "2024-06-01", "2024-06-04")
	assert.Equal(t, int64(150), view.TotalPrice)
}

func TestAdmit_RuleOrder(t *testing.T) {
	f := newFixture(t, "2024-06-10")
	missing := "65f000000000000000000000"

	tests := []struct {
		name       string
		vehicleID  string
		customerID string
		start, end string
		wantCode   string
		wantMsg    string
	}{
		{
			name:      "unknown customer wins over everything",
			vehicleID: missing, customerID: missing,
			start: "2020-01-01", end: "2019-01-01",
			wantCode: apperrors.CodeNotFound, wantMsg: "Customer not found",
		},
		{
			name:      "unknown vehicle wins over dates",
			vehicleID: missing, customerID: f.customer.UserID,
			start: "2020-01-01", end: "2019-01-01",
			wantCode: apperrors.CodeNotFound, wantMsg: "Vehicle not found",
		},
		{
			name:      "past start",
			vehicleID: f.vehicle.ID, customerID: f.customer.UserID,
			start: "2024-06-09", end: "2024-06-12",
			wantCode: apperrors.CodeInvalidState, wantMsg: "Start date cannot be in the past",
		},
		{
			name:      "empty period",
			vehicleID: f.vehicle.ID, customerID: f.customer.UserID,
			start: "2024-06-12", end: "2024-06-12",
			wantCode: apperrors.CodeInvalidState, wantMsg: "End date must be after start date",
		},
		{
			name:      "reversed period",
			vehicleID: f.vehicle.ID, customerID: f.customer.UserID,
			start: "2024-06-12", end: "2024-06-11",
			wantCode: apperrors.CodeInvalidState, wantMsg: "End date must be after start date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Admit(context.Background(), tt.vehicleID, tt.customerID,
				clock.MustDate(tt.start), clock.MustDate(tt.end))
			assertCode(t, err, tt.wantCode)
			assert.Equal(t, tt.wantMsg, apperrors.AsAppError(err).Message)
		})
	}

	assert.Empty(t, f.store.Bookings(f.vehicle.ID))
}

func TestAdmit_LockHeldTimesOutAsConflict(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.locks.Hold(f.vehicle.ID)

	_, err := f.admit(t, "2024-06-01", "2024-06-04")
	assertCode(t, err, apperrors.CodeConflict)
	assert.Empty(t, f.store.Bookings(f.vehicle.ID))
}

func TestAdmit_StorageFaultRollsBack(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.store.FailOn(repotest.OpSetAvailability, errors.New("write concern timeout"))

	_, err := f.admit(t, "2024-06-01", "2024-06-04")
	assertCode(t, err, apperrors.CodeStorageFault)

	assert.Empty(t, f.store.Bookings(f.vehicle.ID))
	assert.Equal(t, model.Available, f.availability())
	assert.Empty(t, f.publisher.types())
	assert.False(t, f.locks.Held(f.vehicle.ID))
}

func TestAdmit_ClaimsCustomerDocument(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	before := f.store.User(f.customer.UserID).Revision

	f.mustAdmit(t, "2024-06-01", "2024-06-04")
	assert.Equal(t, before+1, f.store.User(f.customer.UserID).Revision)

	f.store.FailOn(repotest.OpTouchUser, bookingserrors.ErrUserNotFound)
	_, err := f.admit(t, "2024-07-01", "2024-07-04")
	assertCode(t, err, apperrors.CodeNotFound)
	assert.Len(t, f.store.Bookings(f.vehicle.ID), 1)
	assert.False(t, f.locks.Held(f.vehicle.ID))
}

func TestAdmit_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	cfg := &config.Config{Log: logger.Discard(), LockTTL: time.Second, LockWaitTimeout: 5 * time.Second}
	ledger := f.store.Ledger()
	rec := reconciler.New(ledger, f.clock, nil, cfg.Log)
	svc := NewBookingService(ledger, f.locks, rec, validator.New(cfg.Log), f.clock, nil, cfg)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted, conflicts int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Admit(context.Background(), f.vehicle.ID, f.customer.UserID,
				clock.MustDate("2024-06-01"), clock.MustDate("2024-06-05"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if apperrors.HasCode(err, apperrors.CodeConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, workers-1, conflicts)
	assert.Len(t, f.store.Bookings(f.vehicle.ID), 1)
	f.assertDerived(t)
}

func TestAdmit_CancelledContextWhileWaitingForLock(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.locks.Hold(f.vehicle.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.Admit(ctx, f.vehicle.ID, f.customer.UserID,
		clock.MustDate("2024-06-01"), clock.MustDate("2024-06-04"))
	assertCode(t, err, apperrors.CodeTimeout)
}

// ────────────────────────────────────────────────
// Create
// ────────────────────────────────────────────────

func TestCreate_ValidatesShape(t *testing.T) {
	f := newFixture(t, "2024-05-20")

	_, err := f.service.Create(context.Background(), f.customer, &model.CreateBookingRequest{
		CustomerID:    f.customer.UserID,
		VehicleID:     "not-an-id",
		RentStartDate: "06/01/2024",
		RentEndDate:   "2024-06-04",
	})

	assertCode(t, err, apperrors.CodeInvalidInput)
	fields := apperrors.AsAppError(err).Details["fields"].(map[string]any)
	assert.Contains(t, fields, "vehicle_id")
	assert.Contains(t, fields, "rent_start_date")
}

func TestCreate_CustomerCannotBookForSomeoneElse(t *testing.T) {
	f := newFixture(t, "2024-05-20")

	_, err := f.service.Create(context.Background(), f.other, &model.CreateBookingRequest{
		CustomerID:    f.customer.UserID,
		VehicleID:     f.vehicle.ID,
		RentStartDate: "2024-06-01",
		RentEndDate:   "2024-06-04",
	})
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestCreate_AdminBooksForCustomer(t *testing.T) {
	f := newFixture(t, "2024-05-20")

	view, err := f.service.Create(context.Background(), f.admin, &model.CreateBookingRequest{
		CustomerID:    f.customer.UserID,
		VehicleID:     f.vehicle.ID,
		RentStartDate: "2024-06-01",
		RentEndDate:   "2024-06-04",
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.UserID, view.CustomerID)
}

// ────────────────────────────────────────────────
// Transitions
// ────────────────────────────────────────────────

func TestTransition_CustomerCancelsFutureBooking(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")

	view, err := f.service.Transition(context.Background(), booking.ID, f.customer, "cancelled")
	require.NoError(t, err)

	assert.Equal(t, model.BookingCancelled, view.Status)
	assert.Nil(t, view.Vehicle)
	assert.Equal(t, model.Available, f.availability())
	assert.Equal(t, []events.EventType{events.BookingAdmitted, events.BookingCancelled}, f.publisher.types())
}

func TestTransition_CancelKeepsVehicleBookedWhileOthersRemain(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	first := f.mustAdmit(t, "2024-06-01", "2024-06-04")
	f.mustAdmit(t, "2024-06-10", "2024-06-12")

	_, err := f.service.Transition(context.Background(), first.ID, f.customer, "cancelled")
	require.NoError(t, err)

	assert.Equal(t, model.Booked, f.availability())
	f.assertDerived(t)
}

func TestTransition_CustomerCannotCancelOnStartDay(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")

	f.clock.Day = clock.MustDate("2024-06-01")
	_, err := f.service.Transition(context.Background(), booking.ID, f.customer, "cancelled")

	assertCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, model.BookingActive, f.store.Booking(booking.ID).Status)
	assert.Equal(t, model.Booked, f.availability())
}

func TestTransition_AdminMarksReturned(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")

	view, err := f.service.Transition(context.Background(), booking.ID, f.admin, "returned")
	require.NoError(t, err)

	assert.Equal(t, model.BookingReturned, view.Status)
	require.NotNil(t, view.Vehicle)
	assert.Equal(t, model.Available, view.Vehicle.AvailabilityStatus)
	assert.Equal(t, model.Available, f.availability())
}

func TestTransition_Rules(t *testing.T) {
	tests := []struct {
		name     string
		actor    func(f *fixture) model.Identity
		id       func(f *fixture, bookingID string) string
		target   string
		prepare  func(t *testing.T, f *fixture, bookingID string)
		wantCode string
		wantMsg  string
	}{
		{
			name:     "malformed id",
			actor:    func(f *fixture) model.Identity { return f.admin },
			id:       func(*fixture, string) string { return "xyz" },
			target:   "bogus",
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "missing booking wins over bad target",
			actor:    func(f *fixture) model.Identity { return f.admin },
			id:       func(*fixture, string) string { return "65f000000000000000000000" },
			target:   "bogus",
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "unknown target",
			actor:    func(f *fixture) model.Identity { return f.customer },
			target:   "active",
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "empty target",
			actor:    func(f *fixture) model.Identity { return f.customer },
			target:   "",
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "customer touching another customer's booking",
			actor:    func(f *fixture) model.Identity { return f.other },
			target:   "cancelled",
			wantCode: apperrors.CodeForbidden,
		},
		{
			name:     "customer marking returned",
			actor:    func(f *fixture) model.Identity { return f.customer },
			target:   "returned",
			wantCode: apperrors.CodeInvalidState,
			wantMsg:  "Customers can only cancel bookings",
		},
		{
			name:     "admin cancelling",
			actor:    func(f *fixture) model.Identity { return f.admin },
			target:   "cancelled",
			wantCode: apperrors.CodeInvalidState,
			wantMsg:  "Invalid operation",
		},
		{
			name:   "customer cancelling twice",
			actor:  func(f *fixture) model.Identity { return f.customer },
			target: "cancelled",
			prepare: func(t *testing.T, f *fixture, id string) {
				_, err := f.service.Transition(context.Background(), id, f.customer, "cancelled")
				require.NoError(t, err)
			},
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:   "admin returning a cancelled booking",
			actor:  func(f *fixture) model.Identity { return f.admin },
			target: "returned",
			prepare: func(t *testing.T, f *fixture, id string) {
				_, err := f.service.Transition(context.Background(), id, f.customer, "cancelled")
				require.NoError(t, err)
			},
			wantCode: apperrors.CodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "2024-05-20")
			booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")
			if tt.prepare != nil {
				tt.prepare(t, f, booking.ID)
			}
			id := booking.ID
			if tt.id != nil {
				id = tt.id(f, booking.ID)
			}

			_, err := f.service.Transition(context.Background(), id, tt.actor(f), tt.target)
			assertCode(t, err, tt.wantCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apperrors.AsAppError(err).Message)
			}
			f.assertDerived(t)
		})
	}
}

func TestTransition_MissingStatusChecksBookingFirst(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	ctx := context.Background()

	_, err := f.service.Transition(ctx, "65f000000000000000000999", f.admin, "")
	assertCode(t, err, apperrors.CodeNotFound)

	view := f.mustAdmit(t, "2024-06-01", "2024-06-04")
	_, err = f.service.Transition(ctx, view.ID, f.admin, "")
	assertCode(t, err, apperrors.CodeInvalidInput)
}

func TestTransition_LostRaceIsInvalidState(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")
	f.store.FailOn(repotest.OpUpdateStatus, bookingserrors.ErrStatusChanged)

	_, err := f.service.Transition(context.Background(), booking.ID, f.admin, "returned")
	assertCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, model.Booked, f.availability())
}

// ────────────────────────────────────────────────
// Reads
// ────────────────────────────────────────────────

func TestGetByID_Ownership(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	booking := f.mustAdmit(t, "2024-06-01", "2024-06-04")

	view, err := f.service.GetByID(context.Background(), booking.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, view.ID)
	assert.Nil(t, view.Customer)

	_, err = f.service.GetByID(context.Background(), booking.ID, f.other)
	assertCode(t, err, apperrors.CodeForbidden)

	view, err = f.service.GetByID(context.Background(), booking.ID, f.admin)
	require.NoError(t, err)
	require.NotNil(t, view.Customer)
	assert.Equal(t, "alice", view.Customer.Name)
}

func TestList_ScopesByRole(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.mustAdmit(t, "2024-06-01", "2024-06-04")
	_, err := f.service.Admit(context.Background(), f.vehicle.ID, f.other.UserID,
		clock.MustDate("2024-06-10"), clock.MustDate("2024-06-12"))
	require.NoError(t, err)

	views, count, err := f.service.List(context.Background(), f.admin, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, views, 2)
	for _, v := range views {
		require.NotNil(t, v.Customer)
		require.NotNil(t, v.Vehicle)
		assert.Equal(t, "REG-corolla", v.Vehicle.RegistrationNumber)
		assert.Empty(t, v.Vehicle.Type)
	}

	views, count, err = f.service.List(context.Background(), f.customer, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, views, 1)
	assert.Equal(t, f.customer.UserID, views[0].CustomerID)
	assert.Nil(t, views[0].Customer)
	assert.Equal(t, model.VehicleTypeCar, views[0].Vehicle.Type)
}

func TestList_StorageFault(t *testing.T) {
	f := newFixture(t, "2024-05-20")
	f.store.FailOn(repotest.OpCount, errors.New("socket closed"))

	_, _, err := f.service.List(context.Background(), f.admin, 10, 0)
	assertCode(t, err, apperrors.CodeStorageFault)
}
