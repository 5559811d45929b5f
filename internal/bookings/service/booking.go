package service

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/internal/bookings/reconciler"
	"fleetrent/internal/bookings/repository"
	"fleetrent/internal/bookings/validator"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/config"
	apperrors "fleetrent/pkg/errors"
	"fleetrent/pkg/events"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/metrics"
	"fleetrent/pkg/model"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	lockRetryInitial = 10 * time.Millisecond
	lockRetryMax     = 200 * time.Millisecond
	lockReleaseWait  = 5 * time.Second
)

type BookingService interface {
	// Create validates a request from an authenticated caller and admits it.
	Create(ctx context.Context, actor model.Identity, req *model.CreateBookingRequest) (*model.BookingView, error)
	// Admit reserves vehicleID for customerID over [start, end).
	Admit(ctx context.Context, vehicleID, customerID string, start, end time.Time) (*model.BookingView, error)
	// Transition moves an active booking to cancelled or returned.
	Transition(ctx context.Context, id string, actor model.Identity, target string) (*model.BookingView, error)
	GetByID(ctx context.Context, id string, actor model.Identity) (*model.BookingView, error)
	List(ctx context.Context, actor model.Identity, limit int, offset int64) ([]*model.BookingView, int64, error)
}

type bookingService struct {
	ledger     *repository.Ledger
	locks      repository.VehicleLockRepository
	reconciler reconciler.Reconciler
	validator  *validator.Validator
	clock      clock.Clock
	publisher  events.Publisher
	cfg        *config.Config
	log        *logger.Logger
}

func NewBookingService(
	ledger *repository.Ledger,
	locks repository.VehicleLockRepository,
	rec reconciler.Reconciler,
	validator *validator.Validator,
	clk clock.Clock,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &bookingService{
		ledger:     ledger,
		locks:      locks,
		reconciler: rec,
		validator:  validator,
		clock:      clk,
		publisher:  publisher,
		cfg:        cfg,
		log:        cfg.Log.Component("bookings"),
	}
}

func (s *bookingService) Create(ctx context.Context, actor model.Identity, req *model.CreateBookingRequest) (*model.BookingView, error) {
	if err := s.validator.ValidateCreateBooking(req); err != nil {
		s.log.Warn("Booking validation failed", "error", err)
		return nil, invalidRequest("Invalid booking request", err)
	}

	if !actor.IsAdmin() && req.CustomerID != actor.UserID {
		return nil, apperrors.Forbidden("Customers can only create bookings for themselves")
	}

	// Shape validation guarantees both dates parse.
	start, _ := clock.ParseDate(req.RentStartDate)
	end, _ := clock.ParseDate(req.RentEndDate)

	return s.Admit(ctx, req.VehicleID, req.CustomerID, start, end)
}

func (s *bookingService) Admit(ctx context.Context, vehicleID, customerID string, start, end time.Time) (view *model.BookingView, err error) {
	started := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = apperrors.AsAppError(err).Code
		}
		metrics.AdmissionsTotal.WithLabelValues(outcome).Inc()
		metrics.AdmissionDuration.Observe(time.Since(started).Seconds())
	}()

	start, end = clock.Truncate(start), clock.Truncate(end)

	customer, err := s.ledger.Users.FindByID(ctx, customerID)
	if err != nil {
		return nil, s.translate(err, "Customer", customerID)
	}
	vehicle, err := s.ledger.Vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, s.translate(err, "Vehicle", vehicleID)
	}

	today := s.clock.Today()
	if start.Before(today) {
		return nil, apperrors.InvalidState("Start date cannot be in the past")
	}
	if !end.After(start) {
		return nil, apperrors.InvalidState("End date must be after start date")
	}

	release, err := s.acquireVehicleLock(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Flush expired bookings first so they cannot produce a false conflict.
	// Holding the lock makes this and the insert one unit for other admissions.
	s.reconciler.Reconcile(ctx, reconciler.ForVehicle(vehicleID))

	var booking *model.Booking
	var availability model.AvailabilityStatus
	err = s.ledger.Bookings.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Vehicles.Touch(txCtx, vehicleID); err != nil {
			return err
		}
		if err := s.ledger.Users.Touch(txCtx, customer.ID); err != nil {
			return err
		}

		active, err := s.ledger.Bookings.FindActiveByVehicle(txCtx, vehicleID)
		if err != nil {
			return err
		}
		for _, b := range active {
			if b.Overlaps(start, end) {
				return apperrors.Conflict("Vehicle is already booked for the selected dates").WithDetails(map[string]any{
					"conflicting_start": clock.FormatDate(b.RentStartDate),
					"conflicting_end":   clock.FormatDate(b.RentEndDate),
				})
			}
		}

		booking = &model.Booking{
			CustomerID:    customer.ID,
			VehicleID:     vehicle.ID,
			RentStartDate: start,
			RentEndDate:   end,
			Status:        model.BookingActive,
		}
		booking.TotalPrice = vehicle.DailyRentPrice * int64(booking.Days())

		if err := s.ledger.Bookings.Create(txCtx, booking); err != nil {
			return err
		}

		availability, err = s.ledger.RefreshAvailability(txCtx, vehicleID)
		return err
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			s.log.Warn("Booking rejected by overlap check",
				"vehicle_id", vehicleID,
				"rent_start_date", clock.FormatDate(start),
				"rent_end_date", clock.FormatDate(end),
			)
			return nil, err
		}
		if errors.Is(err, bookingserrors.ErrUserNotFound) {
			return nil, s.translate(err, "Customer", customerID)
		}
		s.log.Error("Failed to admit booking", "vehicle_id", vehicleID, "error", err)
		return nil, s.translate(err, "Vehicle", vehicleID)
	}

	s.log.Info("Booking admitted",
		"id", booking.ID,
		"vehicle_id", vehicleID,
		"customer_id", customerID,
		"rent_start_date", clock.FormatDate(start),
		"rent_end_date", clock.FormatDate(end),
		"total_price", booking.TotalPrice,
	)
	s.publisher.Publish(ctx, events.NewBookingEvent(events.BookingAdmitted, booking, availability))

	view = model.NewBookingView(booking)
	view.Vehicle = &model.VehicleSummary{
		Name:               vehicle.Name,
		DailyRentPrice:     vehicle.DailyRentPrice,
		AvailabilityStatus: availability,
	}
	return view, nil
}

func (s *bookingService) Transition(ctx context.Context, id string, actor model.Identity, target string) (view *model.BookingView, err error) {
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = apperrors.AsAppError(err).Code
		}
		metrics.TransitionsTotal.WithLabelValues(target, outcome).Inc()
	}()

	booking, err := s.ledger.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "Booking", id)
	}

	to := model.BookingStatus(target)
	if to != model.BookingCancelled && to != model.BookingReturned {
		return nil, apperrors.InvalidInput("Status must be 'cancelled' or 'returned'")
	}

	if err := s.authorizeTransition(booking, actor, to); err != nil {
		s.log.Warn("Booking transition rejected",
			"id", id,
			"actor", actor.UserID,
			"role", actor.Role,
			"target", target,
			"error", err,
		)
		return nil, err
	}

	var availability model.AvailabilityStatus
	err = s.ledger.Bookings.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Vehicles.Touch(txCtx, booking.VehicleID); err != nil {
			return err
		}
		if err := s.ledger.Bookings.UpdateStatus(txCtx, booking.ID, model.BookingActive, to); err != nil {
			return err
		}

		var err error
		availability, err = s.ledger.RefreshAvailability(txCtx, booking.VehicleID)
		return err
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusChanged) {
			return nil, apperrors.InvalidState(fmt.Sprintf("Only active bookings can be %s", to))
		}
		s.log.Error("Failed to transition booking", "id", id, "target", target, "error", err)
		return nil, s.translate(err, "Booking", id)
	}

	booking.Status = to
	s.log.Info("Booking transitioned",
		"id", booking.ID,
		"vehicle_id", booking.VehicleID,
		"status", to,
		"availability", availability,
	)

	eventType := events.BookingCancelled
	if to == model.BookingReturned {
		eventType = events.BookingReturned
	}
	s.publisher.Publish(ctx, events.NewBookingEvent(eventType, booking, availability))

	view = model.NewBookingView(booking)
	if to == model.BookingReturned {
		view.Vehicle = &model.VehicleSummary{AvailabilityStatus: availability}
	}
	return view, nil
}

// authorizeTransition applies the role rules in order. Customers may cancel
// their own future bookings; admins may mark any active booking returned.
func (s *bookingService) authorizeTransition(b *model.Booking, actor model.Identity, to model.BookingStatus) error {
	switch actor.Role {
	case model.RoleCustomer:
		if b.CustomerID != actor.UserID {
			return apperrors.Forbidden("You can only update your own bookings")
		}
		if to != model.BookingCancelled {
			return apperrors.InvalidState("Customers can only cancel bookings")
		}
		if b.Status != model.BookingActive {
			return apperrors.InvalidState("Only active bookings can be cancelled")
		}
		if !b.RentStartDate.After(s.clock.Today()) {
			return apperrors.InvalidState("Cannot cancel booking on or after start date")
		}
		return nil
	case model.RoleAdmin:
		if to != model.BookingReturned {
			return apperrors.InvalidState("Invalid operation")
		}
		if b.Status != model.BookingActive {
			return apperrors.InvalidState("Only active bookings can be marked as returned")
		}
		return nil
	default:
		return apperrors.InvalidState("Invalid operation")
	}
}

func (s *bookingService) GetByID(ctx context.Context, id string, actor model.Identity) (*model.BookingView, error) {
	booking, err := s.ledger.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "Booking", id)
	}
	if !actor.IsAdmin() && booking.CustomerID != actor.UserID {
		return nil, apperrors.Forbidden("You can only view your own bookings")
	}

	views, err := s.enrich(ctx, []*model.Booking{booking}, actor)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// List returns every booking to an admin and only the caller's own bookings
// to a customer.
func (s *bookingService) List(ctx context.Context, actor model.Identity, limit int, offset int64) ([]*model.BookingView, int64, error) {
	customerID := ""
	if !actor.IsAdmin() {
		customerID = actor.UserID
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.ledger.Bookings.Count(ctx, customerID)
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.ledger.Bookings.FindAll(ctx, customerID, limit, offset)
	}()

	wg.Wait()
	if err := errors.Join(errCount, errFind); err != nil {
		s.log.Error("Failed to list bookings", "customer_id", customerID, "error", err)
		return nil, 0, apperrors.StorageFault("Failed to retrieve bookings", err)
	}

	views, err := s.enrich(ctx, bookings, actor)
	if err != nil {
		return nil, 0, err
	}
	return views, count, nil
}

// enrich attaches the vehicle summary, plus the customer for admins.
func (s *bookingService) enrich(ctx context.Context, bookings []*model.Booking, actor model.Identity) ([]*model.BookingView, error) {
	vehicleIDs := make([]string, 0, len(bookings))
	customerIDs := make([]string, 0, len(bookings))
	for _, b := range bookings {
		vehicleIDs = append(vehicleIDs, b.VehicleID)
		customerIDs = append(customerIDs, b.CustomerID)
	}

	vehicles, err := s.ledger.Vehicles.FindByIDs(ctx, unique(vehicleIDs))
	if err != nil {
		return nil, apperrors.StorageFault("Failed to load vehicles", err)
	}

	var customers map[string]*model.User
	if actor.IsAdmin() {
		customers, err = s.ledger.Users.FindByIDs(ctx, unique(customerIDs))
		if err != nil {
			return nil, apperrors.StorageFault("Failed to load customers", err)
		}
	}

	views := make([]*model.BookingView, 0, len(bookings))
	for _, b := range bookings {
		view := model.NewBookingView(b)
		if v, ok := vehicles[b.VehicleID]; ok {
			view.Vehicle = &model.VehicleSummary{
				Name:               v.Name,
				RegistrationNumber: v.RegistrationNumber,
			}
			if !actor.IsAdmin() {
				view.Vehicle.Type = v.Type
			}
		}
		if c, ok := customers[b.CustomerID]; ok {
			view.Customer = &model.CustomerSummary{Name: c.Name, Email: c.Email}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *bookingService) acquireVehicleLock(ctx context.Context, vehicleID string) (func(), error) {
	owner := uuid.NewString()
	started := time.Now()
	deadline := started.Add(s.cfg.LockWaitTimeout)
	backoff := lockRetryInitial

	for {
		err := s.locks.Acquire(ctx, vehicleID, owner, s.cfg.LockTTL)
		if err == nil {
			metrics.LockWaitDuration.Observe(time.Since(started).Seconds())
			return func() { s.releaseVehicleLock(ctx, vehicleID, owner) }, nil
		}
		if !errors.Is(err, bookingserrors.ErrLockHeld) {
			return nil, apperrors.StorageFault("Failed to acquire vehicle lock", err)
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, apperrors.Conflict("This vehicle is currently being booked by another request. Please try again.")
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.Timeout("Timed out waiting for vehicle lock")
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, lockRetryMax)
	}
}

// releaseVehicleLock runs even if the request context is already cancelled.
func (s *bookingService) releaseVehicleLock(ctx context.Context, vehicleID, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseWait)
	defer cancel()

	if err := s.locks.Release(ctx, vehicleID, owner); err != nil {
		s.log.Warn("Failed to release vehicle lock", "vehicle_id", vehicleID, "error", err)
	}
}

// translate maps ledger errors onto the public error classes. Anything not
// recognised is a storage fault.
func (s *bookingService) translate(err error, resource, id string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput(fmt.Sprintf("Invalid %s ID", resource))
	case errors.Is(err, bookingserrors.ErrUserNotFound):
		return apperrors.NotFoundWithID("Customer", id)
	case errors.Is(err, bookingserrors.ErrVehicleNotFound):
		return apperrors.NotFoundWithID("Vehicle", id)
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	default:
		return apperrors.StorageFault(fmt.Sprintf("Failed to access %s", resource), err)
	}
}

func invalidRequest(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.InvalidInput(message).WithDetails(verrs.Details())
	}
	return apperrors.InvalidInput(message)
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
