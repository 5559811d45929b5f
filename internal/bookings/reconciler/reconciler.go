package reconciler

import (
	"context"
	"errors"
	bookingserrors "fleetrent/internal/bookings/errors"
	"fleetrent/internal/bookings/repository"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/events"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/metrics"
	"fleetrent/pkg/model"
	"fmt"
)

const (
	TriggerScheduled = "scheduled"
	TriggerAdmission = "admission"
)

// Scope selects the vehicles a pass covers. The zero value is every vehicle.
type Scope struct {
	VehicleID string
}

var AllVehicles = Scope{}

func ForVehicle(vehicleID string) Scope {
	return Scope{VehicleID: vehicleID}
}

func (s Scope) trigger() string {
	if s.VehicleID == "" {
		return TriggerScheduled
	}
	return TriggerAdmission
}

// Reconciler moves active bookings whose end date has passed to returned.
// Reconcile never fails: a faulty pass is logged and abandoned, and the next
// trigger picks up whatever is left.
type Reconciler interface {
	Reconcile(ctx context.Context, scope Scope) int
}

type reconciler struct {
	ledger    *repository.Ledger
	clock     clock.Clock
	publisher events.Publisher
	log       *logger.Logger
}

func New(ledger *repository.Ledger, clk clock.Clock, publisher events.Publisher, log *logger.Logger) Reconciler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &reconciler{
		ledger:    ledger,
		clock:     clk,
		publisher: publisher,
		log:       log.Component("reconciler"),
	}
}

func (r *reconciler) Reconcile(ctx context.Context, scope Scope) (count int) {
	trigger := scope.trigger()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Reconciliation panicked", "trigger", trigger, "vehicle_id", scope.VehicleID, "panic", rec)
			metrics.ReconcileFailures.WithLabelValues(trigger).Inc()
		}
		if count > 0 {
			metrics.ReconciledTotal.WithLabelValues(trigger).Add(float64(count))
		}
	}()

	today := r.clock.Today()
	expired, err := r.ledger.Bookings.FindExpiredActive(ctx, today, scope.VehicleID)
	if err != nil {
		r.abandon(trigger, scope, err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	vehicleIDs, byVehicle := groupByVehicle(expired)
	for _, vehicleID := range vehicleIDs {
		n, err := r.returnExpired(ctx, vehicleID, byVehicle[vehicleID])
		if err != nil {
			r.abandon(trigger, scope, fmt.Errorf("vehicle %s: %w", vehicleID, err))
			return count
		}
		count += n
	}

	r.log.Info("Reconciliation completed",
		"trigger", trigger,
		"vehicle_id", scope.VehicleID,
		"today", clock.FormatDate(today),
		"returned", count,
	)
	return count
}

// returnExpired finalizes one vehicle's expired bookings in a single
// transaction and re-derives its availability.
func (r *reconciler) returnExpired(ctx context.Context, vehicleID string, bookings []*model.Booking) (int, error) {
	var returned []*model.Booking
	var availability model.AvailabilityStatus

	err := r.ledger.Bookings.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		returned = returned[:0]

		if err := r.ledger.Vehicles.Touch(txCtx, vehicleID); err != nil {
			return err
		}
		for _, b := range bookings {
			err := r.ledger.Bookings.UpdateStatus(txCtx, b.ID, model.BookingActive, model.BookingReturned)
			if errors.Is(err, bookingserrors.ErrStatusChanged) {
				continue
			}
			if err != nil {
				return err
			}
			returned = append(returned, b)
		}

		var err error
		availability, err = r.ledger.RefreshAvailability(txCtx, vehicleID)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, b := range returned {
		b.Status = model.BookingReturned
		r.publisher.Publish(ctx, events.NewBookingEvent(events.BookingReconciled, b, availability))
	}
	return len(returned), nil
}

func (r *reconciler) abandon(trigger string, scope Scope, err error) {
	metrics.ReconcileFailures.WithLabelValues(trigger).Inc()
	r.log.Error("Reconciliation pass abandoned",
		"trigger", trigger,
		"vehicle_id", scope.VehicleID,
		"error", err,
	)
}

func groupByVehicle(bookings []*model.Booking) ([]string, map[string][]*model.Booking) {
	var order []string
	grouped := make(map[string][]*model.Booking)
	for _, b := range bookings {
		if _, seen := grouped[b.VehicleID]; !seen {
			order = append(order, b.VehicleID)
		}
		grouped[b.VehicleID] = append(grouped[b.VehicleID], b)
	}
	return order, grouped
}
