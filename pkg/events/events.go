// Package events publishes booking lifecycle changes after they commit.
// Publishing is best effort: the ledger is the source of truth and a lost
// event never rolls back a booking.
package events

import (
	"context"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/kafka"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"time"
)

type EventType string

const (
	BookingAdmitted   EventType = "booking.admitted"
	BookingCancelled  EventType = "booking.cancelled"
	BookingReturned   EventType = "booking.returned"
	BookingReconciled EventType = "booking.reconciled"

	SchemaVersion = "1"
	Source        = "fleetrent-bookings"
)

type BookingEvent struct {
	Type         EventType                `json:"type"`
	BookingID    string                   `json:"booking_id"`
	VehicleID    string                   `json:"vehicle_id"`
	CustomerID   string                   `json:"customer_id"`
	StartDate    string                   `json:"rent_start_date"`
	EndDate      string                   `json:"rent_end_date"`
	Status       model.BookingStatus      `json:"status"`
	TotalPrice   int64                    `json:"total_price"`
	Availability model.AvailabilityStatus `json:"availability_status"`
	OccurredAt   time.Time                `json:"occurred_at"`
}

func NewBookingEvent(t EventType, b *model.Booking, availability model.AvailabilityStatus) BookingEvent {
	return BookingEvent{
		Type:         t,
		BookingID:    b.ID,
		VehicleID:    b.VehicleID,
		CustomerID:   b.CustomerID,
		StartDate:    clock.FormatDate(b.RentStartDate),
		EndDate:      clock.FormatDate(b.RentEndDate),
		Status:       b.Status,
		TotalPrice:   b.TotalPrice,
		Availability: availability,
		OccurredAt:   time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event BookingEvent)
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, BookingEvent) {}

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaPublisher struct {
	producer messagePublisher
	timeout  time.Duration
	log      *logger.Logger
}

func NewKafkaPublisher(producer messagePublisher, timeout time.Duration, log *logger.Logger) Publisher {
	return &kafkaPublisher{producer: producer, timeout: timeout, log: log}
}

// Publish keys messages by vehicle so one vehicle's events stay ordered.
// Failures are logged.
func (p *kafkaPublisher) Publish(ctx context.Context, event BookingEvent) {
	msg, err := kafka.NewMessage().
		WithKey(event.VehicleID).
		WithEventType(string(event.Type)).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithCorrelationID(correlationID(ctx)).
		WithValue(event).
		Build()
	if err != nil {
		p.log.Error("Failed to build booking event", "booking_id", event.BookingID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish booking event",
			"booking_id", event.BookingID,
			"event_type", event.Type,
			"transient", kafka.ClassifyError(err) == kafka.ErrorTypeTransient,
			"error", err,
		)
	}
}

type correlationKey struct{}

// WithCorrelationID attaches the request ID so events can be traced back.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}
