package kafka

import (
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
)

type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   uuid.UUID `json:"booking_id"`
	Locator     string    `json:"locator"`
	FlightID    uuid.UUID `json:"flight_id"`
	Seats       int       `json:"seats"`
	AmountCents int64     `json:"amount_cents"`
	Email       string    `json:"email,omitempty"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *domain.Booking, email string, at time.Time) BookingEvent {
	return BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		Locator:     b.Locator,
		FlightID:    b.FlightID,
		Seats:       b.Seats,
		AmountCents: b.AmountCents,
		Email:       email,
		Status:      string(b.Status),
		OccurredAt:  at.UTC(),
	}
}
