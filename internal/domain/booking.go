package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusReserved  BookingStatus = "RESERVED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingStatusReserved, BookingStatusConfirmed, BookingStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown booking status %q", ErrIntegrity, s)
	}
}

// Terminal reports whether no further transition can change the status.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled
}

type Booking struct {
	ID          uuid.UUID
	Locator     string
	FlightID    uuid.UUID
	PassengerID uuid.UUID
	Seats       int
	AmountCents int64
	Status      BookingStatus
	CreatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
}

func NewBooking(locator string, flightID, passengerID uuid.UUID, seats int, amountCents int64, now time.Time) (*Booking, error) {
	if seats <= 0 {
		return nil, fmt.Errorf("%w: seats must be positive", ErrInvalidInput)
	}
	if amountCents < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	return &Booking{
		ID:          uuid.New(),
		Locator:     locator,
		FlightID:    flightID,
		PassengerID: passengerID,
		Seats:       seats,
		AmountCents: amountCents,
		Status:      BookingStatusReserved,
		CreatedAt:   now.UTC(),
	}, nil
}

// Confirm is allowed from Reserved and re-stamps an already confirmed booking.
func (b *Booking) Confirm(now time.Time) error {
	if b.Status == BookingStatusCancelled {
		return fmt.Errorf("%w: booking %s is cancelled", ErrInvalidState, b.Locator)
	}
	t := now.UTC()
	b.Status = BookingStatusConfirmed
	b.ConfirmedAt = &t
	return nil
}

// Cancel voids the booking and reports whether the status changed.
// Seats are not touched here; the caller returns them to inventory.
func (b *Booking) Cancel(now time.Time) bool {
	if b.Status == BookingStatusCancelled {
		return false
	}
	t := now.UTC()
	b.Status = BookingStatusCancelled
	b.CancelledAt = &t
	return true
}

// BookingView is the read projection returned by lookups.
type BookingView struct {
	BookingID     uuid.UUID     `json:"booking_id"`
	Locator       string        `json:"locator"`
	Status        BookingStatus `json:"status"`
	FlightID      uuid.UUID     `json:"flight_id"`
	FlightNumber  string        `json:"flight_number"`
	PassengerName string        `json:"passenger"`
	Email         string        `json:"email"`
	Seats         int           `json:"seats"`
	AmountCents   int64         `json:"amount_cents"`
	CreatedAt     time.Time     `json:"created_at"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
}
