package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrLocatorTaken        = fmt.Errorf("%w: locator already taken", domain.ErrConflict)
	ErrIdempotencyKeyTaken = fmt.Errorf("%w: idempotency key already recorded", domain.ErrConflict)
)

// Store runs fn inside one transaction. A nil return commits everything fn did;
// any error rolls all of it back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// UnitOfWork is the set of writes a booking use case can make in a single commit.
type UnitOfWork interface {
	// LockInventory loads the flight's counters and holds them until commit.
	LockInventory(ctx context.Context, flightID uuid.UUID) (*domain.SeatInventory, error)
	SaveInventory(ctx context.Context, inv *domain.SeatInventory) error
	InsertPassenger(ctx context.Context, p *domain.Passenger) error
	GetPassenger(ctx context.Context, id uuid.UUID) (*domain.Passenger, error)
	// InsertBooking fails with ErrLocatorTaken when the locator is already used.
	InsertBooking(ctx context.Context, b *domain.Booking) error
	// LockBooking loads a booking by locator and holds it until commit.
	LockBooking(ctx context.Context, locator string) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, b *domain.Booking) error
	// ClaimIdempotencyKey fails with ErrIdempotencyKeyTaken when key was committed before.
	ClaimIdempotencyKey(ctx context.Context, key string, bookingID uuid.UUID, now time.Time) error
	AppendOutbox(ctx context.Context, msg *OutboxMessage) error
}

type BookingReader interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error)
	GetView(ctx context.Context, locator string) (*domain.BookingView, error)
	ListStaleReserved(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type FlightRepository interface {
	// Create stores the flight together with its seat inventory.
	Create(ctx context.Context, flight *domain.Flight) (*domain.SeatInventory, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	GetInventory(ctx context.Context, flightID uuid.UUID) (*domain.SeatInventory, error)
}

type OutboxMessage struct {
	ID        int64
	Topic     string
	Key       string
	Payload   []byte
	Headers   map[string]string
	CreatedAt time.Time
}

// PublishFunc delivers a batch in order and returns how many leading messages were delivered.
type PublishFunc func(ctx context.Context, msgs []OutboxMessage) (int, error)

type OutboxRepository interface {
	// Dispatch locks up to limit pending messages, passes them to publish and
	// marks the delivered prefix as published.
	Dispatch(ctx context.Context, limit int, publish PublishFunc) (int, error)
}
