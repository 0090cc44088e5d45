package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pgUnitOfWork struct {
	tx pgx.Tx
}

const bookingColumns = `id, locator, flight_id, passenger_id, seats, amount_cents, status, created_at, confirmed_at, cancelled_at`

func (u *pgUnitOfWork) LockInventory(ctx context.Context, flightID uuid.UUID) (*domain.SeatInventory, error) {
	row := u.tx.QueryRow(ctx, `SELECT flight_id, total_seats, reserved_seats, confirmed_seats
		FROM seat_inventories WHERE flight_id=$1 FOR UPDATE`, flightID)
	var inv domain.SeatInventory
	if err := row.Scan(&inv.FlightID, &inv.Total, &inv.Reserved, &inv.Confirmed); err != nil {
		return nil, notFound(err, "lock inventory")
	}
	return &inv, nil
}

func (u *pgUnitOfWork) SaveInventory(ctx context.Context, inv *domain.SeatInventory) error {
	if err := inv.Check(); err != nil {
		return err
	}
	cmd, err := u.tx.Exec(ctx, `UPDATE seat_inventories
		SET reserved_seats=$2, confirmed_seats=$3, updated_at=now()
		WHERE flight_id=$1`, inv.FlightID, inv.Reserved, inv.Confirmed)
	if err != nil {
		return fmt.Errorf("save inventory: %w", classify(err))
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("save inventory %s: %w", inv.FlightID, domain.ErrNotFound)
	}
	return nil
}

func (u *pgUnitOfWork) InsertPassenger(ctx context.Context, p *domain.Passenger) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO passengers (id, first_name, last_name, email) VALUES ($1, $2, $3, $4)`,
		p.ID, p.FirstName, p.LastName, p.Email)
	if err != nil {
		return fmt.Errorf("insert passenger: %w", classify(err))
	}
	return nil
}

func (u *pgUnitOfWork) GetPassenger(ctx context.Context, id uuid.UUID) (*domain.Passenger, error) {
	var p domain.Passenger
	err := u.tx.QueryRow(ctx, `SELECT id, first_name, last_name, email FROM passengers WHERE id=$1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if err != nil {
		return nil, notFound(err, "get passenger")
	}
	return &p, nil
}

func (u *pgUnitOfWork) InsertBooking(ctx context.Context, b *domain.Booking) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Locator, b.FlightID, b.PassengerID, b.Seats, b.AmountCents, string(b.Status), b.CreatedAt, b.ConfirmedAt, b.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", classify(err))
	}
	return nil
}

func (u *pgUnitOfWork) LockBooking(ctx context.Context, locator string) (*domain.Booking, error) {
	row := u.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE locator=$1 FOR UPDATE`, locator)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "lock booking")
	}
	return b, nil
}

func (u *pgUnitOfWork) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	cmd, err := u.tx.Exec(ctx, `UPDATE bookings SET status=$2, confirmed_at=$3, cancelled_at=$4 WHERE id=$1`,
		b.ID, string(b.Status), b.ConfirmedAt, b.CancelledAt)
	if err != nil {
		return fmt.Errorf("update booking: %w", classify(err))
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("update booking %s: %w", b.Locator, domain.ErrNotFound)
	}
	return nil
}

func (u *pgUnitOfWork) ClaimIdempotencyKey(ctx context.Context, key string, bookingID uuid.UUID, now time.Time) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO idempotency_records (key, booking_id, created_at) VALUES ($1, $2, $3)`,
		key, bookingID, now.UTC())
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", classify(err))
	}
	return nil
}

func (u *pgUnitOfWork) AppendOutbox(ctx context.Context, msg *OutboxMessage) error {
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	err := u.tx.QueryRow(ctx, `INSERT INTO outbox_events (topic, message_key, payload, headers)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`, msg.Topic, msg.Key, msg.Payload, headers).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox: %w", classify(err))
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.Locator, &b.FlightID, &b.PassengerID, &b.Seats, &b.AmountCents, &status,
		&b.CreatedAt, &b.ConfirmedAt, &b.CancelledAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	b.Status = st
	return &b, nil
}

var _ UnitOfWork = (*pgUnitOfWork)(nil)
