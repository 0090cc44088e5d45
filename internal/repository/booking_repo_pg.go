package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingReader {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT b.id, b.locator, b.flight_id, b.passenger_id, b.seats, b.amount_cents, b.status,
			b.created_at, b.confirmed_at, b.cancelled_at
		FROM idempotency_records r
		JOIN bookings b ON b.id = r.booking_id
		WHERE r.key=$1`, key)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "find by idempotency key")
	}
	return b, nil
}

func (r *PGBookingRepository) GetView(ctx context.Context, locator string) (*domain.BookingView, error) {
	row := r.db.QueryRow(ctx, `SELECT b.id, b.locator, b.status, b.flight_id, f.flight_number,
			p.first_name || ' ' || p.last_name, p.email, b.seats, b.amount_cents,
			b.created_at, b.confirmed_at, b.cancelled_at
		FROM bookings b
		JOIN flights f ON f.id = b.flight_id
		JOIN passengers p ON p.id = b.passenger_id
		WHERE b.locator=$1`, locator)

	var (
		v      domain.BookingView
		status string
	)
	if err := row.Scan(&v.BookingID, &v.Locator, &status, &v.FlightID, &v.FlightNumber, &v.PassengerName, &v.Email,
		&v.Seats, &v.AmountCents, &v.CreatedAt, &v.ConfirmedAt, &v.CancelledAt); err != nil {
		return nil, notFound(err, "get booking view")
	}
	st, err := domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	v.Status = st
	return &v, nil
}

func (r *PGBookingRepository) ListStaleReserved(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT locator FROM bookings
		WHERE status=$1 AND created_at <= $2
		ORDER BY created_at
		LIMIT $3`, string(domain.BookingStatusReserved), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}
	defer rows.Close()

	locators := make([]string, 0)
	for rows.Next() {
		var locator string
		if err := rows.Scan(&locator); err != nil {
			return nil, err
		}
		locators = append(locators, locator)
	}
	return locators, rows.Err()
}

var _ BookingReader = (*PGBookingRepository)(nil)
