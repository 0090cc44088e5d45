package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func (r *PGFlightRepository) Create(ctx context.Context, f *domain.Flight) (*domain.SeatInventory, error) {
	inv, err := domain.NewSeatInventory(f.ID, f.Capacity)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO flights (id, flight_number, from_airport, to_airport, departure_time, arrival_time, capacity, fare_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`, f.ID, f.FlightNumber, f.FromAirport, f.ToAirport, f.DepartureTime, f.ArrivalTime, f.Capacity, f.FareCents).
		Scan(&f.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert flight: %w", classify(err))
	}

	if _, err := tx.Exec(ctx, `INSERT INTO seat_inventories (flight_id, total_seats) VALUES ($1, $2)`, inv.FlightID, inv.Total); err != nil {
		return nil, fmt.Errorf("insert inventory: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit flight: %w", classify(err))
	}
	return inv, nil
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `SELECT id, flight_number, from_airport, to_airport, departure_time, arrival_time, capacity, fare_cents, created_at FROM flights WHERE id=$1`, id)
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.FlightNumber, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.Capacity, &f.FareCents, &f.CreatedAt); err != nil {
		return nil, notFound(err, "get flight")
	}
	return &f, nil
}

func (r *PGFlightRepository) GetInventory(ctx context.Context, flightID uuid.UUID) (*domain.SeatInventory, error) {
	row := r.db.QueryRow(ctx, `SELECT flight_id, total_seats, reserved_seats, confirmed_seats FROM seat_inventories WHERE flight_id=$1`, flightID)
	var inv domain.SeatInventory
	if err := row.Scan(&inv.FlightID, &inv.Total, &inv.Reserved, &inv.Confirmed); err != nil {
		return nil, notFound(err, "get inventory")
	}
	return &inv, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
