package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Flight struct {
	ID            uuid.UUID `json:"id"`
	FlightNumber  string    `json:"flight_number"`
	FromAirport   string    `json:"from_airport"`
	ToAirport     string    `json:"to_airport"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Capacity      int       `json:"capacity"`
	FareCents     int64     `json:"fare_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewFlight normalises codes to upper case and rejects schedules or capacities
// that could never be booked.
func NewFlight(number, from, to string, departure, arrival time.Time, capacity int, fareCents int64) (*Flight, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	switch {
	case number == "":
		return nil, fmt.Errorf("%w: flight number is required", ErrInvalidInput)
	case len(from) != 3 || len(to) != 3:
		return nil, fmt.Errorf("%w: airports must be 3-letter codes", ErrInvalidInput)
	case from == to:
		return nil, fmt.Errorf("%w: origin and destination must differ", ErrInvalidInput)
	case !arrival.After(departure):
		return nil, fmt.Errorf("%w: arrival must be after departure", ErrInvalidInput)
	case capacity <= 0:
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidInput)
	case fareCents < 0:
		return nil, fmt.Errorf("%w: fare must not be negative", ErrInvalidInput)
	}

	return &Flight{
		ID:            uuid.New(),
		FlightNumber:  number,
		FromAirport:   from,
		ToAirport:     to,
		DepartureTime: departure.UTC(),
		ArrivalTime:   arrival.UTC(),
		Capacity:      capacity,
		FareCents:     fareCents,
	}, nil
}

// PriceFor is the fare multiplied by the seat count; no other pricing rules apply.
func (f *Flight) PriceFor(seats int) int64 {
	return f.FareCents * int64(seats)
}
