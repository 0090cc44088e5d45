package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SeatInventory tracks seat counts for exactly one flight.
// Invariant: 0 <= Reserved, 0 <= Confirmed, Reserved+Confirmed <= Total.
type SeatInventory struct {
	FlightID  uuid.UUID `json:"flight_id"`
	Total     int       `json:"total_seats"`
	Reserved  int       `json:"reserved_seats"`
	Confirmed int       `json:"confirmed_seats"`
}

func NewSeatInventory(flightID uuid.UUID, total int) (*SeatInventory, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total seats must be positive", ErrInvalidInput)
	}
	return &SeatInventory{FlightID: flightID, Total: total}, nil
}

func (i *SeatInventory) Available() int {
	return i.Total - i.Reserved - i.Confirmed
}

// Reserve holds n seats provisionally.
func (i *SeatInventory) Reserve(n int) error {
	if err := requirePositive(n); err != nil {
		return err
	}
	if i.Available() < n {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientCapacity, n, i.Available())
	}
	i.Reserved += n
	return nil
}

// Confirm moves n seats from reserved to confirmed.
func (i *SeatInventory) Confirm(n int) error {
	if err := requirePositive(n); err != nil {
		return err
	}
	if i.Reserved < n {
		return fmt.Errorf("%w: cannot confirm %d seats, only %d reserved", ErrInvalidState, n, i.Reserved)
	}
	i.Reserved -= n
	i.Confirmed += n
	return nil
}

// Release returns n reserved seats to the pool.
func (i *SeatInventory) Release(n int) error {
	if err := requirePositive(n); err != nil {
		return err
	}
	if i.Reserved < n {
		return fmt.Errorf("%w: cannot release %d seats, only %d reserved", ErrInvalidState, n, i.Reserved)
	}
	i.Reserved -= n
	return nil
}

// Revoke returns n confirmed seats to the pool. Used when a confirmed booking is cancelled.
func (i *SeatInventory) Revoke(n int) error {
	if err := requirePositive(n); err != nil {
		return err
	}
	if i.Confirmed < n {
		return fmt.Errorf("%w: cannot revoke %d seats, only %d confirmed", ErrInvalidState, n, i.Confirmed)
	}
	i.Confirmed -= n
	return nil
}

// Check reports whether the counters are consistent.
func (i *SeatInventory) Check() error {
	if i.Reserved < 0 || i.Confirmed < 0 || i.Reserved+i.Confirmed > i.Total {
		return fmt.Errorf("%w: inventory for flight %s has total=%d reserved=%d confirmed=%d",
			ErrIntegrity, i.FlightID, i.Total, i.Reserved, i.Confirmed)
	}
	return nil
}

func requirePositive(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: seat count must be positive, got %d", ErrInvalidInput, n)
	}
	return nil
}
