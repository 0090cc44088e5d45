package booking

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	"github.com/google/uuid"
)

// memStore is an in-memory transactional store. A single mutex serialises
// transactions, which gives the same outcome as row locks for these tests,
// and a failed transaction restores the snapshot taken when it began.
type memStore struct {
	mu          sync.Mutex
	flights     map[uuid.UUID]domain.Flight
	inventories map[uuid.UUID]domain.SeatInventory
	passengers  map[uuid.UUID]domain.Passenger
	bookings    map[string]domain.Booking
	keys        map[string]uuid.UUID
	outbox      []repository.OutboxMessage
	commits     int
	rollbacks   int

	// beforeCommit runs after fn succeeded and before the commit decision.
	beforeCommit func(ctx context.Context)
}

type memSnapshot struct {
	inventories map[uuid.UUID]domain.SeatInventory
	passengers  map[uuid.UUID]domain.Passenger
	bookings    map[string]domain.Booking
	keys        map[string]uuid.UUID
	outbox      []repository.OutboxMessage
}

func newMemStore() *memStore {
	return &memStore{
		flights:     map[uuid.UUID]domain.Flight{},
		inventories: map[uuid.UUID]domain.SeatInventory{},
		passengers:  map[uuid.UUID]domain.Passenger{},
		bookings:    map[string]domain.Booking{},
		keys:        map[string]uuid.UUID{},
	}
}

func (s *memStore) addFlight(capacity int, fareCents int64) *domain.Flight {
	dep := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	f, err := domain.NewFlight("SU-100", "SVO", "LED", dep, dep.Add(90*time.Minute), capacity, fareCents)
	if err != nil {
		panic(err)
	}
	inv, err := domain.NewSeatInventory(f.ID, capacity)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights[f.ID] = *f
	s.inventories[f.ID] = *inv
	return f
}

func (s *memStore) inventory(flightID uuid.UUID) domain.SeatInventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventories[flightID]
}

func (s *memStore) bookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

func (s *memStore) passengerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.passengers)
}

func (s *memStore) outboxMessages() []repository.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		inventories: maps.Clone(s.inventories),
		passengers:  maps.Clone(s.passengers),
		bookings:    maps.Clone(s.bookings),
		keys:        maps.Clone(s.keys),
		outbox:      slices.Clone(s.outbox),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.inventories = snap.inventories
	s.passengers = snap.passengers
	s.bookings = snap.bookings
	s.keys = snap.keys
	s.outbox = snap.outbox
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	err := fn(ctx, &memUnitOfWork{s: s})
	if err == nil && s.beforeCommit != nil {
		s.beforeCommit(ctx)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.restore(snap)
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

// GetByID makes memStore usable as the service's flight lookup.
func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[id]
	if !ok {
		return nil, fmt.Errorf("flight %s: %w", id, domain.ErrNotFound)
	}
	return &f, nil
}

func (s *memStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	if !ok {
		return nil, fmt.Errorf("idempotency key %q: %w", key, domain.ErrNotFound)
	}
	for _, b := range s.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
}

func (s *memStore) GetView(ctx context.Context, code string) (*domain.BookingView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[code]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", code, domain.ErrNotFound)
	}
	f := s.flights[b.FlightID]
	p := s.passengers[b.PassengerID]
	return &domain.BookingView{
		BookingID:     b.ID,
		Locator:       b.Locator,
		Status:        b.Status,
		FlightID:      b.FlightID,
		FlightNumber:  f.FlightNumber,
		PassengerName: p.DisplayName(),
		Email:         p.Email,
		Seats:         b.Seats,
		AmountCents:   b.AmountCents,
		CreatedAt:     b.CreatedAt,
		ConfirmedAt:   b.ConfirmedAt,
		CancelledAt:   b.CancelledAt,
	}, nil
}

func (s *memStore) ListStaleReserved(ctx context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []domain.Booking
	for _, b := range s.bookings {
		if b.Status == domain.BookingStatusReserved && b.CreatedAt.Before(before) {
			stale = append(stale, b)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	var out []string
	for _, b := range stale {
		if len(out) >= limit {
			break
		}
		out = append(out, b.Locator)
	}
	return out, nil
}

// memUnitOfWork runs with memStore.mu already held.
type memUnitOfWork struct {
	s *memStore
}

func (u *memUnitOfWork) LockInventory(ctx context.Context, flightID uuid.UUID) (*domain.SeatInventory, error) {
	inv, ok := u.s.inventories[flightID]
	if !ok {
		return nil, fmt.Errorf("lock inventory: %w", domain.ErrNotFound)
	}
	return &inv, nil
}

func (u *memUnitOfWork) SaveInventory(ctx context.Context, inv *domain.SeatInventory) error {
	if err := inv.Check(); err != nil {
		return err
	}
	if _, ok := u.s.inventories[inv.FlightID]; !ok {
		return fmt.Errorf("save inventory: %w", domain.ErrNotFound)
	}
	u.s.inventories[inv.FlightID] = *inv
	return nil
}

func (u *memUnitOfWork) InsertPassenger(ctx context.Context, p *domain.Passenger) error {
	u.s.passengers[p.ID] = *p
	return nil
}

func (u *memUnitOfWork) GetPassenger(ctx context.Context, id uuid.UUID) (*domain.Passenger, error) {
	p, ok := u.s.passengers[id]
	if !ok {
		return nil, fmt.Errorf("get passenger: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (u *memUnitOfWork) InsertBooking(ctx context.Context, b *domain.Booking) error {
	if _, ok := u.s.bookings[b.Locator]; ok {
		return fmt.Errorf("insert booking: %w", repository.ErrLocatorTaken)
	}
	u.s.bookings[b.Locator] = *b
	return nil
}

func (u *memUnitOfWork) LockBooking(ctx context.Context, code string) (*domain.Booking, error) {
	b, ok := u.s.bookings[code]
	if !ok {
		return nil, fmt.Errorf("lock booking: %w", domain.ErrNotFound)
	}
	return &b, nil
}

func (u *memUnitOfWork) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	if _, ok := u.s.bookings[b.Locator]; !ok {
		return fmt.Errorf("update booking: %w", domain.ErrNotFound)
	}
	u.s.bookings[b.Locator] = *b
	return nil
}

func (u *memUnitOfWork) ClaimIdempotencyKey(ctx context.Context, key string, bookingID uuid.UUID, now time.Time) error {
	if _, ok := u.s.keys[key]; ok {
		return fmt.Errorf("claim idempotency key: %w", repository.ErrIdempotencyKeyTaken)
	}
	u.s.keys[key] = bookingID
	return nil
}

func (u *memUnitOfWork) AppendOutbox(ctx context.Context, msg *repository.OutboxMessage) error {
	msg.ID = int64(len(u.s.outbox) + 1)
	u.s.outbox = append(u.s.outbox, *msg)
	return nil
}

// seqSource replays fixed indices, then keeps returning 0.
type seqSource struct {
	mu   sync.Mutex
	vals []int
}

func (s *seqSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v % n
}

var (
	_ repository.Store         = (*memStore)(nil)
	_ repository.BookingReader = (*memStore)(nil)
	_ repository.UnitOfWork    = (*memUnitOfWork)(nil)
)
