package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/Domenick1991/airbooking-core/internal/kafka"
	"github.com/Domenick1991/airbooking-core/internal/locator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(store *memStore, opts ...BookingServiceOption) *BookingService {
	return NewBookingService(store, store, store, zap.NewNop(), opts...)
}

func createInput(flightID uuid.UUID, seats int, key string) CreateBookingInput {
	return CreateBookingInput{
		FlightID:       flightID,
		FirstName:      "Alice",
		LastName:       "Smith",
		Email:          "a@x.com",
		Seats:          seats,
		IdempotencyKey: key,
	}
}

func TestBookingService_EndToEnd(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(2, 10000)
	service := newTestService(store)
	ctx := context.Background()

	res, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "k1"))
	require.NoError(t, err)
	assert.Len(t, res.Locator, locator.Length)
	assert.True(t, locator.Valid(res.Locator))
	assert.Equal(t, int64(20000), res.AmountCents)
	assert.Equal(t, 2, store.inventory(flight.ID).Reserved)

	_, err = service.CreateBooking(ctx, createInput(flight.ID, 1, "k2"))
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	ok, err := service.ConfirmBooking(ctx, res.Locator)
	require.NoError(t, err)
	assert.True(t, ok)

	inv := store.inventory(flight.ID)
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 2, inv.Confirmed)

	view, err := service.GetBooking(ctx, res.Locator)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, view.Status)
	assert.Equal(t, "SU-100", view.FlightNumber)
	assert.Equal(t, "Alice Smith", view.PassengerName)
	assert.Equal(t, res.BookingID, view.BookingID)
	assert.NotNil(t, view.ConfirmedAt)
}

func TestBookingService_CreateBooking_Idempotent(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 5000)
	service := newTestService(store)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, createInput(flight.ID, 3, "same-key"))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := service.CreateBooking(ctx, createInput(flight.ID, 3, "same-key"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	assert.Equal(t, first.Locator, second.Locator)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, first.AmountCents, second.AmountCents)
	assert.Equal(t, 1, store.bookingCount())
	assert.Equal(t, 3, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_SameKeyDifferentArgsReturnsOriginal(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 5000)
	service := newTestService(store)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, createInput(flight.ID, 1, "k"))
	require.NoError(t, err)

	second, err := service.CreateBooking(ctx, createInput(flight.ID, 4, "k"))
	require.NoError(t, err)

	assert.Equal(t, first.Locator, second.Locator)
	assert.Equal(t, int64(5000), second.AmountCents)
	assert.Equal(t, 1, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_FailureDoesNotRecordKey(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(1, 5000)
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "k"))
	require.ErrorIs(t, err, domain.ErrInsufficientCapacity)
	assert.Empty(t, store.keys)
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.passengerCount())
	assert.Equal(t, 0, store.inventory(flight.ID).Reserved)

	res, err := service.CreateBooking(ctx, createInput(flight.ID, 1, "k"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, res.BookingID, store.keys["k"])
	assert.Equal(t, 1, store.bookingCount())
	assert.Equal(t, 1, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_NoOverbookingUnderConcurrency(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 1000)
	service := newTestService(store)

	const callers = 30
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		noCapacity int
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.CreateBooking(context.Background(), createInput(flight.ID, 1, fmt.Sprintf("key-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientCapacity):
				noCapacity++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, callers-10, noCapacity)
	inv := store.inventory(flight.ID)
	assert.Equal(t, 10, inv.Reserved)
	assert.Equal(t, 0, inv.Available())
	assert.Equal(t, 10, store.bookingCount())
}

func TestBookingService_CreateBooking_ConcurrentSameKey(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(50, 1000)
	service := newTestService(store)

	const callers = 10
	results := make([]*CreateBookingResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.CreateBooking(context.Background(), createInput(flight.ID, 2, "shared"))
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].Locator, res.Locator)
		assert.Equal(t, results[0].BookingID, res.BookingID)
	}
	assert.Equal(t, 1, store.bookingCount())
	assert.Equal(t, 2, store.inventory(flight.ID).Reserved)
}

// gatedReader holds the first n key lookups until all of them arrived, so
// every caller misses the replay check before any transaction starts.
type gatedReader struct {
	*memStore
	mu    sync.Mutex
	calls int
	n     int
	gate  sync.WaitGroup
}

func newGatedReader(store *memStore, n int) *gatedReader {
	r := &gatedReader{memStore: store, n: n}
	r.gate.Add(n)
	return r
}

func (r *gatedReader) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	b, err := r.memStore.FindByIdempotencyKey(ctx, key)
	r.mu.Lock()
	r.calls++
	held := r.calls <= r.n
	r.mu.Unlock()
	if held {
		r.gate.Done()
		r.gate.Wait()
	}
	return b, err
}

func TestBookingService_CreateBooking_ConcurrentSameKeyTakesLastSeats(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(2, 1000)
	const callers = 2
	service := NewBookingService(store, newGatedReader(store, callers), store, zap.NewNop())

	results := make([]*CreateBookingResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = service.CreateBooking(context.Background(), createInput(flight.ID, 2, "shared"))
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i], "caller %d", i)
	}
	assert.Equal(t, results[0].BookingID, results[1].BookingID)
	assert.Equal(t, results[0].Locator, results[1].Locator)
	assert.True(t, results[0].Replayed != results[1].Replayed)
	assert.Equal(t, 1, store.bookingCount())
	assert.Equal(t, 2, store.inventory(flight.ID).Reserved)
}

func TestBookingService_ExpireStaleReservations_DefaultLimit(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 1000)
	clock := newTestClock()
	service := newTestService(store, WithClock(clock.Now), WithHoldTTL(time.Minute))
	ctx := context.Background()

	for i := range 3 {
		_, err := service.CreateBooking(ctx, createInput(flight.ID, 1, fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)

	n, err := service.ExpireStaleReservations(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_RegeneratesLocatorOnCollision(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 1000)

	// First generator claims AAAAAA.
	first := newTestService(store, WithLocatorGenerator(locator.NewGenerator(&seqSource{})))
	taken, err := first.CreateBooking(context.Background(), createInput(flight.ID, 1, "k1"))
	require.NoError(t, err)
	require.Equal(t, "AAAAAA", taken.Locator)

	src := &seqSource{vals: []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}}
	service := newTestService(store, WithLocatorGenerator(locator.NewGenerator(src)))

	res, err := service.CreateBooking(context.Background(), createInput(flight.ID, 1, "k2"))
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", res.Locator)
	assert.Equal(t, 2, store.bookingCount())
	assert.Equal(t, 2, store.inventory(flight.ID).Reserved)
	assert.Equal(t, 1, store.rollbacks)
}

func TestBookingService_CreateBooking_RetriesExhausted(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 1000)
	gen := locator.NewGenerator(&seqSource{})
	service := newTestService(store, WithLocatorGenerator(gen), WithMaxAttempts(3))

	_, err := service.CreateBooking(context.Background(), createInput(flight.ID, 1, "k1"))
	require.NoError(t, err)
	passengers := store.passengerCount()

	_, err = service.CreateBooking(context.Background(), createInput(flight.ID, 1, "k2"))
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 3, store.rollbacks)
	assert.Equal(t, 1, store.bookingCount())
	assert.Equal(t, passengers, store.passengerCount())
	assert.Equal(t, 1, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_FlightNotFound(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	_, err := service.CreateBooking(context.Background(), createInput(uuid.New(), 1, "k"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_CreateBooking_MissingInventoryIsIntegrityFault(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	delete(store.inventories, flight.ID)
	service := newTestService(store)

	_, err := service.CreateBooking(context.Background(), createInput(flight.ID, 1, "k"))
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, store.rollbacks)
}

func TestBookingService_CreateBooking_InvalidInput(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)

	tests := []struct {
		name  string
		input CreateBookingInput
	}{
		{"no key", createInput(flight.ID, 1, "  ")},
		{"zero seats", createInput(flight.ID, 0, "k")},
		{"no flight", createInput(uuid.Nil, 1, "k")},
		{"no email", CreateBookingInput{FlightID: flight.ID, FirstName: "A", LastName: "B", Seats: 1, IdempotencyKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateBooking(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.inventory(flight.ID).Reserved)
}

func TestBookingService_CreateBooking_CancelledContext(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.CreateBooking(ctx, createInput(flight.ID, 1, "k"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.bookingCount())
}

func TestBookingService_CreateBooking_CancelledBeforeCommitLeavesNoState(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	store.beforeCommit = func(context.Context) { cancel() }

	_, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "k"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.passengerCount())
	assert.Equal(t, 0, store.inventory(flight.ID).Reserved)
	assert.Empty(t, store.keys)
}

func TestBookingService_ConfirmBooking_Idempotent(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)
	ctx := context.Background()

	res, err := service.CreateBooking(ctx, createInput(flight.ID, 3, "k"))
	require.NoError(t, err)

	for range 2 {
		ok, err := service.ConfirmBooking(ctx, res.Locator)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	inv := store.inventory(flight.ID)
	assert.Equal(t, 3, inv.Confirmed)
	assert.Equal(t, 0, inv.Reserved)
}

func TestBookingService_ConfirmBooking_AfterCancel(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)
	ctx := context.Background()

	res, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "k"))
	require.NoError(t, err)
	_, err = service.CancelBooking(ctx, res.Locator)
	require.NoError(t, err)
	before := store.inventory(flight.ID)

	ok, err := service.ConfirmBooking(ctx, res.Locator)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, store.inventory(flight.ID))
}

func TestBookingService_ConfirmBooking_UnknownLocator(t *testing.T) {
	store := newMemStore()
	service := newTestService(store)

	ok, err := service.ConfirmBooking(context.Background(), "ZZZZZZ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBookingService_CancelBooking_ReturnsSeats(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)
	ctx := context.Background()

	held, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "held"))
	require.NoError(t, err)
	sold, err := service.CreateBooking(ctx, createInput(flight.ID, 3, "sold"))
	require.NoError(t, err)
	_, err = service.ConfirmBooking(ctx, sold.Locator)
	require.NoError(t, err)

	view, err := service.CancelBooking(ctx, held.Locator)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, view.Status)
	assert.NotNil(t, view.CancelledAt)

	view, err = service.CancelBooking(ctx, sold.Locator)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, view.Status)

	inv := store.inventory(flight.ID)
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 0, inv.Confirmed)
	assert.Equal(t, 5, inv.Available())

	// A second cancel is a no-op.
	commits := store.commits
	_, err = service.CancelBooking(ctx, sold.Locator)
	require.NoError(t, err)
	inv = store.inventory(flight.ID)
	assert.Equal(t, 5, inv.Available())
	assert.Equal(t, commits+1, store.commits)
}

func TestBookingService_CancelBooking_NotFound(t *testing.T) {
	service := newTestService(newMemStore())

	_, err := service.CancelBooking(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_GetBooking_NotFound(t *testing.T) {
	service := newTestService(newMemStore())

	view, err := service.GetBooking(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, view)
}

func TestBookingService_ExpireStaleReservations(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(10, 1000)
	clock := newTestClock()
	service := newTestService(store, WithClock(clock.Now), WithHoldTTL(15*time.Minute))
	ctx := context.Background()

	stale, err := service.CreateBooking(ctx, createInput(flight.ID, 2, "stale"))
	require.NoError(t, err)
	paid, err := service.CreateBooking(ctx, createInput(flight.ID, 1, "paid"))
	require.NoError(t, err)
	_, err = service.ConfirmBooking(ctx, paid.Locator)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fresh, err := service.CreateBooking(ctx, createInput(flight.ID, 3, "fresh"))
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	n, err := service.ExpireStaleReservations(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := service.GetBooking(ctx, stale.Locator)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, view.Status)

	view, err = service.GetBooking(ctx, fresh.Locator)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusReserved, view.Status)

	inv := store.inventory(flight.ID)
	assert.Equal(t, 3, inv.Reserved)
	assert.Equal(t, 1, inv.Confirmed)
}

func TestBookingService_OutboxEvents(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store, WithEventsTopic("booking-events"), WithNotificationsTopic("notifications"))
	ctx := context.Background()

	res, err := service.CreateBooking(ctx, createInput(flight.ID, 1, "k"))
	require.NoError(t, err)
	_, err = service.ConfirmBooking(ctx, res.Locator)
	require.NoError(t, err)

	msgs := store.outboxMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "booking-events", msgs[0].Topic)
	assert.Equal(t, "notifications", msgs[1].Topic)
	assert.Equal(t, res.Locator, msgs[0].Key)

	var created, confirmed kafka.BookingEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &created))
	require.NoError(t, json.Unmarshal(msgs[2].Payload, &confirmed))
	assert.Equal(t, kafka.EventBookingCreated, created.Type)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, kafka.EventBookingConfirmed, confirmed.Type)
	assert.Equal(t, string(domain.BookingStatusConfirmed), confirmed.Status)
	assert.Equal(t, "a@x.com", confirmed.Email)
	assert.Equal(t, kafka.EventBookingConfirmed, msgs[2].Headers["event_type"])
}

func TestBookingService_NoOutboxWithoutTopics(t *testing.T) {
	store := newMemStore()
	flight := store.addFlight(5, 1000)
	service := newTestService(store)

	_, err := service.CreateBooking(context.Background(), createInput(flight.ID, 1, "k"))
	require.NoError(t, err)
	assert.Empty(t, store.outboxMessages())
}
