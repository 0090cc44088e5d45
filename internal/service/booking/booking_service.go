package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/Domenick1991/airbooking-core/internal/kafka"
	"github.com/Domenick1991/airbooking-core/internal/locator"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Domenick1991/airbooking-core/internal/service/booking")

const (
	defaultMaxAttempts = 5
	defaultHoldTTL     = 15 * time.Minute
	defaultExpiryBatch = 100

	reasonCancelled   = "cancelled"
	reasonHoldExpired = "hold_expired"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error)
	ConfirmBooking(ctx context.Context, locator string) (bool, error)
	CancelBooking(ctx context.Context, locator string) (*domain.BookingView, error)
	GetBooking(ctx context.Context, locator string) (*domain.BookingView, error)
	ExpireStaleReservations(ctx context.Context, limit int) (int, error)
}

type FlightLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
}

type CreateBookingInput struct {
	FlightID       uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Seats          int
	IdempotencyKey string
}

type CreateBookingResult struct {
	Locator     string    `json:"locator"`
	BookingID   uuid.UUID `json:"booking_id"`
	AmountCents int64     `json:"amount_cents"`
	// Replayed is set when the result comes from an earlier request with the same key.
	Replayed bool `json:"-"`
}

func resultOf(b *domain.Booking, replayed bool) *CreateBookingResult {
	return &CreateBookingResult{Locator: b.Locator, BookingID: b.ID, AmountCents: b.AmountCents, Replayed: replayed}
}

type BookingService struct {
	store              repository.Store
	reader             repository.BookingReader
	flights            FlightLookup
	locators           *locator.Generator
	logger             *zap.Logger
	now                func() time.Time
	maxAttempts        int
	holdTTL            time.Duration
	eventsTopic        string
	notificationsTopic string
}

type BookingServiceOption func(*BookingService)

// WithEventsTopic enables outbox events for booking state changes.
func WithEventsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.eventsTopic = topic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLocatorGenerator(g *locator.Generator) BookingServiceOption {
	return func(s *BookingService) {
		s.locators = g
	}
}

// WithMaxAttempts bounds how many times a conflicting commit is retried.
func WithMaxAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithHoldTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

func NewBookingService(
	store repository.Store,
	reader repository.BookingReader,
	flights FlightLookup,
	logger *zap.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		store:       store,
		reader:      reader,
		flights:     flights,
		locators:    locator.NewGenerator(nil),
		logger:      logger,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		holdTTL:     defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking reserves seats and records a booking under a fresh locator.
// A key that was already committed returns the booking created for it.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	ctx, span := tracer.Start(ctx, "booking.CreateBooking", trace.WithAttributes(
		attribute.String("flight.id", input.FlightID.String()),
		attribute.Int("booking.seats", input.Seats),
	))
	defer span.End()

	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	log := s.logger.With(
		zap.Stringer("flight_id", input.FlightID),
		zap.Int("seats", input.Seats),
		zap.String("idempotency_key", input.IdempotencyKey),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if prior, err := s.replay(ctx, input.IdempotencyKey); err != nil || prior != nil {
		if prior != nil {
			log.Info("booking replayed", zap.String("locator", prior.Locator))
		}
		return prior, recordErr(span, err)
	}

	flight, err := s.flights.GetByID(ctx, input.FlightID)
	if err != nil {
		return nil, recordErr(span, err)
	}
	amount := flight.PriceFor(input.Seats)

	var created *domain.Booking
	err = s.withRetry(ctx, "create booking", func(attempt int) error {
		b, err := s.createOnce(ctx, input, amount)
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrIdempotencyKeyTaken):
		// A concurrent request with the same key committed first.
		prior, rerr := s.replay(ctx, input.IdempotencyKey)
		if rerr != nil {
			return nil, recordErr(span, rerr)
		}
		if prior == nil {
			return nil, recordErr(span, fmt.Errorf("idempotency key %q claimed without booking: %w", input.IdempotencyKey, domain.ErrIntegrity))
		}
		log.Info("booking replayed after key collision", zap.String("locator", prior.Locator))
		return prior, nil
	case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrInvalidState):
		// A same-key request may have taken the seats while this one waited on the
		// inventory lock.
		if prior, rerr := s.replay(ctx, input.IdempotencyKey); rerr == nil && prior != nil {
			log.Info("booking replayed after losing seats to same key", zap.String("locator", prior.Locator))
			return prior, nil
		}
		log.Warn("booking rejected", zap.Error(err))
		return nil, recordErr(span, err)
	case err != nil:
		log.Error("booking failed", zap.Error(err))
		return nil, recordErr(span, err)
	}

	span.SetAttributes(attribute.String("booking.locator", created.Locator))
	log.Info("booking created",
		zap.String("locator", created.Locator),
		zap.Stringer("booking_id", created.ID),
		zap.Int64("amount_cents", created.AmountCents),
	)
	return resultOf(created, false), nil
}

func validateCreate(input CreateBookingInput) error {
	switch {
	case input.FlightID == uuid.Nil:
		return fmt.Errorf("%w: flight id is required", domain.ErrInvalidInput)
	case input.Seats <= 0:
		return fmt.Errorf("%w: seats must be positive", domain.ErrInvalidInput)
	case input.IdempotencyKey == "":
		return fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}
	return nil
}

func (s *BookingService) replay(ctx context.Context, key string) (*CreateBookingResult, error) {
	prior, err := s.reader.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resultOf(prior, true), nil
}

func (s *BookingService) createOnce(ctx context.Context, input CreateBookingInput, amount int64) (*domain.Booking, error) {
	var created *domain.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		inv, err := uow.LockInventory(ctx, input.FlightID)
		if err != nil {
			return missingInventory(input.FlightID, err)
		}

		passenger, err := domain.NewPassenger(input.FirstName, input.LastName, input.Email)
		if err != nil {
			return err
		}
		if err := uow.InsertPassenger(ctx, passenger); err != nil {
			return err
		}

		if err := inv.Reserve(input.Seats); err != nil {
			return err
		}

		now := s.now()
		b, err := domain.NewBooking(s.locators.Next(), input.FlightID, passenger.ID, input.Seats, amount, now)
		if err != nil {
			return err
		}
		if err := uow.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := uow.SaveInventory(ctx, inv); err != nil {
			return err
		}
		if err := uow.ClaimIdempotencyKey(ctx, input.IdempotencyKey, b.ID, now); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, uow, kafka.NewBookingEvent(kafka.EventBookingCreated, b, passenger.Email, now)); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmBooking finalises a reserved booking. It reports false when the
// locator is unknown or the booking was cancelled.
func (s *BookingService) ConfirmBooking(ctx context.Context, code string) (bool, error) {
	ctx, span := tracer.Start(ctx, "booking.ConfirmBooking", trace.WithAttributes(attribute.String("booking.locator", code)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	log := s.logger.With(zap.String("locator", code))

	var confirmed bool
	err := s.withRetry(ctx, "confirm booking", func(attempt int) error {
		confirmed = false
		return s.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			b, err := uow.LockBooking(ctx, code)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			switch b.Status {
			case domain.BookingStatusConfirmed:
				confirmed = true
				return nil
			case domain.BookingStatusCancelled:
				return nil
			}

			inv, err := uow.LockInventory(ctx, b.FlightID)
			if err != nil {
				return missingInventory(b.FlightID, err)
			}
			if err := inv.Confirm(b.Seats); err != nil {
				return err
			}
			now := s.now()
			if err := b.Confirm(now); err != nil {
				return err
			}
			if err := uow.SaveInventory(ctx, inv); err != nil {
				return err
			}
			if err := uow.UpdateBooking(ctx, b); err != nil {
				return err
			}
			if err := s.appendBookingEvent(ctx, uow, kafka.EventBookingConfirmed, b, "", now); err != nil {
				return err
			}
			confirmed = true
			return nil
		})
	})
	if err != nil {
		log.Error("confirm failed", zap.Error(err))
		return false, recordErr(span, err)
	}

	span.SetAttributes(attribute.Bool("booking.confirmed", confirmed))
	if confirmed {
		log.Info("booking confirmed")
	} else {
		log.Warn("booking not confirmable")
	}
	return confirmed, nil
}

// CancelBooking voids a booking and returns its seats to the inventory,
// whether they were held or already confirmed.
func (s *BookingService) CancelBooking(ctx context.Context, code string) (*domain.BookingView, error) {
	ctx, span := tracer.Start(ctx, "booking.CancelBooking", trace.WithAttributes(attribute.String("booking.locator", code)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	changed, err := s.cancel(ctx, code, reasonCancelled, false)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("cancel failed", zap.String("locator", code), zap.Error(err))
		}
		return nil, recordErr(span, err)
	}
	if changed {
		s.logger.Info("booking cancelled", zap.String("locator", code))
	}
	view, err := s.reader.GetView(ctx, code)
	return view, recordErr(span, err)
}

// cancel runs one cancellation commit. With onlyReserved set, bookings that
// have moved past Reserved are left alone.
func (s *BookingService) cancel(ctx context.Context, code, reason string, onlyReserved bool) (bool, error) {
	var changed bool
	err := s.withRetry(ctx, "cancel booking", func(attempt int) error {
		changed = false
		return s.store.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			b, err := uow.LockBooking(ctx, code)
			if err != nil {
				return err
			}
			if b.Status.Terminal() || (onlyReserved && b.Status != domain.BookingStatusReserved) {
				return nil
			}

			inv, err := uow.LockInventory(ctx, b.FlightID)
			if err != nil {
				return missingInventory(b.FlightID, err)
			}
			if b.Status == domain.BookingStatusConfirmed {
				err = inv.Revoke(b.Seats)
			} else {
				err = inv.Release(b.Seats)
			}
			if err != nil {
				return err
			}

			now := s.now()
			b.Cancel(now)
			if err := uow.SaveInventory(ctx, inv); err != nil {
				return err
			}
			if err := uow.UpdateBooking(ctx, b); err != nil {
				return err
			}
			if err := s.appendBookingEvent(ctx, uow, kafka.EventBookingCancelled, b, reason, now); err != nil {
				return err
			}
			changed = true
			return nil
		})
	})
	return changed, err
}

// GetBooking returns the booking projection or an ErrNotFound error.
func (s *BookingService) GetBooking(ctx context.Context, code string) (*domain.BookingView, error) {
	ctx, span := tracer.Start(ctx, "booking.GetBooking", trace.WithAttributes(attribute.String("booking.locator", code)))
	defer span.End()

	view, err := s.reader.GetView(ctx, code)
	if err != nil {
		return nil, recordErr(span, err)
	}
	return view, nil
}

// ExpireStaleReservations cancels up to limit bookings that stayed Reserved
// longer than the hold TTL and returns how many were expired.
func (s *BookingService) ExpireStaleReservations(ctx context.Context, limit int) (int, error) {
	ctx, span := tracer.Start(ctx, "booking.ExpireStaleReservations")
	defer span.End()

	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	cutoff := s.now().Add(-s.holdTTL)
	codes, err := s.reader.ListStaleReserved(ctx, cutoff, limit)
	if err != nil {
		return 0, recordErr(span, err)
	}

	var (
		expired int
		errs    []error
	)
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		changed, err := s.cancel(ctx, code, reasonHoldExpired, true)
		if err != nil {
			s.logger.Error("expire hold failed", zap.String("locator", code), zap.Error(err))
			errs = append(errs, fmt.Errorf("expire %s: %w", code, err))
			continue
		}
		if changed {
			expired++
			s.logger.Info("booking hold expired", zap.String("locator", code))
		}
	}

	span.SetAttributes(attribute.Int("booking.expired", expired))
	return expired, recordErr(span, errors.Join(errs...))
}

// withRetry repeats fn while it fails with a retryable conflict.
func (s *BookingService) withRetry(ctx context.Context, op string, fn func(attempt int) error) error {
	var last error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil || !retryable(err) {
			return err
		}
		last = err
		s.logger.Warn("write conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s after %d attempts: %w (last: %v)", op, s.maxAttempts, domain.ErrRetriesExhausted, last)
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrConflict) && !errors.Is(err, repository.ErrIdempotencyKeyTaken)
}

// missingInventory turns an absent inventory row for a known flight into an integrity fault.
func missingInventory(flightID uuid.UUID, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("inventory for flight %s is missing: %w", flightID, domain.ErrIntegrity)
	}
	return err
}

func (s *BookingService) appendBookingEvent(ctx context.Context, uow repository.UnitOfWork, eventType string, b *domain.Booking, reason string, at time.Time) error {
	if !s.publishesEvents() {
		return nil
	}
	p, err := uow.GetPassenger(ctx, b.PassengerID)
	if err != nil {
		return err
	}
	event := kafka.NewBookingEvent(eventType, b, p.Email, at)
	event.Reason = reason
	return s.appendEvent(ctx, uow, event)
}

func (s *BookingService) publishesEvents() bool {
	return s.eventsTopic != "" || s.notificationsTopic != ""
}

// appendEvent writes the event to the outbox for every configured topic,
// carrying the current trace context in the headers.
func (s *BookingService) appendEvent(ctx context.Context, uow repository.UnitOfWork, event kafka.BookingEvent) error {
	if !s.publishesEvents() {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	headers := map[string]string{"event_type": event.Type}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	for _, topic := range []string{s.eventsTopic, s.notificationsTopic} {
		if topic == "" {
			continue
		}
		msg := &repository.OutboxMessage{
			Topic:   topic,
			Key:     event.Locator,
			Payload: payload,
			Headers: headers,
		}
		if err := uow.AppendOutbox(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var _ BookingUseCase = (*BookingService)(nil)
