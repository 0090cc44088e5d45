package flights

import (
	"context"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/Domenick1991/airbooking-core/internal/service/flights")

type FlightUseCase interface {
	Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	GetInventory(ctx context.Context, id uuid.UUID) (*domain.SeatInventory, error)
}

type FlightCache interface {
	GetFlight(ctx context.Context, id uuid.UUID) (*domain.Flight, error)
	SetFlight(ctx context.Context, flight *domain.Flight) error
}

type CreateFlightInput struct {
	FlightNumber  string    `json:"flight_number"`
	FromAirport   string    `json:"from_airport"`
	ToAirport     string    `json:"to_airport"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Capacity      int       `json:"capacity"`
	FareCents     int64     `json:"fare_cents"`
}

type FlightService struct {
	repo   repository.FlightRepository
	cache  FlightCache
	logger *zap.Logger
	group  singleflight.Group
}

// NewFlightService accepts a nil cache; lookups then always hit the repository.
func NewFlightService(repo repository.FlightRepository, cache FlightCache, logger *zap.Logger) *FlightService {
	return &FlightService{repo: repo, cache: cache, logger: logger}
}

// Create stores a flight and its seat inventory in one transaction.
func (s *FlightService) Create(ctx context.Context, input CreateFlightInput) (*domain.Flight, error) {
	ctx, span := tracer.Start(ctx, "flights.Create")
	defer span.End()

	flight, err := domain.NewFlight(input.FlightNumber, input.FromAirport, input.ToAirport,
		input.DepartureTime, input.ArrivalTime, input.Capacity, input.FareCents)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("flight.id", flight.ID.String()))

	if _, err := s.repo.Create(ctx, flight); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("flight created",
		zap.Stringer("flight_id", flight.ID),
		zap.String("flight_number", flight.FlightNumber),
		zap.Int("capacity", flight.Capacity),
	)
	return flight, nil
}

// GetByID serves from cache when possible; concurrent misses for the same id share one query.
func (s *FlightService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	ctx, span := tracer.Start(ctx, "flights.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("flight.id", id.String()))

	if s.cache != nil {
		cached, err := s.cache.GetFlight(ctx, id)
		if err == nil && cached != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		if err != nil {
			s.logger.Warn("flight cache read failed", zap.Stringer("flight_id", id), zap.Error(err))
		}
	}

	// The shared lookup outlives any single caller, so it runs detached from
	// cancellation while each caller still honours its own deadline.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id.String(), func() (interface{}, error) {
		flight, err := s.repo.GetByID(shared, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetFlight(shared, flight); err != nil {
				s.logger.Warn("flight cache write failed", zap.Stringer("flight_id", id), zap.Error(err))
			}
		}
		return flight, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Flight), nil
	}
}

func (s *FlightService) GetInventory(ctx context.Context, id uuid.UUID) (*domain.SeatInventory, error) {
	ctx, span := tracer.Start(ctx, "flights.GetInventory")
	defer span.End()

	return s.repo.GetInventory(ctx, id)
}

var _ FlightUseCase = (*FlightService)(nil)
