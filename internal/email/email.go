package email

import (
	"context"

	"github.com/Domenick1991/airbooking-core/internal/kafka"
	"go.uber.org/zap"
)

// Sender delivers booking notifications. The transport is a structured log line
// until an SMTP relay is provisioned.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		s.logger.Debug("skip notification without recipient", zap.String("locator", event.Locator), zap.String("type", event.Type))
		return nil
	}
	s.logger.Info("send email",
		zap.String("to", event.Email),
		zap.String("type", event.Type),
		zap.String("locator", event.Locator),
		zap.Stringer("flight_id", event.FlightID),
		zap.Int("seats", event.Seats),
	)
	return nil
}
