package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

// Sink delivers a stored notification to the outside world.
type Sink interface {
	Publish(ctx context.Context, n domain.Notification) error
}

type Service struct {
	repo   repository.NotificationRepository
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

func New(repo repository.NotificationRepository, sink Sink, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Once records n unless a notification of the same type already exists for
// the booking, then hands it to the sink. The existence check and insert are
// separate statements, so concurrent callers may both insert; that duplicate
// is accepted. Sink failures are logged and do not fail the call.
//
// Returns:
//   - bool: true if a new notification was recorded.
func (s *Service) Once(ctx context.Context, n domain.Notification) (bool, error) {
	const op = "service.notify.Once"

	exists, err := s.repo.Exists(ctx, n.BookingID, n.Type)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}
	if exists {
		return false, nil
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	if err := s.repo.Create(ctx, &n); err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, n); err != nil {
			s.logger.Warn("notification sink failed",
				"booking_id", n.BookingID, "type", n.Type, "error", err)
		}
	}

	return true, nil
}

// LogSink writes notifications to the application log.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Publish(_ context.Context, n domain.Notification) error {
	l.Logger.Info("notification",
		"recipient_id", n.RecipientID,
		"type", n.Type,
		"booking_id", n.BookingID,
		"title", n.Title,
	)
	return nil
}
