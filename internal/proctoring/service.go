package proctoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/olympiad/internal/clock"
	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/event"
)

const maxCaptureSize = 2 << 20

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type Config struct {
	DB              DB
	EventBus        Publisher
	CaptureInterval time.Duration
	NewTickerFunc   clock.NewTickerFunc
}

// Service creates per-attempt monitors and stores the webcam frames they request.
type Service struct {
	db              DB
	eb              Publisher
	captureInterval time.Duration
	newTicker       clock.NewTickerFunc
	now             func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		db:              c.DB,
		eb:              c.EventBus,
		captureInterval: c.CaptureInterval,
		newTicker:       c.NewTickerFunc,
		now:             time.Now,
	}
	if s.newTicker == nil {
		s.newTicker = clock.NewTicker
	}
	return s
}

// NewMonitor returns an idle monitor for a participant. It starts capturing on Init.
func (s *Service) NewMonitor(participantID string) *Monitor {
	return &Monitor{
		participantID: participantID,
		newTicker:     s.newTicker,
		captureEvery:  s.captureInterval,
		eb:            s.eb,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

type SaveCaptureRequest struct {
	AttemptID     string
	ParticipantID string
	ContentType   string
	Image         []byte
}

// SaveCapture stores a webcam frame of an in-progress attempt.
func (s *Service) SaveCapture(ctx context.Context, req SaveCaptureRequest) (*domain.Capture, error) {
	if len(req.Image) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("empty capture"))
	}
	if len(req.Image) > maxCaptureSize {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("capture too large: %d bytes", len(req.Image)))
	}

	ct := req.ContentType
	if ct == "" {
		ct = http.DetectContentType(req.Image)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate capture ID: %w", err)
	}

	c := &domain.Capture{
		CaptureID:     id.String(),
		AttemptID:     req.AttemptID,
		ParticipantID: req.ParticipantID,
		ContentType:   ct,
		Image:         req.Image,
		CaptureTime:   s.now(),
	}

	const stmt = `
INSERT INTO webcam_captures (capture_id, attempt_id, participant_id, content_type, image, capture_time)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := s.db.Exec(ctx, stmt, id, c.AttemptID, c.ParticipantID, c.ContentType, c.Image, c.CaptureTime); err != nil {
		return nil, fmt.Errorf("insert capture: %w", err)
	}

	return c, nil
}
