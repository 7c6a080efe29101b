package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/olympiad/internal/clock"
	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/event"
	"github.com/victornm/olympiad/internal/proctoring"
	"github.com/victornm/olympiad/internal/telemetry"
)

// DefaultWarningCeiling is the number of proctoring warnings that force a submission.
const DefaultWarningCeiling = 5

type Catalog interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

type AttemptStore interface {
	ListAttempts(ctx context.Context, quizID, participantID string) ([]domain.Attempt, error)
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	UpdateAttempt(ctx context.Context, a domain.Attempt) error
	SaveAnswers(ctx context.Context, attemptID string, answers map[int]string) error
}

// Monitor is the proctoring collaborator of a started session.
type Monitor interface {
	Init(ctx context.Context, attemptID string) error
	Subscribe(l proctoring.Listener)
	Record(ctx context.Context, v domain.Violation) proctoring.Snapshot
	Reset()
	StopCapture()
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type Config struct {
	Catalog    Catalog
	Attempts   AttemptStore
	NewMonitor func(participantID string) Monitor
	EventBus   Publisher

	// WarningCeiling defaults to DefaultWarningCeiling.
	WarningCeiling int
	// Autosave persists the answer map after every answer.
	Autosave bool
	// SubmitTimeout bounds the persist call of timer and proctoring triggered submissions.
	SubmitTimeout time.Duration

	NewTickerFunc clock.NewTickerFunc
	Now           func() time.Time
}

type key struct {
	quizID        string
	participantID string
}

// Service holds the live quiz sessions of this process, one per quiz and participant.
type Service struct {
	catalog    Catalog
	attempts   AttemptStore
	newMonitor func(participantID string) Monitor
	eb         Publisher

	ceiling       int
	autosave      bool
	submitTimeout time.Duration
	newTicker     clock.NewTickerFunc
	now           func() time.Time

	mu   sync.Mutex
	live map[key]*Session
}

func NewService(c Config) *Service {
	s := &Service{
		catalog:       c.Catalog,
		attempts:      c.Attempts,
		newMonitor:    c.NewMonitor,
		eb:            c.EventBus,
		ceiling:       c.WarningCeiling,
		autosave:      c.Autosave,
		submitTimeout: c.SubmitTimeout,
		newTicker:     c.NewTickerFunc,
		now:           c.Now,
		live:          make(map[key]*Session),
	}

	if s.ceiling <= 0 {
		s.ceiling = DefaultWarningCeiling
	}
	if s.submitTimeout <= 0 {
		s.submitTimeout = 30 * time.Second
	}
	if s.newTicker == nil {
		s.newTicker = clock.NewTicker
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type OpenRequest struct {
	QuizID      string
	Participant domain.Participant
}

// Open loads a quiz for a participant and reconciles their previous attempts. A live session that
// has not reached a terminal state is returned as is, so reopening resumes it.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.Participant.ParticipantID == "" {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("participant is required"))
	}
	if req.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("quiz ID is required"))
	}

	k := key{quizID: req.QuizID, participantID: req.Participant.ParticipantID}
	if ss := s.reusable(k); ss != nil {
		return ss, nil
	}

	ss, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have opened the same session while this one was loading.
	if cur, ok := s.live[k]; ok && !cur.terminal() {
		return cur, nil
	}

	if old, ok := s.live[k]; ok {
		old.teardown()
	} else {
		telemetry.LiveSessions.Inc()
	}
	s.live[k] = ss

	return ss, nil
}

// Get returns the live session of a participant at a quiz.
func (s *Service) Get(quizID, participantID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.live[key{quizID: quizID, participantID: participantID}]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no open session: quiz=%s participant=%s", quizID, participantID),
		)
	}
	return ss, nil
}

// Close stops the timers and capture loops of every live session. Remote calls in flight are not
// aborted, their results are discarded.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ss := range s.live {
		ss.teardown()
		delete(s.live, k)
		telemetry.LiveSessions.Dec()
	}
}

func (s *Service) reusable(k key) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ss, ok := s.live[k]; ok && !ss.terminal() {
		return ss
	}
	return nil
}

func (s *Service) load(ctx context.Context, req OpenRequest) (*Session, error) {
	var (
		quiz      *domain.Quiz
		questions []domain.Question
		qErr      error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		quiz, err = s.catalog.GetQuiz(egCtx, req.QuizID)
		return err
	})
	eg.Go(func() error {
		questions, qErr = s.catalog.ListQuestions(egCtx, req.QuizID)
		return nil
	})

	if err := eg.Wait(); err != nil {
		if e := errors.Convert(err); e.Code == errors.CodeNotFound {
			return nil, errors.New(errors.CodeNotFound,
				errors.WithReason(errors.ReasonQuizNotFound),
				errors.WithMessagef("quiz not found: quiz=%s", req.QuizID),
				errors.WithCause(err),
			)
		}
		return nil, fmt.Errorf("session: load quiz %s: %w", req.QuizID, err)
	}

	history, err := s.attempts.ListAttempts(ctx, req.QuizID, req.Participant.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("session: list attempts: %w", err)
	}

	ss := newSession(s, *quiz, questions, req.Participant)

	switch {
	case qErr != nil:
		slog.WarnContext(ctx, "session: load questions failed", "quiz", req.QuizID, "error", qErr)
		ss.notice = "Questions could not be loaded. Please contact the organisers."
	case len(questions) == 0:
		slog.WarnContext(ctx, "session: quiz has no valid questions", "quiz", req.QuizID)
		ss.notice = "This quiz has no questions yet. Please contact the organisers."
	}

	ss.reconcile(history)
	return ss, nil
}
