package session_test

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/event"
	"github.com/victornm/olympiad/internal/proctoring"
)

type fakeCatalog struct {
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question
	qErr      error
}

func (c *fakeCatalog) GetQuiz(_ context.Context, quizID string) (*domain.Quiz, error) {
	q, ok := c.quizzes[quizID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonQuizNotFound))
	}
	return &q, nil
}

func (c *fakeCatalog) ListQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	if c.qErr != nil {
		return nil, c.qErr
	}
	return c.questions[quizID], nil
}

type fakeStore struct {
	mu        sync.Mutex
	rows      []domain.Attempt
	inserts   int
	updates   int
	saves     int
	createErr []error
	updateErr []error
}

func (s *fakeStore) ListAttempts(_ context.Context, quizID, participantID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Attempt
	for _, a := range s.rows {
		if a.QuizID == quizID && a.ParticipantID == participantID {
			out = append(out, a)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *fakeStore) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.createErr) > 0 {
		err := s.createErr[0]
		s.createErr = s.createErr[1:]
		if err != nil {
			return err
		}
	}

	for _, r := range s.rows {
		if r.QuizID == a.QuizID && r.ParticipantID == a.ParticipantID && r.Status == domain.AttemptStatusInProgress {
			return errors.New(errors.CodeAlreadyExists, errors.WithReason(errors.ReasonAttemptInProgress))
		}
	}

	s.inserts++
	a.AttemptID = fmt.Sprintf("att-%d", len(s.rows)+1)
	s.rows = append(s.rows, *a)
	return nil
}

func (s *fakeStore) UpdateAttempt(_ context.Context, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.updateErr) > 0 {
		err := s.updateErr[0]
		s.updateErr = s.updateErr[1:]
		if err != nil {
			return err
		}
	}

	for i := range s.rows {
		if s.rows[i].AttemptID == a.AttemptID {
			s.updates++
			s.rows[i] = a
			return nil
		}
	}
	return errors.New(errors.CodeNotFound)
}

func (s *fakeStore) SaveAnswers(_ context.Context, attemptID string, answers map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if s.rows[i].AttemptID == attemptID {
			s.saves++
			s.rows[i].Answers = answers
			return nil
		}
	}
	return errors.New(errors.CodeNotFound)
}

func (s *fakeStore) snapshot() []domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Attempt(nil), s.rows...)
}

type fakeMonitor struct {
	mu        sync.Mutex
	initErr   error
	attemptID string
	listeners []proctoring.Listener
	warnings  int
	history   []string
	stopped   int
}

func (m *fakeMonitor) Init(_ context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initErr != nil {
		return m.initErr
	}
	m.attemptID = attemptID
	return nil
}

func (m *fakeMonitor) Subscribe(l proctoring.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

func (m *fakeMonitor) Record(_ context.Context, v domain.Violation) proctoring.Snapshot {
	m.mu.Lock()
	m.warnings++
	m.history = append(m.history, proctoring.Describe(v))
	snap := proctoring.Snapshot{Warnings: m.warnings, Violations: append([]string(nil), m.history...)}
	m.mu.Unlock()

	m.emit(snap)
	return snap
}

// setWarnings makes the monitor report an arbitrary count, as a monitor that resets would.
func (m *fakeMonitor) setWarnings(n int) {
	m.mu.Lock()
	m.warnings = n
	snap := proctoring.Snapshot{Warnings: n, Violations: append([]string(nil), m.history...)}
	m.mu.Unlock()

	m.emit(snap)
}

func (m *fakeMonitor) Reset() {
	m.setWarnings(0)
}

func (m *fakeMonitor) emit(snap proctoring.Snapshot) {
	m.mu.Lock()
	ls := append([]proctoring.Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range ls {
		l(snap)
	}
}

func (m *fakeMonitor) StopCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped++
}

func (m *fakeMonitor) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopped
}

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(_ context.Context, e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, e)
}

func (b *recordingBus) named(name string) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []event.Event
	for _, e := range b.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}
