package session

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/victornm/olympiad/internal/clock"
	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/proctoring"
	"github.com/victornm/olympiad/internal/score"
	"github.com/victornm/olympiad/internal/telemetry"
)

type State string

const (
	StateLoading            State = "loading"
	StateInstructions       State = "instructions"
	StateInProgress         State = "in_progress"
	StateSubmitting         State = "submitting"
	StateResults            State = "results"
	StateMaxAttemptsReached State = "max_attempts_reached"
)

// Submission reasons.
const (
	ReasonSubmitted   = "Submitted by participant"
	ReasonTimeExpired = "Time expired"
	ReasonMaxWarnings = "Maximum warnings exceeded"
)

const maxWarningsViolation = "Auto-submitted: maximum warnings exceeded"

// Session is one participant's pass through a quiz:
// Loading → Instructions → InProgress → Submitting → Results, or Instructions → MaxAttemptsReached.
// All methods are safe for concurrent use.
type Session struct {
	svc         *Service
	quiz        domain.Quiz
	questions   []domain.Question
	participant domain.Participant
	notice      string

	mu         sync.Mutex
	state      State
	ref        attemptRef
	resumed    bool
	startedAt  time.Time
	answers    map[int]string
	history    []domain.Attempt
	maxReached bool
	result     *domain.Result
	pending    *domain.Attempt
	lastErr    error

	warnings   int
	observed   int
	violations []string
	seen       int
	remaining  int
	timed      bool

	monitor   Monitor
	ticker    clock.Ticker
	stopTimer chan struct{}
	stopOnce  *sync.Once
}

func newSession(svc *Service, q domain.Quiz, qs []domain.Question, p domain.Participant) *Session {
	return &Session{
		svc:         svc,
		quiz:        q,
		questions:   qs,
		participant: p,
		state:       StateLoading,
		ref:         noAttemptYet{},
		answers:     make(map[int]string),
	}
}

func (s *Session) reconcile(history []domain.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = history
	if maxAttemptsReached(s.quiz, history) {
		s.maxReached = true
		s.result = latestResult(history)
		s.state = StateMaxAttemptsReached
		return
	}

	if a := resumable(history); a != nil {
		s.ref = attemptID(a.AttemptID)
		s.resumed = true
		s.startedAt = a.StartedAt
		if a.Answers != nil {
			s.answers = maps.Clone(a.Answers)
		}
	}

	s.state = StateInstructions
}

// Start begins the timed attempt. Starting a session that is already in progress is a no-op.
func (s *Session) Start(ctx context.Context) error {
	expired, err := s.start(ctx)
	if err != nil {
		return err
	}

	if expired {
		s.forceSubmit(ReasonTimeExpired)
	}
	return nil
}

func (s *Session) start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateInProgress:
		return false, nil
	case StateMaxAttemptsReached:
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonMaxAttemptsReached),
			errors.WithMessagef("maximum number of attempts reached for quiz %s", s.quiz.QuizID),
		)
	case StateInstructions:
	default:
		return false, s.invalidStateLocked("start")
	}

	if len(s.questions) == 0 {
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonNoQuestions),
			errors.WithMessagef("quiz %s has no questions", s.quiz.QuizID),
		)
	}

	now := s.svc.now()
	if _, ok := s.ref.(noAttemptYet); ok && !s.quiz.Available(now) {
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonQuizNotAvailable),
			errors.WithMessagef("quiz %s is not open", s.quiz.QuizID),
		)
	}

	if err := s.createAttemptLocked(ctx, now); err != nil {
		return false, err
	}

	id := string(s.ref.(attemptID))
	m := s.svc.newMonitor(s.participant.ParticipantID)
	if err := m.Init(ctx, id); err != nil {
		m.StopCapture()
		return false, errors.New(errors.CodeUnavailable,
			errors.WithReason(errors.ReasonProctoringUnavailable),
			errors.WithMessagef("proctoring could not be started"),
			errors.WithCause(err),
		)
	}
	m.Subscribe(s.ObserveWarnings)
	s.monitor = m

	s.state = StateInProgress
	telemetry.AttemptsStarted.WithLabelValues(strconv.FormatBool(s.resumed)).Inc()
	s.svc.eb.Publish(ctx, domain.EventAttemptStarted{Attempt: s.attemptLocked(domain.AttemptStatusInProgress, nil, "")})

	if s.quiz.DurationMinutes <= 0 {
		return false, nil
	}

	s.timed = true
	s.remaining = int((s.quiz.Duration() - now.Sub(s.startedAt)).Seconds())
	if s.remaining <= 0 {
		s.remaining = 0
		return true, nil
	}

	s.ticker = s.svc.newTicker(time.Second)
	s.stopTimer = make(chan struct{})
	s.stopOnce = new(sync.Once)
	go s.countdown(s.ticker, s.stopTimer)

	return false, nil
}

// createAttemptLocked inserts the in-progress row, unless an unsubmitted one is being resumed.
func (s *Session) createAttemptLocked(ctx context.Context, now time.Time) error {
	switch ref := s.ref.(type) {
	case attemptID:
		slog.InfoContext(ctx, "session: resuming attempt", "attempt", string(ref), "participant", s.participant.ParticipantID)
		return nil

	case noAttemptYet:
		a := domain.Attempt{
			QuizID:         s.quiz.QuizID,
			ParticipantID:  s.participant.ParticipantID,
			Status:         domain.AttemptStatusInProgress,
			StartedAt:      now,
			Answers:        map[int]string{},
			TotalQuestions: len(s.questions),
		}

		if err := s.svc.attempts.CreateAttempt(ctx, &a); err != nil {
			if e := errors.Convert(err); e.Code == errors.CodeAlreadyExists {
				return e
			}
			return errors.New(errors.CodeUnavailable,
				errors.WithReason(errors.ReasonAttemptCreationFailed),
				errors.WithMessagef("attempt could not be created, please retry"),
				errors.WithCause(err),
			)
		}

		s.ref = attemptID(a.AttemptID)
		s.startedAt = a.StartedAt
		s.history = append([]domain.Attempt{a}, s.history...)
		return nil
	}

	panic("unreachable")
}

func (s *Session) countdown(t clock.Ticker, stop <-chan struct{}) {
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if s.tick() {
				s.forceSubmit(ReasonTimeExpired)
				return
			}
		}
	}
}

// tick advances the countdown by one second and reports whether time ran out.
func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return false
	}

	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining == 0
}

// Answer records the chosen option for the question at index. Answers stay in memory until
// submission unless autosave is enabled.
func (s *Session) Answer(ctx context.Context, index int, option string) error {
	s.mu.Lock()

	if s.state != StateInProgress {
		err := s.invalidStateLocked("answer")
		s.mu.Unlock()
		return err
	}

	if index < 0 || index >= len(s.questions) {
		s.mu.Unlock()
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question index out of range: %d", index))
	}
	if !s.questions[index].HasOption(option) {
		s.mu.Unlock()
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown option %q", option))
	}

	s.answers[index] = option

	if !s.svc.autosave {
		s.mu.Unlock()
		return nil
	}

	id := string(s.ref.(attemptID))
	answers := maps.Clone(s.answers)
	s.mu.Unlock()

	if err := s.svc.attempts.SaveAnswers(ctx, id, answers); err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("answer recorded but could not be saved"),
			errors.WithCause(err),
		)
	}
	return nil
}

// ReportViolation forwards a proctoring violation to the session's monitor.
func (s *Session) ReportViolation(ctx context.Context, v domain.Violation) error {
	s.mu.Lock()
	m := s.monitor
	inProgress := s.state == StateInProgress
	s.mu.Unlock()

	if !inProgress || m == nil {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidState),
			errors.WithMessagef("session is not in progress"),
		)
	}

	// The monitor calls back into ObserveWarnings.
	m.Record(ctx, v)
	return nil
}

// ResetMonitor zeroes the monitor's warning count, e.g. when the participant returns to
// fullscreen. Warnings already observed by the session are kept.
func (s *Session) ResetMonitor() error {
	s.mu.Lock()
	m := s.monitor
	inProgress := s.state == StateInProgress
	s.mu.Unlock()

	if !inProgress || m == nil {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidState),
			errors.WithMessagef("session is not in progress"),
		)
	}

	m.Reset()
	return nil
}

// ObserveWarnings receives the monitor's state. The session's warning count only grows: every
// rise of the monitor's count is added to it, while a drop (a monitor reset) only lowers the
// baseline the next rise is measured from. Reaching the warning ceiling forces submission.
func (s *Session) ObserveWarnings(snap proctoring.Snapshot) {
	s.mu.Lock()
	if d := snap.Warnings - s.observed; d > 0 {
		telemetry.WarningsObserved.Add(float64(d))
		s.warnings += d
	}
	s.observed = snap.Warnings
	if len(snap.Violations) > s.seen {
		s.violations = append(s.violations, snap.Violations[s.seen:]...)
		s.seen = len(snap.Violations)
	}
	trip := s.state == StateInProgress && s.warnings >= s.svc.ceiling
	s.mu.Unlock()

	if trip {
		s.forceSubmit(ReasonMaxWarnings)
	}
}

// Submit grades and persists the attempt. It is the single submission path for the participant,
// the timer and the proctoring ceiling. Once a submission has been persisted further calls return
// the same result. If persisting fails the session stays in Submitting with its computed result,
// and Submit may be retried.
func (s *Session) Submit(ctx context.Context, reason string) (*domain.Result, error) {
	if reason == "" {
		reason = ReasonSubmitted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateResults:
		r := *s.result
		return &r, nil

	case StateInProgress:
		s.stopLiveLocked()

		if reason == ReasonMaxWarnings {
			s.violations = append(s.violations, maxWarningsViolation)
		}

		now := s.svc.now()
		a := s.attemptLocked(domain.AttemptStatusCompleted, &now, reason)
		s.pending = &a
		s.state = StateSubmitting

	case StateSubmitting:

	default:
		return nil, s.invalidStateLocked("submit")
	}

	if err := s.persistLocked(ctx, s.pending); err != nil {
		s.lastErr = err
		telemetry.SubmitFailures.WithLabelValues(s.pending.Reason).Inc()
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithReason(errors.ReasonSubmissionPersistFailed),
			errors.WithMessagef("submission could not be saved, please retry"),
			errors.WithCause(err),
		)
	}

	a := *s.pending
	s.pending = nil
	s.lastErr = nil
	s.history = upsert(s.history, a)
	s.maxReached = maxAttemptsReached(s.quiz, s.history)

	r := a.Result()
	s.result = &r
	s.state = StateResults

	telemetry.AttemptsSubmitted.WithLabelValues(a.Reason, strconv.FormatBool(a.Passed)).Inc()
	s.svc.eb.Publish(ctx, domain.EventAttemptSubmitted{Attempt: a})

	out := r
	return &out, nil
}

func (s *Session) persistLocked(ctx context.Context, a *domain.Attempt) error {
	switch ref := s.ref.(type) {
	case attemptID:
		a.AttemptID = string(ref)
		return s.svc.attempts.UpdateAttempt(ctx, *a)

	case noAttemptYet:
		if err := s.svc.attempts.CreateAttempt(ctx, a); err != nil {
			return err
		}
		s.ref = attemptID(a.AttemptID)
		return nil
	}

	panic("unreachable")
}

// forceSubmit submits on behalf of the timer or the proctoring ceiling. Failures are reported to
// the participant, who has to retry the submission.
func (s *Session) forceSubmit(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.svc.submitTimeout)
	defer cancel()

	_, err := s.Submit(ctx, reason)
	if err == nil || errors.HasReason(err, errors.ReasonInvalidState) {
		return
	}

	slog.ErrorContext(ctx, "session: forced submission failed",
		"quiz", s.quiz.QuizID,
		"participant", s.participant.ParticipantID,
		"reason", reason,
		"error", err,
	)

	s.svc.eb.Publish(ctx, domain.EventAttemptSubmitFailed{
		QuizID:        s.quiz.QuizID,
		ParticipantID: s.participant.ParticipantID,
		Reason:        reason,
		Error:         errors.Convert(err).Message,
	})
}

// attemptLocked builds the attempt row from the session state, grading the current answers.
func (s *Session) attemptLocked(status domain.AttemptStatus, submittedAt *time.Time, reason string) domain.Attempt {
	a := domain.Attempt{
		QuizID:         s.quiz.QuizID,
		ParticipantID:  s.participant.ParticipantID,
		Status:         status,
		StartedAt:      s.startedAt,
		SubmittedAt:    submittedAt,
		Answers:        maps.Clone(s.answers),
		TotalQuestions: len(s.questions),
		Warnings:       s.warnings,
		Violations:     append([]string(nil), s.violations...),
		Reason:         reason,
	}
	if id, ok := s.ref.(attemptID); ok {
		a.AttemptID = string(id)
	}

	if submittedAt != nil {
		g := score.Grade(s.questions, s.answers, s.quiz.PassingScore)
		a.CorrectAnswers = g.CorrectAnswers
		a.Percentage = g.Percentage
		a.Passed = g.Passed
		a.DurationSecs = int(submittedAt.Sub(s.startedAt).Seconds())
	}

	return a
}

// stopLiveLocked stops webcam capture and the countdown. It does not wait for the countdown
// goroutine, which may be the caller.
func (s *Session) stopLiveLocked() {
	if s.monitor != nil {
		s.monitor.StopCapture()
	}
	if s.ticker != nil {
		s.stopOnce.Do(func() {
			close(s.stopTimer)
			s.ticker.Stop()
		})
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLiveLocked()
}

func (s *Session) terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == StateResults || s.state == StateMaxAttemptsReached
}

func (s *Session) invalidStateLocked(op string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(errors.ReasonInvalidState),
		errors.WithMessagef("cannot %s: session is %s", op, s.state),
	)
}

// View is a snapshot of a session for display.
type View struct {
	State              State
	Quiz               domain.Quiz
	Questions          []domain.Question
	Answers            map[int]string
	AttemptID          string
	Timed              bool
	RemainingSeconds   int
	Warnings           int
	WarningCeiling     int
	Violations         []string
	Attempts           int
	MaxAttemptsReached bool
	// Result is the freshly graded attempt in Results, or the latest stored one in MaxAttemptsReached.
	Result *domain.Result
	// Notice is a non-fatal problem found while loading.
	Notice string
	// Error is the last submission failure, if the session is waiting for a retry.
	Error string
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:              s.state,
		Quiz:               s.quiz,
		Questions:          make([]domain.Question, 0, len(s.questions)),
		Answers:            maps.Clone(s.answers),
		Timed:              s.timed,
		RemainingSeconds:   s.remaining,
		Warnings:           s.warnings,
		WarningCeiling:     s.svc.ceiling,
		Violations:         append([]string(nil), s.violations...),
		Attempts:           len(s.history),
		MaxAttemptsReached: s.maxReached,
		Notice:             s.notice,
	}

	for _, q := range s.questions {
		v.Questions = append(v.Questions, q.Public())
	}
	if id, ok := s.ref.(attemptID); ok {
		v.AttemptID = string(id)
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	if s.lastErr != nil {
		v.Error = "Your submission could not be saved. Please retry."
	}

	return v
}

func upsert(history []domain.Attempt, a domain.Attempt) []domain.Attempt {
	for i := range history {
		if history[i].AttemptID == a.AttemptID {
			out := append([]domain.Attempt(nil), history...)
			out[i] = a
			return out
		}
	}
	return append([]domain.Attempt{a}, history...)
}
