package attempt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/postgres"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	DB DB
}

// Service persists quiz attempts in the quiz_attempts table.
type Service struct {
	db DB
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

const selectAttempt = `
SELECT attempt_id, quiz_id, participant_id, status, started_at, submitted_at, user_answers,
       score, total_questions, percentage, passed, warnings, violations, reason, duration_secs
FROM quiz_attempts`

// ListAttempts returns the attempts of a participant at a quiz, newest first.
func (s *Service) ListAttempts(ctx context.Context, quizID, participantID string) ([]domain.Attempt, error) {
	rows, err := s.db.Query(ctx, selectAttempt+`
WHERE quiz_id = $1 AND participant_id = $2
ORDER BY started_at DESC;`, quizID, participantID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	return collectAttempts(rows)
}

// ListByParticipant returns every attempt of a participant, newest first.
func (s *Service) ListByParticipant(ctx context.Context, participantID string) ([]domain.Attempt, error) {
	rows, err := s.db.Query(ctx, selectAttempt+`
WHERE participant_id = $1
ORDER BY started_at DESC;`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list attempts by participant: %w", err)
	}

	return collectAttempts(rows)
}

// CreateAttempt inserts a and assigns its ID. At most one in-progress attempt may exist per quiz
// and participant; a second one fails with CodeAlreadyExists.
func (s *Service) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate attempt ID: %w", err)
	}

	const stmt = `
INSERT INTO quiz_attempts (attempt_id, quiz_id, participant_id, status, started_at, submitted_at, user_answers,
                           score, total_questions, percentage, passed, warnings, violations, reason, duration_secs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`

	_, err = s.db.Exec(ctx, stmt,
		id, a.QuizID, a.ParticipantID, a.Status, a.StartedAt, a.SubmittedAt, answersOrEmpty(a.Answers),
		a.CorrectAnswers, a.TotalQuestions, a.Percentage, a.Passed, a.Warnings, violationsOrEmpty(a.Violations), a.Reason, a.DurationSecs,
	)
	if postgres.IsUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAttemptInProgress),
			errors.WithMessagef("attempt already in progress: quiz=%s participant=%s", a.QuizID, a.ParticipantID),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	a.AttemptID = id.String()
	return nil
}

// UpdateAttempt overwrites the mutable fields of an existing attempt.
func (s *Service) UpdateAttempt(ctx context.Context, a domain.Attempt) error {
	const stmt = `
UPDATE quiz_attempts
SET status = $2, submitted_at = $3, user_answers = $4, score = $5, total_questions = $6, percentage = $7,
    passed = $8, warnings = $9, violations = $10, reason = $11, duration_secs = $12
WHERE attempt_id = $1;`

	tag, err := s.db.Exec(ctx, stmt,
		a.AttemptID, a.Status, a.SubmittedAt, answersOrEmpty(a.Answers), a.CorrectAnswers, a.TotalQuestions, a.Percentage,
		a.Passed, a.Warnings, violationsOrEmpty(a.Violations), a.Reason, a.DurationSecs,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("attempt not found: attempt=%s", a.AttemptID))
	}

	return nil
}

// SaveAnswers stores the answer map of an in-progress attempt.
func (s *Service) SaveAnswers(ctx context.Context, attemptID string, answers map[int]string) error {
	const stmt = `UPDATE quiz_attempts SET user_answers = $2 WHERE attempt_id = $1 AND status = 'in_progress';`

	if _, err := s.db.Exec(ctx, stmt, attemptID, answersOrEmpty(answers)); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func collectAttempts(rows pgx.Rows) ([]domain.Attempt, error) {
	as, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Attempt, error) {
		var (
			a  domain.Attempt
			id uuid.UUID
		)
		err := r.Scan(&id, &a.QuizID, &a.ParticipantID, &a.Status, &a.StartedAt, &a.SubmittedAt, &a.Answers,
			&a.CorrectAnswers, &a.TotalQuestions, &a.Percentage, &a.Passed, &a.Warnings, &a.Violations, &a.Reason, &a.DurationSecs)
		if err != nil {
			return domain.Attempt{}, err
		}
		a.AttemptID = id.String()
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan attempts: %w", err)
	}

	return as, nil
}

func answersOrEmpty(m map[int]string) map[int]string {
	if m == nil {
		return map[int]string{}
	}
	return m
}

func violationsOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
