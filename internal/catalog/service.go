package catalog

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
)

// DB is the subset of pgxpool.Pool the catalog reads through.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	DB DB
}

// Service reads quizzes and their questions. Quizzes are authored by administrators elsewhere.
type Service struct {
	db DB
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, title, description, subject, duration_minutes, passing_score, total_questions,
       max_attempts, allow_retake, is_active, start_time, end_time
FROM quizzes
WHERE quiz_id = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(
		&q.QuizID, &q.Title, &q.Description, &q.Subject, &q.DurationMinutes, &q.PassingScore, &q.TotalQuestions,
		&q.MaxAttempts, &q.AllowRetake, &q.Active, &q.StartTime, &q.EndTime,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz not found: quiz=%s", quizID),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	return &q, nil
}

// ListQuestions returns the valid questions of a quiz in display order.
func (s *Service) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, quiz_id, question_text, option_a, option_b, option_c, option_d, correct_option, order_index
FROM questions
WHERE quiz_id = $1
ORDER BY order_index, question_id;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q          domain.Question
			a, b, c, d string
		)
		if err := r.Scan(&q.QuestionID, &q.QuizID, &q.QuestionText, &a, &b, &c, &d, &q.CorrectOption, &q.OrderIndex); err != nil {
			return domain.Question{}, err
		}
		q.Options = []domain.Option{
			{Label: domain.OptionA, Text: a},
			{Label: domain.OptionB, Text: b},
			{Label: domain.OptionC, Text: c},
			{Label: domain.OptionD, Text: d},
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return Valid(qs), nil
}

// Valid drops questions that cannot be answered: no text, an empty option, or a correct
// option that is not one of its labels.
func Valid(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if q.QuestionText == "" || !q.HasOption(q.CorrectOption) {
			continue
		}

		ok := true
		for _, o := range q.Options {
			if o.Text == "" {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, q)
		}
	}
	return out
}
