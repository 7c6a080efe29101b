package api

import (
	"strconv"
	"time"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/session"
)

type (
	LoginResponse struct {
		Token       string      `json:"token"`
		Participant Participant `json:"participant"`
	}

	Participant struct {
		ParticipantID string   `json:"participant_id"`
		FullName      string   `json:"full_name"`
		Email         string   `json:"email"`
		ClassLevel    string   `json:"class_level,omitempty"`
		Courses       []string `json:"courses,omitempty"`
		PaymentStatus string   `json:"payment_status,omitempty"`
	}

	ListAttemptsResponse struct {
		Attempts []Attempt `json:"attempts"`
	}

	Attempt struct {
		AttemptID   string     `json:"attempt_id"`
		QuizID      string     `json:"quiz_id"`
		Status      string     `json:"status"`
		StartedAt   time.Time  `json:"started_at"`
		SubmittedAt *time.Time `json:"submitted_at,omitempty"`
		Percentage  int        `json:"percentage"`
		Passed      bool       `json:"passed"`
	}

	Session struct {
		State              string            `json:"state"`
		Quiz               Quiz              `json:"quiz"`
		Questions          []Question        `json:"questions"`
		Answers            map[string]string `json:"answers"`
		AttemptID          string            `json:"attempt_id,omitempty"`
		Timed              bool              `json:"timed"`
		RemainingSeconds   int               `json:"remaining_seconds"`
		Warnings           int               `json:"warnings"`
		WarningCeiling     int               `json:"warning_ceiling"`
		Violations         []string          `json:"violations"`
		Attempts           int               `json:"attempts"`
		MaxAttemptsReached bool              `json:"max_attempts_reached"`
		Result             *Result           `json:"result,omitempty"`
		Notice             string            `json:"notice,omitempty"`
		Error              string            `json:"error,omitempty"`
	}

	Quiz struct {
		QuizID          string `json:"quiz_id"`
		Title           string `json:"title"`
		Description     string `json:"description,omitempty"`
		Subject         string `json:"subject,omitempty"`
		DurationMinutes int    `json:"duration_minutes"`
		PassingScore    int    `json:"passing_score"`
		TotalQuestions  int    `json:"total_questions"`
		MaxAttempts     int    `json:"max_attempts"`
		AllowRetake     bool   `json:"allow_retake"`
	}

	Question struct {
		QuestionID   string   `json:"question_id"`
		QuestionText string   `json:"question_text"`
		Options      []Option `json:"options"`
	}

	Option struct {
		Label string `json:"label"`
		Text  string `json:"text"`
	}

	Result struct {
		AttemptID      string    `json:"attempt_id"`
		CorrectAnswers int       `json:"correct_answers"`
		TotalQuestions int       `json:"total_questions"`
		Percentage     int       `json:"percentage"`
		Passed         bool      `json:"passed"`
		Warnings       int       `json:"warnings"`
		Violations     []string  `json:"violations"`
		Reason         string    `json:"reason"`
		SubmittedAt    time.Time `json:"submitted_at"`
		DurationSecs   int       `json:"duration_secs"`
	}

	Capture struct {
		CaptureID   string    `json:"capture_id"`
		AttemptID   string    `json:"attempt_id"`
		CaptureTime time.Time `json:"capture_time"`
	}

	Leaderboard struct {
		QuizID  string             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		ParticipantID string  `json:"participant_id"`
		Score         float64 `json:"score"`
	}
)

func toParticipant(p domain.Participant) Participant {
	return Participant{
		ParticipantID: p.ParticipantID,
		FullName:      p.FullName,
		Email:         p.Email,
		ClassLevel:    p.ClassLevel,
		Courses:       p.Courses,
		PaymentStatus: p.PaymentStatus,
	}
}

func toAttempt(a domain.Attempt) Attempt {
	return Attempt{
		AttemptID:   a.AttemptID,
		QuizID:      a.QuizID,
		Status:      string(a.Status),
		StartedAt:   a.StartedAt,
		SubmittedAt: a.SubmittedAt,
		Percentage:  a.Percentage,
		Passed:      a.Passed,
	}
}

func toSession(v session.View) Session {
	s := Session{
		State: string(v.State),
		Quiz: Quiz{
			QuizID:          v.Quiz.QuizID,
			Title:           v.Quiz.Title,
			Description:     v.Quiz.Description,
			Subject:         v.Quiz.Subject,
			DurationMinutes: v.Quiz.DurationMinutes,
			PassingScore:    v.Quiz.PassingScore,
			TotalQuestions:  v.Quiz.TotalQuestions,
			MaxAttempts:     v.Quiz.MaxAttempts,
			AllowRetake:     v.Quiz.AllowRetake,
		},
		Questions:          make([]Question, 0, len(v.Questions)),
		Answers:            make(map[string]string, len(v.Answers)),
		AttemptID:          v.AttemptID,
		Timed:              v.Timed,
		RemainingSeconds:   v.RemainingSeconds,
		Warnings:           v.Warnings,
		WarningCeiling:     v.WarningCeiling,
		Violations:         v.Violations,
		Attempts:           v.Attempts,
		MaxAttemptsReached: v.MaxAttemptsReached,
		Notice:             v.Notice,
		Error:              v.Error,
	}

	if s.Violations == nil {
		s.Violations = []string{}
	}

	for _, q := range v.Questions {
		dq := Question{
			QuestionID:   q.QuestionID,
			QuestionText: q.QuestionText,
			Options:      make([]Option, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			dq.Options = append(dq.Options, Option{Label: o.Label, Text: o.Text})
		}
		s.Questions = append(s.Questions, dq)
	}

	for i, o := range v.Answers {
		s.Answers[strconv.Itoa(i)] = o
	}

	if v.Result != nil {
		s.Result = &Result{
			AttemptID:      v.Result.AttemptID,
			CorrectAnswers: v.Result.CorrectAnswers,
			TotalQuestions: v.Result.TotalQuestions,
			Percentage:     v.Result.Percentage,
			Passed:         v.Result.Passed,
			Warnings:       v.Result.Warnings,
			Violations:     v.Result.Violations,
			Reason:         v.Result.Reason,
			SubmittedAt:    v.Result.SubmittedAt,
			DurationSecs:   v.Result.DurationSecs,
		}
	}

	return s
}
