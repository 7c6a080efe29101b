package domain

import (
	"time"
)

// Quiz is a timed multiple-choice paper of the olympiad.
type Quiz struct {
	QuizID          string
	Title           string
	Description     string
	Subject         string
	DurationMinutes int
	PassingScore    int
	TotalQuestions  int
	MaxAttempts     int
	AllowRetake     bool
	Active          bool
	StartTime       *time.Time
	EndTime         *time.Time
}

// Duration returns the time a participant has to finish the quiz.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// Available reports whether the quiz can be started at t.
func (q Quiz) Available(t time.Time) bool {
	if !q.Active {
		return false
	}
	if q.StartTime != nil && t.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && t.After(*q.EndTime) {
		return false
	}
	return true
}

// Option labels of a question.
const (
	OptionA = "A"
	OptionB = "B"
	OptionC = "C"
	OptionD = "D"
)

type Question struct {
	QuestionID    string
	QuizID        string
	QuestionText  string
	Options       []Option
	CorrectOption string
	OrderIndex    int
}

type Option struct {
	Label string
	Text  string
}

// HasOption reports whether label is one of the question's options.
func (q Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Public returns a copy of the question that is safe to show to a participant.
func (q Question) Public() Question {
	q.CorrectOption = ""
	q.Options = append([]Option(nil), q.Options...)
	return q
}

type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// Attempt is one participant's pass at a quiz, from start to submission.
type Attempt struct {
	AttemptID      string
	QuizID         string
	ParticipantID  string
	Status         AttemptStatus
	StartedAt      time.Time
	SubmittedAt    *time.Time
	Answers        map[int]string
	CorrectAnswers int
	TotalQuestions int
	Percentage     int
	Passed         bool
	Warnings       int
	Violations     []string
	Reason         string
	DurationSecs   int
}

// Submitted reports whether the attempt has been submitted.
func (a Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// Result returns the outcome stored on a submitted attempt.
func (a Attempt) Result() Result {
	r := Result{
		AttemptID:      a.AttemptID,
		CorrectAnswers: a.CorrectAnswers,
		TotalQuestions: a.TotalQuestions,
		Percentage:     a.Percentage,
		Passed:         a.Passed,
		Warnings:       a.Warnings,
		Violations:     append([]string(nil), a.Violations...),
		Reason:         a.Reason,
		DurationSecs:   a.DurationSecs,
	}
	if a.SubmittedAt != nil {
		r.SubmittedAt = *a.SubmittedAt
	}
	return r
}

// Result is the graded outcome of an attempt.
type Result struct {
	AttemptID      string
	CorrectAnswers int
	TotalQuestions int
	Percentage     int
	Passed         bool
	Warnings       int
	Violations     []string
	Reason         string
	SubmittedAt    time.Time
	DurationSecs   int
}

// Participant is a registered olympiad candidate.
type Participant struct {
	ParticipantID string
	FullName      string
	Email         string
	ClassLevel    string
	Courses       []string
	PaymentStatus string
}

type ViolationKind string

const (
	ViolationTabHidden         ViolationKind = "tab_hidden"
	ViolationWindowBlur        ViolationKind = "window_blur"
	ViolationCopy              ViolationKind = "copy"
	ViolationPaste             ViolationKind = "paste"
	ViolationFullscreenExit    ViolationKind = "fullscreen_exit"
	ViolationWebcamUnavailable ViolationKind = "webcam_unavailable"
	ViolationOther             ViolationKind = "other"
)

// Violation is a suspicious behaviour reported by the participant's browser.
type Violation struct {
	Kind   ViolationKind
	Detail string
	Time   time.Time
}

// Capture is a webcam frame uploaded during an attempt.
type Capture struct {
	CaptureID     string
	AttemptID     string
	ParticipantID string
	ContentType   string
	Image         []byte
	CaptureTime   time.Time
}

// Leaderboard lists participants of a quiz by their best percentage, in descending order.
type Leaderboard struct {
	QuizID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	ParticipantID string
	Score         float64
}
