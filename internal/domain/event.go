package domain

const (
	EventNameAttemptStarted     = "attempt.started"
	EventNameAttemptSubmitted   = "attempt.submitted"
	EventNameAttemptSubmitFail  = "attempt.submit_failed"
	EventNameCaptureRequested   = "proctoring.capture_requested"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventAttemptStarted struct {
	Attempt Attempt
}

func (EventAttemptStarted) Name() string { return EventNameAttemptStarted }

type EventAttemptSubmitted struct {
	Attempt Attempt
}

func (EventAttemptSubmitted) Name() string { return EventNameAttemptSubmitted }

// EventAttemptSubmitFailed is published when a forced submission could not be persisted.
type EventAttemptSubmitFailed struct {
	QuizID        string
	ParticipantID string
	Reason        string
	Error         string
}

func (EventAttemptSubmitFailed) Name() string { return EventNameAttemptSubmitFail }

type EventCaptureRequested struct {
	AttemptID     string
	ParticipantID string
}

func (EventCaptureRequested) Name() string { return EventNameCaptureRequested }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
