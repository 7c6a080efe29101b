package session

import "github.com/victornm/olympiad/internal/domain"

// attemptRef tells the persist routine whether the attempt row exists yet.
// It is either noAttemptYet or attemptID.
type attemptRef interface {
	isAttemptRef()
}

type noAttemptYet struct{}

type attemptID string

func (noAttemptYet) isAttemptRef() {}
func (attemptID) isAttemptRef()    {}

// maxAttemptsReached applies the retake policy of q to the participant's attempts.
//
// Retakes allowed: never reached. One attempt only (max_attempts <= 1): any attempt counts,
// submitted or not. Otherwise: reached once max_attempts attempts are submitted.
func maxAttemptsReached(q domain.Quiz, history []domain.Attempt) bool {
	if q.AllowRetake {
		return false
	}

	if q.MaxAttempts <= 1 {
		return len(history) > 0
	}

	completed := 0
	for _, a := range history {
		if a.Submitted() {
			completed++
		}
	}
	return completed >= q.MaxAttempts
}

// latestResult returns the result of the most recent submitted attempt. history is newest first.
func latestResult(history []domain.Attempt) *domain.Result {
	for _, a := range history {
		if a.Submitted() {
			r := a.Result()
			return &r
		}
	}
	return nil
}

// resumable returns the newest attempt that was started but never submitted.
func resumable(history []domain.Attempt) *domain.Attempt {
	for _, a := range history {
		if !a.Submitted() && a.Status == domain.AttemptStatusInProgress {
			a := a
			return &a
		}
	}
	return nil
}
