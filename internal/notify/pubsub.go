package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/event"
)

const maxConcurrent = 100

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

// Notifier forwards bus events to the participants they concern over Redis pub/sub.
// Each participant listens on <prefix>:participant:<id>.
type Notifier struct {
	redis  Redis
	prefix string
}

func New(c Config) *Notifier {
	n := &Notifier{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	c.EventBus.Subscribe(domain.EventNameAttemptSubmitted, func(ctx context.Context, e event.Event) error {
		return n.PublishAttemptSubmitted(ctx, e.(domain.EventAttemptSubmitted))
	})
	c.EventBus.Subscribe(domain.EventNameAttemptSubmitFail, func(ctx context.Context, e event.Event) error {
		return n.PublishSubmitFailed(ctx, e.(domain.EventAttemptSubmitFailed))
	})
	c.EventBus.Subscribe(domain.EventNameCaptureRequested, func(ctx context.Context, e event.Event) error {
		return n.PublishCaptureRequested(ctx, e.(domain.EventCaptureRequested))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return n.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return n
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptResult struct {
		AttemptID      string    `json:"attempt_id"`
		QuizID         string    `json:"quiz_id"`
		CorrectAnswers int       `json:"correct_answers"`
		TotalQuestions int       `json:"total_questions"`
		Percentage     int       `json:"percentage"`
		Passed         bool      `json:"passed"`
		Reason         string    `json:"reason"`
		SubmittedAt    time.Time `json:"submitted_at"`
	}

	SubmitFailed struct {
		QuizID string `json:"quiz_id"`
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}

	CaptureRequest struct {
		AttemptID string `json:"attempt_id"`
	}

	Leaderboard struct {
		QuizID  string             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		ParticipantID string `json:"participant_id"`
		Score         string `json:"score"`
	}
)

func (n *Notifier) PublishAttemptSubmitted(ctx context.Context, e domain.EventAttemptSubmitted) error {
	a := e.Attempt
	r := a.Result()

	return n.publishNotification(ctx, a.ParticipantID, e.Name(), AttemptResult{
		AttemptID:      a.AttemptID,
		QuizID:         a.QuizID,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
		Percentage:     r.Percentage,
		Passed:         r.Passed,
		Reason:         r.Reason,
		SubmittedAt:    r.SubmittedAt,
	})
}

func (n *Notifier) PublishSubmitFailed(ctx context.Context, e domain.EventAttemptSubmitFailed) error {
	return n.publishNotification(ctx, e.ParticipantID, e.Name(), SubmitFailed{
		QuizID: e.QuizID,
		Reason: e.Reason,
		Error:  e.Error,
	})
}

func (n *Notifier) PublishCaptureRequested(ctx context.Context, e domain.EventCaptureRequested) error {
	return n.publishNotification(ctx, e.ParticipantID, e.Name(), CaptureRequest{AttemptID: e.AttemptID})
}

// PublishLeaderboardUpdated sends the new leaderboard to every participant on it.
func (n *Notifier) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			ParticipantID: entry.ParticipantID,
			Score:         strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return n.publishNotification(ctx, entry.ParticipantID, e.Name(), data)
		})
	}

	return eg.Wait()
}

// Channel returns the pub/sub channel of a participant.
func (n *Notifier) Channel(participantID string) string {
	return fmt.Sprintf("%s:participant:%s", n.prefix, participantID)
}

func (n *Notifier) publishNotification(ctx context.Context, participantID, event string, data any) error {
	msg := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return n.redis.Publish(ctx, n.Channel(participantID), b).Err()
}
