package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
	"github.com/victornm/olympiad/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAttemptSubmitted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventAttemptSubmitted))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
	// Limit caps the number of entries, 0 means all.
	Limit int64
}

// GetLeaderboard returns the best percentage of every participant of a quiz.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(-1)
	if req.Limit > 0 {
		stop = req.Limit - 1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.QuizID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%s", req.QuizID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: z.Member.(string),
			Score:         z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// UpdateLeaderboard records the percentage of a submitted attempt, keeping the participant's best.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventAttemptSubmitted) error {
	a := e.Attempt

	// TODO: retry on error
	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(a.QuizID), redis.Z{
		Score:  float64(a.Percentage),
		Member: a.ParticipantID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, a)
}

// schedulePublishLeaderboard publishes at most one leaderboard change per quiz and interval.
// Submissions cluster at the end of a timed round, so most of them are folded into one update.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, a domain.Attempt) error {
	var at int64
	if a.SubmittedAt != nil {
		at = a.SubmittedAt.UnixMilli()
	}

	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(a.QuizID), at, publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{QuizID: a.QuizID})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", a.QuizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(quiz string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, quiz)
}

func (s *Service) getLeaderboardTimeKey(quiz string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, quiz)
}
