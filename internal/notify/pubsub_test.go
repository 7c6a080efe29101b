package notify_test

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/event"
	"github.com/victornm/olympiad/internal/notify"
)

func TestNotifier(t *testing.T) {
	submittedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		publish  event.Event
		channels []string
		assert   func(t *testing.T, msgs map[string]notification)
	}{
		"attempt result goes to its participant": {
			publish: domain.EventAttemptSubmitted{Attempt: domain.Attempt{
				AttemptID:      "a1",
				QuizID:         "q1",
				ParticipantID:  "p1",
				Status:         domain.AttemptStatusCompleted,
				SubmittedAt:    &submittedAt,
				CorrectAnswers: 6,
				TotalQuestions: 10,
				Percentage:     60,
				Passed:         true,
				Reason:         "Time expired",
			}},
			channels: []string{"p1"},
			assert: func(t *testing.T, msgs map[string]notification) {
				n := msgs["test:participant:p1"]
				require.Equal(t, domain.EventNameAttemptSubmitted, n.Event)

				var r notify.AttemptResult
				require.NoError(t, json.Unmarshal(n.Data, &r))
				require.Equal(t, notify.AttemptResult{
					AttemptID:      "a1",
					QuizID:         "q1",
					CorrectAnswers: 6,
					TotalQuestions: 10,
					Percentage:     60,
					Passed:         true,
					Reason:         "Time expired",
					SubmittedAt:    submittedAt,
				}, r)
			},
		},

		"capture request goes to its participant": {
			publish:  domain.EventCaptureRequested{AttemptID: "a1", ParticipantID: "p2"},
			channels: []string{"p2"},
			assert: func(t *testing.T, msgs map[string]notification) {
				n := msgs["test:participant:p2"]
				require.Equal(t, domain.EventNameCaptureRequested, n.Event)
				require.JSONEq(t, `{"attempt_id":"a1"}`, string(n.Data))
			},
		},

		"submit failure goes to its participant": {
			publish:  domain.EventAttemptSubmitFailed{QuizID: "q1", ParticipantID: "p3", Reason: "Time expired", Error: "retry"},
			channels: []string{"p3"},
			assert: func(t *testing.T, msgs map[string]notification) {
				n := msgs["test:participant:p3"]
				require.Equal(t, domain.EventNameAttemptSubmitFail, n.Event)
				require.JSONEq(t, `{"quiz_id":"q1","reason":"Time expired","error":"retry"}`, string(n.Data))
			},
		},

		"leaderboard goes to every listed participant": {
			publish: domain.EventLeaderboardUpdated{Leaderboard: domain.Leaderboard{
				QuizID: "q1",
				Entries: []domain.LeaderboardEntry{
					{ParticipantID: "p1", Score: 90},
					{ParticipantID: "p2", Score: 42.5},
				},
			}},
			channels: []string{"p1", "p2"},
			assert: func(t *testing.T, msgs map[string]notification) {
				keys := make([]string, 0, len(msgs))
				for k := range msgs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				require.Equal(t, []string{"test:participant:p1", "test:participant:p2"}, keys)

				var l notify.Leaderboard
				require.NoError(t, json.Unmarshal(msgs["test:participant:p2"].Data, &l))
				require.Equal(t, notify.Leaderboard{
					QuizID: "q1",
					Entries: []notify.LeaderboardEntry{
						{ParticipantID: "p1", Score: "90"},
						{ParticipantID: "p2", Score: "42.5"},
					},
				}, l)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			rs := miniredis.RunT(t)
			rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
			t.Cleanup(func() { rc.Close() })

			eb := event.NewBus()
			n := notify.New(notify.Config{EventBus: eb, Redis: rc, Prefix: "test"})

			channels := make([]string, 0, len(tt.channels))
			for _, p := range tt.channels {
				channels = append(channels, n.Channel(p))
			}
			sub := rc.Subscribe(ctx, channels...)
			t.Cleanup(func() { sub.Close() })
			_, err := sub.Receive(ctx)
			require.NoError(t, err, "subscription should be confirmed")
			for range channels[1:] {
				_, err := sub.Receive(ctx)
				require.NoError(t, err)
			}

			eb.Publish(ctx, tt.publish)
			eb.Stop()

			msgs := make(map[string]notification)
			for range channels {
				m, err := sub.ReceiveMessage(ctx)
				require.NoError(t, err)

				var got notification
				require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
				msgs[m.Channel] = got
			}

			tt.assert(t, msgs)
		})
	}
}

type notification struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
