package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a single subscriber should receive correct event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e2"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s1"])
			},
		},

		"a single subscriber should receive all dispatched event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e1"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1")}, out.received["s1"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s3",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s2"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s3"])
			},
		},

		"multiple events should be dispatched correctly multiple subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e2"),
						eventWithName("e1"),
						eventWithName("e3"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"e1", "e2"},
						},
						{
							name:        "s3",
							subscribeTo: []string{"e3", "e2"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1"), eventWithName("e2")}, out.received["s2"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e2"), eventWithName("e3")}, out.received["s3"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(2))

	var delivered atomic.Int32
	b.Subscribe("e1", func(context.Context, event.Event) error {
		panic("handler bug")
	})
	b.Subscribe("e1", func(context.Context, event.Event) error {
		return errors.New("handler failed")
	})
	b.Subscribe("e1", func(context.Context, event.Event) error {
		delivered.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), eventWithName("e1"))
	}
	b.Stop()

	require.EqualValues(t, 5, delivered.Load())
}

func TestBus_HandlerDeadline(t *testing.T) {
	b := event.NewBus(event.WithTimeout(10 * time.Millisecond))

	var deadlineHit atomic.Bool
	b.Subscribe("slow", func(ctx context.Context, _ event.Event) error {
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.Publish(ctx, eventWithName("slow"))
	cancel()
	b.Stop()

	require.True(t, deadlineHit.Load(), "handler context should outlive the publisher and expire on its own deadline")
}

func TestBus_AttemptSubmittedFanOut(t *testing.T) {
	b := event.NewBus()

	var (
		mu       sync.Mutex
		received = make(map[string][]domain.Attempt)
	)
	record := func(name string) event.Handler {
		return func(_ context.Context, e event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received[name] = append(received[name], e.(domain.EventAttemptSubmitted).Attempt)
			return nil
		}
	}
	b.Subscribe(domain.EventNameAttemptSubmitted, record("leaderboard"))
	b.Subscribe(domain.EventNameAttemptSubmitted, record("notify"))
	b.Subscribe(domain.EventNameAttemptStarted, func(context.Context, event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received["started"] = append(received["started"], domain.Attempt{})
		return nil
	})

	submittedAt := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	a := domain.Attempt{
		AttemptID:      "a1",
		QuizID:         "q1",
		ParticipantID:  "p1",
		Status:         domain.AttemptStatusCompleted,
		SubmittedAt:    &submittedAt,
		Answers:        map[int]string{0: "A"},
		CorrectAnswers: 1,
		TotalQuestions: 1,
		Percentage:     100,
		Passed:         true,
		Violations:     []string{},
	}
	b.Publish(context.Background(), domain.EventAttemptSubmitted{Attempt: a})
	b.Publish(context.Background(), domain.EventAttemptSubmitFailed{QuizID: "q1", ParticipantID: "p1"})
	b.Stop()

	require.Equal(t, []domain.Attempt{a}, received["leaderboard"])
	require.Equal(t, []domain.Attempt{a}, received["notify"])
	require.Empty(t, received["started"])
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
