package proctoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/olympiad/internal/clock"
	"github.com/victornm/olympiad/internal/domain"
)

// Snapshot is the state of a monitor after a change.
type Snapshot struct {
	Warnings   int
	Violations []string
}

type Listener func(Snapshot)

// Monitor counts the violations reported for one attempt and drives its webcam capture loop.
// Every recorded violation is one warning.
type Monitor struct {
	participantID string
	newTicker     clock.NewTickerFunc
	captureEvery  time.Duration
	eb            Publisher

	mu         sync.Mutex
	attemptID  string
	warnings   int
	violations []string
	listeners  []Listener

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Init enables monitoring for a started attempt. Frames are requested from the browser on every
// capture tick until StopCapture.
func (m *Monitor) Init(ctx context.Context, attemptID string) error {
	if attemptID == "" {
		return fmt.Errorf("proctoring: init: empty attempt ID")
	}

	m.mu.Lock()
	if m.attemptID != "" {
		m.mu.Unlock()
		return fmt.Errorf("proctoring: init: already monitoring attempt %s", m.attemptID)
	}
	m.attemptID = attemptID
	m.mu.Unlock()

	if m.captureEvery <= 0 {
		close(m.done)
		return nil
	}

	t := m.newTicker(m.captureEvery)
	go m.captureLoop(context.WithoutCancel(ctx), t)

	slog.InfoContext(ctx, "proctoring: monitor started", "attempt", attemptID, "participant", m.participantID)
	return nil
}

func (m *Monitor) captureLoop(ctx context.Context, t clock.Ticker) {
	defer close(m.done)
	defer t.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-t.C():
			m.eb.Publish(ctx, domain.EventCaptureRequested{
				AttemptID:     m.attemptID,
				ParticipantID: m.participantID,
			})
		}
	}
}

// Subscribe registers l to be called after every change of the warning count.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

// Record adds a violation. Listeners are called on the caller's goroutine.
func (m *Monitor) Record(_ context.Context, v domain.Violation) Snapshot {
	m.mu.Lock()
	m.warnings++
	m.violations = append(m.violations, Describe(v))
	s := m.snapshotLocked()
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range ls {
		l(s)
	}
	return s
}

// Reset zeroes the warning count while keeping the violation history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.warnings = 0
	s := m.snapshotLocked()
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range ls {
		l(s)
	}
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{
		Warnings:   m.warnings,
		Violations: append([]string(nil), m.violations...),
	}
}

// StopCapture stops the capture loop and waits for it to exit. It is safe to call more than once
// and before Init.
func (m *Monitor) StopCapture() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	started := m.attemptID != ""
	m.mu.Unlock()

	if started {
		<-m.done
	}
}

var descriptions = map[domain.ViolationKind]string{
	domain.ViolationTabHidden:         "Switched away from the quiz tab",
	domain.ViolationWindowBlur:        "Quiz window lost focus",
	domain.ViolationCopy:              "Attempted to copy content",
	domain.ViolationPaste:             "Attempted to paste content",
	domain.ViolationFullscreenExit:    "Exited fullscreen mode",
	domain.ViolationWebcamUnavailable: "Webcam not available",
	domain.ViolationOther:             "Suspicious activity detected",
}

// Describe returns the human readable description of a violation.
func Describe(v domain.Violation) string {
	d, ok := descriptions[v.Kind]
	if !ok {
		d = descriptions[domain.ViolationOther]
	}
	if v.Detail != "" {
		d += ": " + v.Detail
	}
	return d
}

// ValidKind reports whether k is a known violation kind.
func ValidKind(k domain.ViolationKind) bool {
	_, ok := descriptions[k]
	return ok
}
