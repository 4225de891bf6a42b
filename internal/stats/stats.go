// Package stats accumulates exchange outcomes into session statistics.
package stats

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitaminmoo/blebench/internal/exchange"
	"github.com/vitaminmoo/blebench/internal/transport"
)

// ErrFinalized is returned by Add once the session has been closed.
var ErrFinalized = errors.New("session finalized")

// Session aggregates exchange results. Safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	report Report
	closed bool
	now    func() time.Time
}

// NewSession creates a session for planned exchanges of packetSize bytes.
func NewSession(planned, packetSize int) (*Session, error) {
	if planned < 0 {
		return nil, transport.Invalidf("planned exchange count must not be negative, got %d", planned)
	}
	if packetSize < 0 {
		return nil, transport.Invalidf("packet size must not be negative, got %d", packetSize)
	}
	return &Session{
		report: Report{
			ID:           uuid.New(),
			Planned:      planned,
			PacketSize:   packetSize,
			FailureKinds: map[string]int{},
		},
		now: time.Now,
	}, nil
}

// Begin marks the wall-clock start of the session. Only the first call counts.
func (s *Session) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report.StartedAt.IsZero() {
		s.report.StartedAt = s.now()
	}
}

// Add records one exchange outcome. Failures count toward Attempted and
// Failures only; their bytes and timings are excluded.
func (s *Session) Add(r exchange.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrFinalized
	}

	rep := &s.report
	rep.Attempted++
	if rep.StartedAt.IsZero() || (!r.StartedAt.IsZero() && r.StartedAt.Before(rep.StartedAt)) {
		rep.StartedAt = r.StartedAt
	}
	if r.EndedAt.After(rep.lastDone) {
		rep.lastDone = r.EndedAt
	}

	if !r.OK() {
		rep.Failures++
		rep.FailureKinds[transport.Kind(r.Err)]++
		return nil
	}

	lat := r.Latency()
	rep.Successes++
	rep.BytesSent += int64(r.Sent)
	rep.BytesReceived += int64(len(r.Received))
	rep.SendTime += r.SendTime()
	rep.ReceiveTime += r.ReceiveTime()
	rep.TotalLatency += lat
	if rep.Successes == 1 || lat < rep.MinLatency {
		rep.MinLatency = lat
	}
	if lat > rep.MaxLatency {
		rep.MaxLatency = lat
	}
	return nil
}

// Finalize closes the session and returns the final report. cancelled marks
// a run that stopped dispatching before all planned exchanges were attempted.
// Calling Finalize again returns the same report.
func (s *Session) Finalize(cancelled bool) Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.report.Cancelled = cancelled
		end := s.report.lastDone
		if end.IsZero() {
			end = s.now()
		}
		if s.report.StartedAt.IsZero() {
			s.report.StartedAt = end
		}
		s.report.EndedAt = end
	}
	return s.report.clone()
}

// Snapshot returns the current totals without closing the session.
func (s *Session) Snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report.clone()
}

// Report is an immutable view of session statistics.
type Report struct {
	ID         uuid.UUID
	PacketSize int

	Planned   int
	Attempted int
	Successes int
	Failures  int
	Cancelled bool

	// FailureKinds counts failures by transport.Kind.
	FailureKinds map[string]int

	BytesSent     int64
	BytesReceived int64

	SendTime     time.Duration
	ReceiveTime  time.Duration
	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration

	StartedAt time.Time
	EndedAt   time.Time

	lastDone time.Time
}

func (r Report) clone() Report {
	kinds := make(map[string]int, len(r.FailureKinds))
	for k, v := range r.FailureKinds {
		kinds[k] = v
	}
	r.FailureKinds = kinds
	return r
}

// Duration is the wall-clock time from first dispatch to last completion.
func (r Report) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// MeanLatency is the average round trip over successful exchanges.
func (r Report) MeanLatency() time.Duration {
	if r.Successes == 0 {
		return 0
	}
	return r.TotalLatency / time.Duration(r.Successes)
}

// AvgReceiveTime is the average time spent reading per successful exchange.
func (r Report) AvgReceiveTime() time.Duration {
	if r.Successes == 0 {
		return 0
	}
	return r.ReceiveTime / time.Duration(r.Successes)
}

// Throughput is successfully sent bytes per second of wall-clock time.
func (r Report) Throughput() float64 {
	d := r.Duration()
	if d <= 0 {
		return 0
	}
	return float64(r.BytesSent) / d.Seconds()
}
