package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vitaminmoo/blebench/internal/harness"
	"github.com/vitaminmoo/blebench/internal/transport"
	"github.com/vitaminmoo/blebench/internal/transport/sim"
)

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, line)
}

func (l *lines) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.all...)
}

func (l *lines) contains(sub string) bool {
	for _, s := range l.snapshot() {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestSendMessage_LogsFragments(t *testing.T) {
	p := sim.New(sim.Options{MaxWriteSize: 4})
	out := &lines{}
	c := New(p.Handle(), out)

	failed, err := c.Send(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != 0 {
		t.Errorf("expected no failures, got %d", failed)
	}
	if p.Writes() != 3 {
		t.Errorf("expected 3 writes, got %d", p.Writes())
	}
	for _, want := range []string{"Sent fragment 1/3 (4 bytes)", "Sent fragment 3/3 (3 bytes)", "Received: hell", "Received: rld"} {
		if !out.contains(want) {
			t.Errorf("expected sink line containing %q, got %v", want, out.snapshot())
		}
	}
}

func TestSendMessage_NotConnected(t *testing.T) {
	p := sim.New(sim.Options{})
	p.Disconnect()
	out := &lines{}

	_, err := New(p.Handle(), out).SendMessage(context.Background(), "hi")
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if !out.contains("Not connected") {
		t.Errorf("expected not-connected line, got %v", out.snapshot())
	}
	if p.Writes() != 0 {
		t.Errorf("expected no writes, got %d", p.Writes())
	}
}

func TestSendMessage_LogsFailures(t *testing.T) {
	p := sim.New(sim.Options{MaxWriteSize: 2, Fail: func(op sim.Op, n int) error {
		if op == sim.OpRead && n == 1 {
			return errors.New("att: read not permitted")
		}
		return nil
	}})
	out := &lines{}

	failed, err := New(p.Handle(), out).Send(context.Background(), "abcd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != 1 {
		t.Errorf("expected 1 failed fragment, got %d", failed)
	}
	if !out.contains("Fragment 1/2 failed") {
		t.Errorf("expected failure line, got %v", out.snapshot())
	}
	if !out.contains("Sent fragment 2/2") {
		t.Errorf("expected second fragment to be sent, got %v", out.snapshot())
	}
}

func TestRunThroughputTest_Summary(t *testing.T) {
	p := sim.New(sim.Options{Responder: func([]byte) []byte { return nil }})
	out := &lines{}
	c := New(p.Handle(), out)

	var calls int
	rep, err := c.RunThroughputTest(context.Background(), 244, 10, 4, func(harness.Progress) { calls++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.BytesSent != 2440 || rep.BytesReceived != 0 {
		t.Errorf("expected 2440/0 bytes, got %d/%d", rep.BytesSent, rep.BytesReceived)
	}
	if calls != 10 {
		t.Errorf("expected 10 progress calls, got %d", calls)
	}
	if !out.contains("Sent 2440 bytes | sending ") {
		t.Errorf("expected summary line, got %v", out.snapshot())
	}
	if !out.contains("10 attempted, 10 succeeded, 0 failed") {
		t.Errorf("expected counts line, got %v", out.snapshot())
	}
}

func TestRunThroughputTest_Interval(t *testing.T) {
	p := sim.New(sim.Options{})
	c := New(p.Handle(), nil, WithInterval(5*time.Millisecond), WithFill('x'))

	start := time.Now()
	if _, err := c.RunThroughputTest(context.Background(), 8, 4, 2, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("expected paced dispatch")
	}
}

func TestFitPacketSize_CapsToLink(t *testing.T) {
	out := &lines{}
	c := New(sim.New(sim.Options{MaxWriteSize: 100}).Handle(), out)

	if got := c.FitPacketSize(244); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
	if !out.contains("Packet size 244 exceeds link maximum 100, using 100") {
		t.Errorf("expected cap notice, got %v", out.snapshot())
	}
	if got := c.FitPacketSize(64); got != 64 {
		t.Errorf("expected 64, got %d", got)
	}
}

func TestRunThroughputTest_DefaultSizeOnSmallLink(t *testing.T) {
	out := &lines{}
	c := New(sim.New(sim.Options{MaxWriteSize: 20}).Handle(), out)

	rep, err := c.RunThroughputTest(context.Background(), c.FitPacketSize(244), 5, 2, nil)
	if err != nil {
		t.Fatalf("expected default size to be capped, got %v", err)
	}
	if rep.Successes != 5 {
		t.Errorf("expected 5 successes, got %d", rep.Successes)
	}
}

func TestRunThroughputTest_Invalid(t *testing.T) {
	out := &lines{}
	_, err := New(sim.New(sim.Options{}).Handle(), out).RunThroughputTest(context.Background(), 0, 10, 1, nil)
	if !errors.Is(err, transport.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if !out.contains("Error:") {
		t.Errorf("expected error line, got %v", out.snapshot())
	}
}

func TestListen_UntilCancel(t *testing.T) {
	p := sim.New(sim.Options{Responder: func([]byte) []byte { return []byte("ping") }})
	out := &lines{}
	c := New(p.Handle(), out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Listen(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Reads() < 2 {
		t.Errorf("expected several polls, got %d", p.Reads())
	}
	if !out.contains("Received: ping") {
		t.Errorf("expected received lines, got %v", out.snapshot())
	}
}

func TestListen_StopsOnDisconnect(t *testing.T) {
	p := sim.New(sim.Options{Fail: func(op sim.Op, n int) error { return nil }})
	out := &lines{}
	c := New(p.Handle(), out)

	go func() {
		time.Sleep(15 * time.Millisecond)
		p.Disconnect()
	}()

	err := c.Listen(context.Background(), 5*time.Millisecond)
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if !out.contains("Disconnected") {
		t.Errorf("expected disconnect line, got %v", out.snapshot())
	}
}
