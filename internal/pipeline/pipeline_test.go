package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vitaminmoo/blebench/internal/chunk"
	"github.com/vitaminmoo/blebench/internal/exchange"
	"github.com/vitaminmoo/blebench/internal/transport"
	"github.com/vitaminmoo/blebench/internal/transport/sim"
)

type recorder struct {
	*sim.Peripheral
	writes [][]byte
}

func (r *recorder) WriteCharacteristic(ctx context.Context, id transport.CharID, data []byte, ack bool) error {
	r.writes = append(r.writes, append([]byte(nil), data...))
	return r.Peripheral.WriteCharacteristic(ctx, id, data, ack)
}

func newRecorder(opts sim.Options) (*recorder, *exchange.Engine) {
	r := &recorder{Peripheral: sim.New(opts)}
	h := r.Peripheral.Handle()
	h.Transport = r
	return r, exchange.New(h)
}

func TestSend_FragmentsInOrder(t *testing.T) {
	rec, e := newRecorder(sim.Options{})
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}

	seq, err := Send(context.Background(), e, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := Collect(seq)

	if len(results) != chunk.Count(500, transport.DefaultMaxWriteSize) {
		t.Fatalf("expected %d results, got %d", chunk.Count(500, 244), len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d: expected index %d, got %d", i, i, r.Index)
		}
		if !r.OK() {
			t.Errorf("result %d: unexpected failure %v", i, r.Err)
		}
	}
	if !bytes.Equal(bytes.Join(rec.writes, nil), payload) {
		t.Error("expected writes to reconstruct the payload")
	}
	if len(rec.writes[2]) != 12 {
		t.Errorf("expected last fragment of 12 bytes, got %d", len(rec.writes[2]))
	}
}

func TestSend_Lazy(t *testing.T) {
	rec, e := newRecorder(sim.Options{})

	seq, err := Send(context.Background(), e, []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.writes) != 0 {
		t.Fatal("expected nothing sent before ranging")
	}

	for r := range seq {
		if len(rec.writes) != r.Index+1 {
			t.Errorf("expected result %d to arrive right after its write, saw %d writes", r.Index, len(rec.writes))
		}
	}
}

func TestSend_ContinuesAfterFailure(t *testing.T) {
	_, e := newRecorder(sim.Options{
		MaxWriteSize: 10,
		Fail: func(op sim.Op, n int) error {
			if op == sim.OpWrite && n == 2 {
				return errors.New("gatt: busy")
			}
			return nil
		},
	})

	seq, err := Send(context.Background(), e, make([]byte, 35))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := Collect(seq)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[1].OK() {
		t.Error("expected fragment 1 to fail")
	}
	for _, i := range []int{0, 2, 3} {
		if !results[i].OK() {
			t.Errorf("expected fragment %d to succeed after the failure, got %v", i, results[i].Err)
		}
	}
}

func TestSend_DisconnectMidMessage(t *testing.T) {
	_, e := newRecorder(sim.Options{MaxWriteSize: 10, DisconnectAfter: 2})

	seq, _ := Send(context.Background(), e, make([]byte, 50))
	results := Collect(seq)

	if len(results) != 5 {
		t.Fatalf("expected every fragment to be reported, got %d", len(results))
	}
	for _, r := range results[2:] {
		if !errors.Is(r.Err, transport.ErrNotConnected) {
			t.Errorf("fragment %d: expected ErrNotConnected, got %v", r.Index, r.Err)
		}
	}
}

func TestSend_NotConnected(t *testing.T) {
	rec, e := newRecorder(sim.Options{})
	rec.Disconnect()

	if _, err := Send(context.Background(), e, []byte("hi")); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSend_Empty(t *testing.T) {
	_, e := newRecorder(sim.Options{})
	seq, err := Send(context.Background(), e, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(Collect(seq)); n != 0 {
		t.Errorf("expected no results, got %d", n)
	}
}

func TestSend_Cancel(t *testing.T) {
	rec, e := newRecorder(sim.Options{MaxWriteSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq, _ := Send(ctx, e, []byte("abcdef"))
	var got int
	for r := range seq {
		got++
		if r.Index == 1 {
			cancel()
		}
	}

	if got != 2 || len(rec.writes) != 2 {
		t.Errorf("expected to stop after 2 fragments, got %d results / %d writes", got, len(rec.writes))
	}
}

func TestSend_BreakStops(t *testing.T) {
	rec, e := newRecorder(sim.Options{MaxWriteSize: 1})
	seq, _ := Send(context.Background(), e, []byte("abcdef"))
	for range seq {
		break
	}
	if len(rec.writes) != 1 {
		t.Errorf("expected 1 write, got %d", len(rec.writes))
	}
}

func TestSend_Restartable(t *testing.T) {
	rec, e := newRecorder(sim.Options{MaxWriteSize: 2})
	seq, _ := Send(context.Background(), e, []byte("abcd"))
	Collect(seq)
	Collect(seq)
	if len(rec.writes) != 4 {
		t.Errorf("expected the payload to be sent twice, got %d writes", len(rec.writes))
	}
}
