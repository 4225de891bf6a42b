package logsink

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriter_Append(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)
	s.Append("one")
	Appendf(s, "two %d", 2)

	if got := buf.String(); got != "one\ntwo 2\n" {
		t.Errorf("expected two lines, got %q", got)
	}
}

func TestChan_DropsOldest(t *testing.T) {
	c := NewChan(2)
	c.Append("a")
	c.Append("b")
	c.Append("c")

	if c.Dropped() != 1 {
		t.Errorf("expected 1 dropped line, got %d", c.Dropped())
	}
	if got := <-c.Lines(); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if got := <-c.Lines(); got != "c" {
		t.Errorf("expected c, got %q", got)
	}
}

func TestZap_Append(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewZap(zap.New(core))
	s.Append("Received: hi")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "Received: hi" || entries[0].LoggerName != "sink" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestMulti_Append(t *testing.T) {
	var a, b []string
	m := Multi{
		Func(func(l string) { a = append(a, l) }),
		Func(func(l string) { b = append(b, l) }),
	}
	m.Append("x")
	Discard.Append("ignored")

	if len(a) != 1 || len(b) != 1 {
		t.Errorf("expected both sinks to receive the line, got %v %v", a, b)
	}
}
