package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	io := errors.New("att: insufficient resources")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), ErrTimeout},
		{"io", io, ErrTransportFailure},
		{"already classified", ErrNotConnected, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v in chain, got %v", tt.want, got)
			}
		})
	}

	if !errors.Is(Classify(io), io) {
		t.Error("expected original cause to stay in the chain")
	}
	if Classify(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestKind(t *testing.T) {
	tests := map[string]error{
		"ok":                nil,
		"not_connected":     ErrNotConnected,
		"timeout":           Classify(context.DeadlineExceeded),
		"transport_failure": Classify(errors.New("boom")),
		"invalid_argument":  Invalidf("size %d", 0),
		"unknown":           errors.New("other"),
	}
	for want, err := range tests {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v): expected %q, got %q", err, want, got)
		}
	}
}

type sized int

func (s sized) IsConnected() bool { return true }
func (s sized) WriteCharacteristic(context.Context, CharID, []byte, bool) error {
	return nil
}
func (s sized) ReadCharacteristic(context.Context, CharID) ([]byte, error) { return nil, nil }
func (s sized) MaxWriteSize() int                                          { return int(s) }

func TestWriteSize_Default(t *testing.T) {
	if got := WriteSize(sized(0)); got != DefaultMaxWriteSize {
		t.Errorf("expected %d, got %d", DefaultMaxWriteSize, got)
	}
	if got := (Handle{Transport: sized(20)}).WriteSize(); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
}
