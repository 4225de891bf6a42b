package ble

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitaminmoo/blebench/internal/config"
)

func TestOptionsFrom_Defaults(t *testing.T) {
	o := OptionsFrom(config.DeviceConfig{Name: "bench"}, 0)

	if o.Service != DefaultServiceUUID || o.WriteChar != DefaultWriteCharUUID || o.ReadChar != DefaultReadCharUUID {
		t.Errorf("expected default uuids, got %+v", o)
	}
	if o.ScanTimeout != DefaultScanTimeout || o.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("expected default timeouts, got %v %v", o.ScanTimeout, o.ConnectTimeout)
	}
}

func TestOptions_Matches(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		dev  Device
		want bool
	}{
		{"name substring", Options{Name: "bench"}, Device{Name: "ESP32-Bench-01"}, true},
		{"name mismatch", Options{Name: "bench"}, Device{Name: "Headphones"}, false},
		{"address", Options{Address: "AA:BB:CC:DD:EE:FF"}, Device{Address: "aa:bb:cc:dd:ee:ff"}, true},
		{"address wins", Options{Name: "bench", Address: "11:22:33:44:55:66"}, Device{Name: "bench", Address: "AA:BB:CC:DD:EE:FF"}, false},
		{"no criteria", Options{}, Device{Name: "anything"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.matches(tt.dev); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAwait(t *testing.T) {
	v, err := await(context.Background(), time.Second, func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("expected 7, got %d %v", v, err)
	}

	block := make(chan struct{})
	defer close(block)
	_, err = await(context.Background(), 10*time.Millisecond, func() (int, error) {
		<-block
		return 0, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestThrough_HoldsUntilCallReturns(t *testing.T) {
	r := newRadio()
	block := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := through(ctx, r, func() (int, error) {
		<-block
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	var ran atomic.Bool
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = through(ctx2, r, func() (int, error) {
		ran.Store(true)
		return 2, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded while the radio is busy, got %v", err)
	}
	if ran.Load() {
		t.Error("expected no call to start while the abandoned one is outstanding")
	}

	close(block)
	v, err := through(context.Background(), r, func() (int, error) { return 3, nil })
	if err != nil || v != 3 {
		t.Errorf("expected 3 once the radio is free, got %d %v", v, err)
	}
}

func TestThrough_Sequential(t *testing.T) {
	r := newRadio()
	for i := 0; i < 3; i++ {
		v, err := through(context.Background(), r, func() (int, error) { return i, nil })
		if err != nil || v != i {
			t.Errorf("expected %d, got %d %v", i, v, err)
		}
	}
}
