package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGo_ReturnsError(t *testing.T) {
	want := errors.New("boom")
	tk := Go(context.Background(), "send", func(context.Context) error { return want })

	if err := tk.Wait(); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if tk.Running() {
		t.Error("expected task to be finished")
	}
}

func TestGo_Cancel(t *testing.T) {
	started := make(chan struct{})
	tk := Go(context.Background(), "test", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	if !tk.Running() {
		t.Error("expected task to be running")
	}
	tk.Cancel()

	select {
	case <-tk.Done():
	case <-time.After(time.Second):
		t.Fatal("expected task to stop after Cancel")
	}
	if err := tk.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGo_Panic(t *testing.T) {
	tk := Go(context.Background(), "listen", func(context.Context) error { panic("radio gone") })

	err := tk.Wait()
	if err == nil || !strings.Contains(err.Error(), "radio gone") {
		t.Errorf("expected panic to surface as error, got %v", err)
	}
}

func TestGo_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := Go(ctx, "child", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	cancel()

	select {
	case <-tk.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to stop the task")
	}
}
