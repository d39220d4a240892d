package main

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestUploads_Cancel(t *testing.T) {
	u := newUploads()
	result := make(chan error, 1)
	running := make(chan struct{})
	ok := u.start(context.Background(), "ab12-big.bin", func(ctx context.Context) {
		close(running)
		<-ctx.Done()
		result <- ctx.Err()
	})
	if !ok {
		t.Fatal("start() = false, want true")
	}
	<-running

	if got := u.active(); !slices.Equal(got, []string{"ab12-big.bin"}) {
		t.Errorf("active() = %v", got)
	}
	if u.start(context.Background(), "ab12-big.bin", func(context.Context) {}) {
		t.Error("start() accepted a file ID already in flight")
	}
	if !u.cancel("ab12-big.bin") {
		t.Fatal("cancel() = false, want true")
	}

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("upload context error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("upload was not cancelled")
	}
	u.wait()

	if got := u.active(); len(got) != 0 {
		t.Errorf("active() after finish = %v, want empty", got)
	}
	if u.cancel("ab12-big.bin") {
		t.Error("cancel() of a finished upload = true, want false")
	}
}

func TestUploads_CancelLeavesOthers(t *testing.T) {
	u := newUploads()
	ctx, stop := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	for _, id := range []string{"a.txt", "b.txt"} {
		u.start(ctx, id, func(ctx context.Context) {
			<-ctx.Done()
			errs <- ctx.Err()
		})
	}

	u.cancel("a.txt")
	<-errs
	deadline := time.Now().Add(time.Second)
	for !slices.Equal(u.active(), []string{"b.txt"}) {
		if time.Now().After(deadline) {
			t.Fatalf("active() = %v, want [b.txt]", u.active())
		}
		time.Sleep(time.Millisecond)
	}

	stop()
	<-errs
	u.wait()
	if got := u.active(); len(got) != 0 {
		t.Errorf("active() after parent cancel = %v, want empty", got)
	}
}
