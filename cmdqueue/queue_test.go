package cmdqueue

import (
	"context"
	"testing"
	"time"
)

func TestPostWaitOrder(t *testing.T) {
	q := New(4)
	want := []Command{
		{IfID: "eth0", Kind: KindStart},
		{IfID: "eth0", Kind: KindT1Expired},
		{IfID: "eth1", Kind: KindStop},
	}
	for _, c := range want {
		if err := q.Post(c); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()
	for _, exp := range want {
		got, err := q.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != exp {
			t.Errorf("got %+v, want %+v", got, exp)
		}
	}
}

func TestQueueFull(t *testing.T) {
	q := New(2)
	if err := q.Post(Command{IfID: "a", Kind: KindStart}); err != nil {
		t.Fatal(err)
	}
	if err := q.Post(Command{IfID: "b", Kind: KindStart}); err != nil {
		t.Fatal(err)
	}
	if err := q.Post(Command{IfID: "c", Kind: KindStart}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestWaitBlocksUntilPost(t *testing.T) {
	q := New(1)
	done := make(chan Command, 1)
	go func() {
		cmd, err := q.Wait(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		done <- cmd
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Wait returned before Post")
	default:
	}

	if err := q.Post(Command{IfID: "eth0", Kind: KindStop}); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-done:
		if cmd.Kind != KindStop {
			t.Errorf("kind = %v, want STOP", cmd.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Wait(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
