package channel

import "testing"

func TestBuffered_SendReceive(t *testing.T) {
	b := NewBuffered[int](2)

	b.Send(1)
	b.Send(2)

	if got := b.Len(); got != 2 {
		t.Fatalf("expected Len 2, got %d", got)
	}
	if got := <-b.Receive(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := <-b.Receive(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestBuffered_TrySendFull(t *testing.T) {
	b := NewBuffered[string](1)

	if !b.TrySend("a") {
		t.Fatal("expected TrySend to succeed on empty buffer")
	}
	if b.TrySend("b") {
		t.Fatal("expected TrySend to fail on full buffer")
	}
	if got := <-b.Receive(); got != "a" {
		t.Fatalf("expected 'a', got %q", got)
	}
}

func TestBuffered_Close(t *testing.T) {
	b := NewBuffered[int](1)
	b.Send(7)
	b.Close()

	if got := <-b.Receive(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if _, ok := <-b.Receive(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestUnbuffered_TrySendNoReceiver(t *testing.T) {
	u := NewUnbuffered[int]()

	if u.TrySend(1) {
		t.Fatal("expected TrySend to fail with no receiver")
	}
	if got := u.Len(); got != 0 {
		t.Fatalf("expected Len 0, got %d", got)
	}
}

func TestUnbuffered_SendReceive(t *testing.T) {
	u := NewUnbuffered[int]()

	done := make(chan int)
	go func() {
		done <- <-u.Receive()
	}()
	u.Send(42)

	if got := <-done; got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
