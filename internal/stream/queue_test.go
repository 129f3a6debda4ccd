package stream

import "testing"

func TestQueue_FIFO(t *testing.T) {
	q := newOutboundQueue()
	q.push([]byte("a"))
	q.push([]byte("b"))
	q.push([]byte("c"))

	for _, want := range []string{"a", "b", "c"} {
		frame, ok := q.pop()
		if !ok {
			t.Fatalf("pop returned empty, want %q", want)
		}
		if string(frame) != want {
			t.Errorf("pop = %q, want %q", frame, want)
		}
	}

	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue should report empty")
	}
}

func TestQueue_PushFrontPreservesOrder(t *testing.T) {
	q := newOutboundQueue()
	q.push([]byte("b"))
	q.push([]byte("c"))
	q.pushFront([]byte("a"))

	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}
	for _, want := range []string{"a", "b", "c"} {
		frame, _ := q.pop()
		if string(frame) != want {
			t.Errorf("pop = %q, want %q", frame, want)
		}
	}
}
