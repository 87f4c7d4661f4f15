package bufpool

import "testing"

func TestAcquirePicksSmallestSufficientClass(t *testing.T) {
	p := New()
	cases := []struct {
		min  int
		want int
	}{
		{1, Small},
		{Small, Small},
		{Small + 1, Medium},
		{Medium, Medium},
		{Medium + 1, Large},
		{Large, Large},
	}
	for _, c := range cases {
		buf := p.Acquire(c.min)
		if got := cap(buf.B); got != c.want {
			t.Fatalf("Acquire(%d): got cap %d, want %d", c.min, got, c.want)
		}
	}
}

func TestAcquireAboveLargeAllocatesDirectly(t *testing.T) {
	p := New()
	buf := p.Acquire(Large + 1)
	if cap(buf.B) != Large+1 {
		t.Fatalf("got cap %d", cap(buf.B))
	}
	buf.Release()
	if cap(p.Acquire(Large+1).B) != Large+1 {
		t.Fatal("expected a fresh allocation, not a pooled reuse")
	}
}

func TestReleaseAndReacquireReusesBuffer(t *testing.T) {
	p := New()
	buf := p.Acquire(10)
	buf.B = append(buf.B, 1, 2, 3)
	buf.Release()

	reused := p.Acquire(10)
	if len(reused.B) != 0 {
		t.Fatalf("expected zero-length reused buffer, got len %d", len(reused.B))
	}
	if cap(reused.B) != Small {
		t.Fatalf("expected the same underlying class buffer back, cap %d", cap(reused.B))
	}
}

func TestReleaseDiscardsOvergrownBuffer(t *testing.T) {
	p := New()
	buf := p.Acquire(10)
	grown := make([]byte, 0, 2*Small+1)
	buf.B = grown
	buf.Release()

	// The class queue should still be empty since the oversized buffer was
	// discarded rather than requeued.
	fresh := p.small.acquire()
	if cap(fresh) != Small {
		t.Fatalf("expected a fresh Small allocation, got cap %d", cap(fresh))
	}
}

func TestReleaseRespectsQueueCap(t *testing.T) {
	p := New()
	p.small.cap = 1
	a := p.Acquire(10)
	b := p.Acquire(10)
	a.Release()
	b.Release() // dropped: queue already holds one buffer

	if got := len(p.small.bufs); got != 1 {
		t.Fatalf("got %d queued buffers, want 1", got)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := New()
	p.small.cap = 5
	buf := p.Acquire(10)
	buf.Release()
	buf.Release()
	if got := len(p.small.bufs); got != 1 {
		t.Fatalf("got %d queued buffers after double release, want 1", got)
	}
}
