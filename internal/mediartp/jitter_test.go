package mediartp

import "testing"

func TestJitterBuffer_InOrderDelivery(t *testing.T) {
	j := newJitterBuffer()
	j.push(100, []byte{1})
	j.push(101, []byte{2})
	j.push(102, []byte{3})

	var got []byte
	for i := 0; i < 3; i++ {
		p, skipped := j.tick()
		if skipped {
			t.Fatalf("unexpected skip on tick %d", i)
		}
		if p == nil {
			t.Fatalf("expected payload on tick %d", i)
		}
		got = append(got, p...)
	}
	if string(got) != "\x01\x02\x03" {
		t.Fatalf("got %v, want in-order 1,2,3", got)
	}
}

func TestJitterBuffer_ReordersOutOfOrderArrivals(t *testing.T) {
	j := newJitterBuffer()
	j.push(5, []byte{5})
	j.push(3, []byte{3})
	j.push(4, []byte{4})

	for seq := 3; seq <= 5; seq++ {
		p, skipped := j.tick()
		if skipped {
			t.Fatalf("unexpected skip")
		}
		if len(p) != 1 || int(p[0]) != seq {
			t.Fatalf("tick returned %v, want [%d]", p, seq)
		}
	}
}

func TestJitterBuffer_WaitsWithinMissTolerance(t *testing.T) {
	j := newJitterBuffer()
	j.push(0, []byte{0})

	p, skipped := j.tick()
	if skipped || len(p) != 1 {
		t.Fatalf("expected immediate delivery of seq 0")
	}

	// seq 1 never arrives; seq 2 does. Ticks up to maxMisses should wait,
	// not skip, and return no payload.
	j.push(2, []byte{2})
	for i := 0; i < maxMisses; i++ {
		p, skipped := j.tick()
		if skipped {
			t.Fatalf("skipped before miss tolerance exhausted (tick %d)", i)
		}
		if p != nil {
			t.Fatalf("unexpected payload on tick %d while waiting for seq 1", i)
		}
	}
}

func TestJitterBuffer_SkipsForwardAfterMissToleranceExhausted(t *testing.T) {
	j := newJitterBuffer()
	j.push(0, []byte{0})
	j.push(2, []byte{2})

	if p, _ := j.tick(); len(p) != 1 {
		t.Fatalf("expected delivery of seq 0")
	}

	// Exhaust miss tolerance waiting for seq 1.
	for i := 0; i < maxMisses; i++ {
		j.tick()
	}

	// The next tick exceeds tolerance and skips forward to seq 2's
	// position without delivering a payload itself.
	p, skipped := j.tick()
	if !skipped {
		t.Fatalf("expected skip once miss tolerance exhausted")
	}
	if p != nil {
		t.Fatalf("skip tick should not itself deliver a payload, got %v", p)
	}

	// The following tick delivers seq 2 via the ordinary present-at-next path.
	p, skipped = j.tick()
	if skipped {
		t.Fatalf("unexpected second skip")
	}
	if len(p) != 1 || p[0] != 2 {
		t.Fatalf("expected seq 2 delivered after skip, got %v", p)
	}
}

func TestJitterBuffer_EmptyBufferDoesNotPanic(t *testing.T) {
	j := newJitterBuffer()
	p, skipped := j.tick()
	if p != nil || skipped {
		t.Fatalf("expected no-op tick on empty, unprimed buffer")
	}
}

func TestNearestForward_HandlesWraparound(t *testing.T) {
	frames := map[uint16][]byte{
		65534: {1},
		2:     {2},
	}
	// next is 65533: 65534 is 1 away, 2 is 5 away (wrapping).
	best, found := nearestForward(65533, frames)
	if !found || best != 65534 {
		t.Fatalf("got %d, want 65534", best)
	}
}
