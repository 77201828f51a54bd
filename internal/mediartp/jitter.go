// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package mediartp

// maxMisses is the number of consecutive missing-sequence ticks tolerated
// before the jitter buffer gives up waiting and skips forward to the next
// available packet (spec.md §4.3 skip policy).
const maxMisses = 5

// jitterBuffer reorders arriving RTP payloads by 16-bit sequence number
// and releases them in order, one per playback tick. Not safe for
// concurrent use — the Receiver serializes access with its mutex: its
// read goroutine calls push and its single playback-tick goroutine calls
// tick (spec.md §3 single-playback-driver invariant).
type jitterBuffer struct {
	frames    map[uint16][]byte
	lastPlay  uint16
	primed    bool
	missCount int
}

func newJitterBuffer() *jitterBuffer {
	return &jitterBuffer{frames: make(map[uint16][]byte)}
}

// push inserts a received payload keyed by its sequence number.
func (j *jitterBuffer) push(seq uint16, payload []byte) {
	j.frames[seq] = payload
}

// tick advances playback by one 20ms slot. It returns the payload to
// deliver (nil if nothing is ready this tick) and whether a skip
// occurred (for the single warning-log-per-skip requirement). The first
// tick that finds frames starts playback just below the smallest
// buffered sequence number.
func (j *jitterBuffer) tick() (payload []byte, skipped bool) {
	if len(j.frames) == 0 {
		return nil, false
	}
	if !j.primed {
		first := true
		for seq := range j.frames {
			if first || seq < j.lastPlay+1 {
				j.lastPlay = seq - 1
				first = false
			}
		}
		j.primed = true
	}

	next := j.lastPlay + 1
	if p, ok := j.frames[next]; ok {
		delete(j.frames, next)
		j.lastPlay = next
		j.missCount = 0
		return p, false
	}

	j.missCount++
	if j.missCount <= maxMisses {
		return nil, false
	}

	// Miss threshold exceeded: pick the key with the smallest forward
	// modular distance from next (sequence space is circular) and jump
	// last_played just before it. The jumped-to frame itself is delivered
	// on the following tick via the normal present-at-next path.
	nearest, found := nearestForward(next, j.frames)
	if !found {
		return nil, false
	}
	j.lastPlay = nearest - 1
	j.missCount = 0
	return nil, true
}

// nearestForward returns the key in frames with the smallest forward
// (non-negative, modular 16-bit) distance from next.
func nearestForward(next uint16, frames map[uint16][]byte) (uint16, bool) {
	var best uint16
	bestDist := -1
	for seq := range frames {
		dist := int(seq - next)
		if dist < 0 {
			dist += 1 << 16
		}
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = seq
		}
	}
	return best, bestDist != -1
}
