package wavfile

import (
	"bytes"
	"testing"
)

func TestWrap_HeaderFields(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	format := Format{Channels: 1, SampleRate: 8000, BitDepth: 16}

	out := Wrap(pcm, format)
	if len(out) != headerSize+len(pcm) {
		t.Fatalf("expected length %d, got %d", headerSize+len(pcm), len(out))
	}
	if !bytes.Equal(out[headerSize:], pcm) {
		t.Fatalf("pcm payload not appended verbatim")
	}
}

func TestRoundTrip(t *testing.T) {
	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	format := Format{Channels: 1, SampleRate: 8000, BitDepth: 16}

	parsed, err := Parse(Wrap(pcm, format))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Format != format {
		t.Fatalf("expected format %+v, got %+v", format, parsed.Format)
	}
	if !bytes.Equal(parsed.Data, pcm) {
		t.Fatalf("expected data to round-trip")
	}
}

func TestParse_RejectsShortBuffer(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}
