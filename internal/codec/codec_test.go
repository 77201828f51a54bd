package codec

import "testing"

func TestUlawToPCM_Length(t *testing.T) {
	in := make([]byte, 160) // one 20ms frame at 8kHz
	for i := range in {
		in[i] = byte(i)
	}
	out := UlawToPCM(in)
	if len(out) != len(in)*2 {
		t.Fatalf("expected output length %d, got %d", len(in)*2, len(out))
	}
}

func TestUlawToPCM_SilenceDecodesNearZero(t *testing.T) {
	// 0xFF is µ-law silence.
	in := make([]byte, 20)
	for i := range in {
		in[i] = 0xFF
	}
	out := UlawToPCM(in)
	for i := 0; i < len(out); i += 2 {
		sample := int16(out[i]) | int16(out[i+1])<<8
		if sample < -8 || sample > 8 {
			t.Fatalf("expected near-zero silence sample, got %d at byte %d", sample, i)
		}
	}
}

func TestPCMToUlaw_Length(t *testing.T) {
	pcm := make([]byte, 320)
	out := PCMToUlaw(pcm)
	if len(out) != 160 {
		t.Fatalf("expected 160 ulaw bytes, got %d", len(out))
	}
}
