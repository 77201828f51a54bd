package ari

import "testing"

func TestDecodeWireEvent_ChannelEntered(t *testing.T) {
	raw := []byte(`{"type":"StasisStart","channel":{"id":"chan-1","args":["internal"]}}`)
	ev, err := decodeWireEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ce, ok := ev.(ChannelEntered)
	if !ok {
		t.Fatalf("got %T, want ChannelEntered", ev)
	}
	if ce.ChannelID != "chan-1" || len(ce.Args) != 1 || ce.Args[0] != "internal" {
		t.Fatalf("unexpected decode: %+v", ce)
	}
}

func TestDecodeWireEvent_KeypadDigit(t *testing.T) {
	raw := []byte(`{"type":"ChannelDtmfReceived","channel":{"id":"chan-1"},"digit":"5"}`)
	ev, err := decodeWireEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	kd, ok := ev.(KeypadDigit)
	if !ok || kd.Digit != "5" {
		t.Fatalf("got %+v", ev)
	}
}

func TestDecodeWireEvent_PlaybackFinished(t *testing.T) {
	raw := []byte(`{"type":"PlaybackFinished","playback":{"id":"pb-1"}}`)
	ev, err := decodeWireEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pf, ok := ev.(PlaybackFinished); !ok || pf.PlaybackID != "pb-1" {
		t.Fatalf("got %+v", ev)
	}
}

func TestDecodeWireEvent_UnknownTypeErrors(t *testing.T) {
	raw := []byte(`{"type":"SomethingElse"}`)
	if _, err := decodeWireEvent(raw); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestToWebSocketURL_RewritesSchemeAndAddsApp(t *testing.T) {
	got, err := toWebSocketURL("https://switch.example.com/ari", "voxrelay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "wss://switch.example.com/ari/events?app=voxrelay"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
