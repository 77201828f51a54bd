package recordings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/internal/commons"
)

func testLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

func TestWriteTTS_WritesWavUnderExpectedPath(t *testing.T) {
	root := t.TempDir()
	w := New(testLogger(t), root)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	path, err := w.WriteTTS("call-1", "+15555550123", []byte{1, 2, 3, 4}, at)
	if err != nil {
		t.Fatalf("write tts: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if len(data) != 44+4 {
		t.Fatalf("expected 44-byte header + 4 bytes pcm, got %d", len(data))
	}
	if string(data[:4]) != "RIFF" {
		t.Fatalf("missing RIFF header")
	}
}

func TestWriteSTT_UsesSTTDirectoryAndSuffix(t *testing.T) {
	root := t.TempDir()
	w := New(testLogger(t), root)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	path, err := w.WriteSTT("call-2", "+1555", []byte{9, 9}, at)
	if err != nil {
		t.Fatalf("write stt: %v", err)
	}
	if filepath := path; len(filepath) == 0 {
		t.Fatalf("expected non-empty path")
	}
	want := filepath.Join(root, "recordings", "stt", "call-2_+1555_2026-01-02T03:04:05Z_stt.wav")
	if path != want {
		t.Fatalf("got path %q, want %q", path, want)
	}
}
