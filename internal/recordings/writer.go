// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package recordings writes the final per-call TTS and STT WAV files
// the orchestrator persists on Finalizing: the concatenated synthesis
// PCM and the concatenated raw microphone PCM, each wrapped with a
// canonical WAV header.
package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voxrelay/voxrelay/internal/commons"
	"github.com/voxrelay/voxrelay/internal/wavfile"
)

const (
	ttsDir = "recordings/tts"
	sttDir = "recordings/stt"
)

var wavFormat = wavfile.Format{Channels: 1, SampleRate: 8000, BitDepth: 16}

// Writer persists final call recordings under a root directory
// ("." by default — callers running from the project root get
// ./recordings/... as spec.md names it).
type Writer struct {
	logger commons.Logger
	root   string
}

// New constructs a Writer rooted at root (pass "." for the process
// working directory).
func New(logger commons.Logger, root string) *Writer {
	return &Writer{logger: logger.With("component", "recordings.Writer"), root: root}
}

// WriteTTS persists the concatenated synthesis PCM for one call and
// returns the path written.
func (w *Writer) WriteTTS(uniqueID, callerID string, pcm []byte, at time.Time) (string, error) {
	return w.write(ttsDir, "tts", uniqueID, callerID, pcm, at)
}

// WriteSTT persists the concatenated, codec-converted microphone PCM
// for one call and returns the path written. Per policy, callers
// should skip this for keypad-only outcomes (no voice audio was ever
// captured).
func (w *Writer) WriteSTT(uniqueID, callerID string, pcm []byte, at time.Time) (string, error) {
	return w.write(sttDir, "stt", uniqueID, callerID, pcm, at)
}

func (w *Writer) write(dir, suffix, uniqueID, callerID string, pcm []byte, at time.Time) (string, error) {
	fullDir := filepath.Join(w.root, dir)
	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return "", fmt.Errorf("recordings: create %s dir: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.wav", uniqueID, callerID, at.UTC().Format(time.RFC3339), suffix)
	path := filepath.Join(fullDir, name)

	wav := wavfile.Wrap(pcm, wavFormat)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("recordings: write %q: %w", path, err)
	}

	w.logger.Infow("wrote final recording", "path", path, "bytes", len(pcm))
	return path, nil
}
