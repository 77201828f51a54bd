// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package promptcache is a scoped temporary file store for synthesized
// prompt chunks. Each call to Put wraps a PCM chunk into a WAV file on
// disk and returns an opaque reference the switch can dereference for
// playback.
package promptcache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/voxrelay/voxrelay/internal/commons"
	"github.com/voxrelay/voxrelay/internal/wavfile"
)

const dirName = "ari-tts-cache"

// Artifact is a single cached prompt chunk: its on-disk path and the
// opaque media reference handed to the switch.
type Artifact struct {
	Path     string
	MediaRef string
}

// Cache is the process-wide scoped temp directory for TTS chunks.
type Cache struct {
	logger  commons.Logger
	baseDir string
}

// New creates (once, at startup) the process-wide temp directory used for
// prompt chunks: OS temp dir / ari-tts-cache.
func New(logger commons.Logger) (*Cache, error) {
	baseDir := filepath.Join(os.TempDir(), dirName)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("promptcache: create cache dir: %w", err)
	}
	return &Cache{logger: logger, baseDir: baseDir}, nil
}

// Put wraps pcmChunk into a WAV using format and writes it to a unique
// path under the cache directory. The returned MediaRef is the
// extension-less form of the same path, which the switch accepts as a
// playback URI (e.g. "/tmp/ari-tts-cache/<uuid>").
func (c *Cache) Put(pcmChunk []byte, format wavfile.Format) (*Artifact, error) {
	name := uuid.New().String()
	path := filepath.Join(c.baseDir, name+".wav")

	wav := wavfile.Wrap(pcmChunk, format)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return nil, fmt.Errorf("promptcache: write %q: %w", path, err)
	}

	mediaRef := path[:len(path)-len(filepath.Ext(path))]
	return &Artifact{Path: path, MediaRef: mediaRef}, nil
}

// Remove deletes the artifact at path. A missing file is not an error —
// it may have already been cleaned up by a prior Remove or process
// restart.
func (c *Cache) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("promptcache: remove %q: %w", path, err)
	}
	return nil
}
