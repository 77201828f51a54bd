// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package utils holds small, dependency-free helpers shared across
// packages: a generic pointer helper and a panic-safe goroutine
// launcher the orchestrator uses to run each call session's goroutine.
package utils

import (
	"context"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// Ptr returns a pointer to a copy of v, useful for optional struct
// fields and API calls that want a *T from a literal.
func Ptr[T any](v T) *T {
	return &v
}

// Go launches fn on its own goroutine, recovering and logging any
// panic instead of crashing the process. ctx is accepted so call
// sites read uniformly with the rest of the codebase's
// context-threaded operations, though fn itself decides whether to
// honor cancellation.
func Go(ctx context.Context, logger commons.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
