// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package callorchestrator

import (
	"context"
	"fmt"

	"github.com/voxrelay/voxrelay/internal/ari"
	"github.com/voxrelay/voxrelay/internal/mediartp"
)

// internalArgsMarker tags snoop/external-media channels this process
// creates itself, so the top-level dispatch loop can recognize and
// ignore their own ChannelEntered/ChannelExited events rather than
// treating them as new calls.
const internalArgsMarker = "internal"

// buildTopology assembles the media path for one call: a user-facing
// mixing bridge (so prompt playback and the original channel share
// audio), a snoop channel reading the primary channel's inbound leg,
// an external media channel whose target is this process's bound RTP
// port, and a second bridge mixing the snoop and external-media
// channels together so the switch forwards snooped audio out over
// RTP. Torn down by teardownMediaTopology.
func (s *CallSession) buildTopology(ctx context.Context) (*mediaTopology, error) {
	receiver, endpoint, err := mediartp.Listen(s.logger, s.deps.externalMediaIP, s.deps.portLo, s.deps.portHi, s.cfg.RTPPreBufferSize)
	if err != nil {
		return nil, fmt.Errorf("callorchestrator: bind rtp receiver: %w", err)
	}

	userBridgeID, err := s.ari.CreateBridge(ctx)
	if err != nil {
		receiver.Close()
		return nil, fmt.Errorf("callorchestrator: create user bridge: %w", err)
	}
	if err := s.ari.AddChannelToBridge(ctx, userBridgeID, s.channelID); err != nil {
		receiver.Close()
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: add channel to user bridge: %w", err)
	}

	snoopChannelID, err := s.ari.CreateSnoopChannel(ctx, s.channelID, internalArgsMarker)
	if err != nil {
		receiver.Close()
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: create snoop channel: %w", err)
	}

	externalMediaID, err := s.ari.CreateExternalMediaChannel(ctx, ari.ExternalMediaSpec{
		Host:   endpoint.IP,
		Port:   endpoint.Port,
		Format: s.cfg.ExternalMediaAudioFormat,
		Args:   internalArgsMarker,
	})
	if err != nil {
		receiver.Close()
		s.ari.Hangup(ctx, snoopChannelID)
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: create external media channel: %w", err)
	}

	snoopBridgeID, err := s.ari.CreateBridge(ctx)
	if err != nil {
		receiver.Close()
		s.ari.Hangup(ctx, externalMediaID)
		s.ari.Hangup(ctx, snoopChannelID)
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: create snoop bridge: %w", err)
	}
	if err := s.ari.AddChannelToBridge(ctx, snoopBridgeID, snoopChannelID); err != nil {
		receiver.Close()
		s.ari.DestroyBridge(ctx, snoopBridgeID)
		s.ari.Hangup(ctx, externalMediaID)
		s.ari.Hangup(ctx, snoopChannelID)
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: add snoop channel to snoop bridge: %w", err)
	}
	if err := s.ari.AddChannelToBridge(ctx, snoopBridgeID, externalMediaID); err != nil {
		receiver.Close()
		s.ari.DestroyBridge(ctx, snoopBridgeID)
		s.ari.Hangup(ctx, externalMediaID)
		s.ari.Hangup(ctx, snoopChannelID)
		s.ari.DestroyBridge(ctx, userBridgeID)
		return nil, fmt.Errorf("callorchestrator: add external media channel to snoop bridge: %w", err)
	}

	return &mediaTopology{
		userBridgeID:    userBridgeID,
		snoopChannelID:  snoopChannelID,
		externalMediaID: externalMediaID,
		snoopBridgeID:   snoopBridgeID,
		rtpReceiver:     receiver,
		rtpEndpoint:     endpoint,
	}, nil
}

// teardownMediaTopology best-effort releases every resource in t: the
// RTP receiver first, then the bridges and channels in the reverse of
// the order buildTopology created them. Every step is independent of
// the others succeeding.
func (s *CallSession) teardownMediaTopology(ctx context.Context, t *mediaTopology) {
	if t == nil {
		return
	}
	if t.rtpReceiver != nil {
		if err := t.rtpReceiver.Close(); err != nil {
			s.logger.Warnw("close rtp receiver failed", "error", err)
		}
	}
	if t.snoopBridgeID != "" {
		if err := s.ari.DestroyBridge(ctx, t.snoopBridgeID); err != nil {
			s.logger.Warnw("destroy snoop bridge failed", "error", err)
		}
	}
	if t.externalMediaID != "" {
		if err := s.ari.Hangup(ctx, t.externalMediaID); err != nil {
			s.logger.Warnw("hangup external media channel failed", "error", err)
		}
	}
	if t.snoopChannelID != "" {
		if err := s.ari.Hangup(ctx, t.snoopChannelID); err != nil {
			s.logger.Warnw("hangup snoop channel failed", "error", err)
		}
	}
	if t.userBridgeID != "" {
		if err := s.ari.DestroyBridge(ctx, t.userBridgeID); err != nil {
			s.logger.Warnw("destroy user bridge failed", "error", err)
		}
	}
}

// cleanup is the single idempotent exit path for a CallSession: every
// handler that decides the call is over routes through here exactly
// once. It stops the session, no-input and keypad timers (a pending
// VAD-arm delay timer is not stopped; its event is dropped once done
// is closed), releases the recognizer and media topology, and marks
// the session Terminated so run's loop exits.
func (s *CallSession) cleanup(ctx context.Context) {
	s.closeOnce.Do(func() {
		if s.sessionTimer != nil {
			s.sessionTimer.Stop()
		}
		if s.noInputTimer != nil {
			s.noInputTimer.Stop()
		}
		if s.keypadTimer != nil {
			s.keypadTimer.Stop()
		}

		if s.recognizer != nil {
			s.recognizer.Stop()
		}

		for _, entry := range s.promptQueue {
			if entry.artifact != nil {
				s.deps.cache.Remove(entry.artifact.Path)
			}
		}

		s.teardownMediaTopology(ctx, s.topology)

		s.state = StateTerminated
		close(s.done)
	})
}
