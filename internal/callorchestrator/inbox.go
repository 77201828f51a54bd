// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package callorchestrator

import (
	"github.com/voxrelay/voxrelay/internal/ari"
	"github.com/voxrelay/voxrelay/internal/speech"
)

// inboxEvent is the tagged-variant union fed into a CallSession's
// single inbox. All three independent sources — the switch's
// call-control events, the RTP receiver's delivered frames, and the
// recognizer's callbacks — are wrapped into this one type so the
// session loop can select on a single channel and process messages
// strictly one at a time.
type inboxEvent interface{ isInboxEvent() }

// controlEvent wraps one call-control event from the switch.
type controlEvent struct{ event ari.Event }

// mediaFrame wraps one delivered RTP payload (already jitter-ordered,
// still in raw codec bytes) from this session's RtpReceiver.
type mediaFrame struct{ payload []byte }

// recognizerEvent wraps one callback from the active recognizer
// session, if any.
type recognizerEvent struct{ event speech.RecognizerEvent }

// timerEvent wraps the firing of one of the session's timers.
type timerEvent struct{ kind timerKind }

type timerKind int

const (
	timerSession timerKind = iota
	timerNoInput
	timerKeypadCompletion
	timerVADArmDelay
)

func (controlEvent) isInboxEvent()     {}
func (mediaFrame) isInboxEvent()       {}
func (recognizerEvent) isInboxEvent()  {}
func (timerEvent) isInboxEvent()       {}
