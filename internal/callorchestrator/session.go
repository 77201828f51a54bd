// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package callorchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/ari"
	"github.com/voxrelay/voxrelay/internal/commons"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/mediartp"
	"github.com/voxrelay/voxrelay/internal/promptcache"
	"github.com/voxrelay/voxrelay/internal/speech"
)

// inboxSize bounds how far the three event sources can run ahead of
// the session loop before push starts dropping messages —
// mirroring the teacher's bounded, non-blocking channel idiom.
const inboxSize = 64

// mediaTopology is the set of call-control and media resources built
// once per CallSession for audio snooping: a user-facing mixing
// bridge, a snoop channel off the primary channel, an external media
// channel whose endpoint is this process's bound RTP port, a second
// bridge mixing the two internal channels together, and the RTP
// receiver itself. Torn down by teardownMediaTopology: the RTP receiver
// first, then the bridges and channels in reverse creation order.
type mediaTopology struct {
	userBridgeID       string
	snoopChannelID     string
	externalMediaID    string
	snoopBridgeID      string
	rtpReceiver        *mediartp.Receiver
	rtpEndpoint        mediartp.Endpoint
}

// promptQueueEntry is one TTS chunk enqueued for playback: the
// artifact backing it plus the playback id once play() has been
// issued.
type promptQueueEntry struct {
	artifact   *promptcache.Artifact
	playbackID string
}

// CallSession is the per-call state machine. It is created on
// channel-enter and destroyed on channel-exit or fatal error. All
// fields are owned exclusively by the session's own goroutine — no
// other goroutine reads or writes them directly; they communicate
// exclusively by pushing inboxEvent values.
type CallSession struct {
	logger    commons.Logger
	ari       *ari.Client
	channelID string
	callerID  string
	uniqueID  string
	cfg       *config.EffectiveConfig

	inbox chan inboxEvent

	state   State
	outcome RecognitionMode

	topology *mediaTopology

	recognizer *speech.Recognizer

	promptQueue      []promptQueueEntry
	promptStopped    bool
	vadArmed         bool
	voiceStartOneShot bool

	sessionTimer *time.Timer
	noInputTimer *time.Timer
	keypadTimer  *time.Timer

	sttPCM          []byte
	ttsPCM          []byte
	keypadDigits    string
	finalTranscript string

	startedAt time.Time

	closeOnce sync.Once
	done      chan struct{}

	deps sessionDeps
}

// sessionDeps are the orchestrator-level collaborators a session
// needs but does not own.
type sessionDeps struct {
	cache            *promptcache.Cache
	store            interactionStore
	recordingsWriter recordingsWriter
	externalMediaIP  string
	portLo, portHi   int
}

// interactionStore and recordingsWriter are narrowed to the methods
// callorchestrator actually calls, so this package doesn't import
// store/recordings types directly into its public surface.
type interactionStore interface {
	SaveOutcome(ctx context.Context, rec InteractionOutcome) error
}

type recordingsWriter interface {
	WriteTTS(uniqueID, callerID string, pcm []byte, at time.Time) (string, error)
	WriteSTT(uniqueID, callerID string, pcm []byte, at time.Time) (string, error)
}

// InteractionOutcome is the data the orchestrator hands to the
// interaction store on Finalizing.
type InteractionOutcome struct {
	UniqueID             string
	CallerID             string
	TextToSynthesize     string
	SynthesizedAudioPath string
	STTAudioPath         string
	RecognitionMode      RecognitionMode
	Transcript           string
	KeypadDigits         string
}

func newCallSession(logger commons.Logger, ariClient *ari.Client, channelID, callerID, uniqueID string, cfg *config.EffectiveConfig, deps sessionDeps) *CallSession {
	return &CallSession{
		logger:    logger.With("component", "callorchestrator.CallSession", "channel_id", channelID, "unique_id", uniqueID),
		ari:       ariClient,
		channelID: channelID,
		callerID:  callerID,
		uniqueID:  uniqueID,
		cfg:       cfg,
		inbox:     make(chan inboxEvent, inboxSize),
		state:     StateAnswering,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		deps:      deps,
	}
}

// push enqueues ev onto the session's single inbox, never blocking —
// a full inbox means the session loop has stalled, which should never
// happen on the happy path, but must never deadlock an event source.
func (s *CallSession) push(ev inboxEvent) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	default:
		s.logger.Warnw("session inbox full, dropping event")
	}
}

// run is the session's single logical task: it processes exactly one
// inboxEvent at a time until cleanup closes done.
func (s *CallSession) run(ctx context.Context) {
	s.handleEnter(ctx)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.inbox:
			s.dispatch(ctx, ev)
			if s.state == StateTerminated {
				return
			}
		}
	}
}
