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
	"github.com/voxrelay/voxrelay/internal/promptcache"
	"github.com/voxrelay/voxrelay/internal/store"
	"github.com/voxrelay/voxrelay/internal/utils"
)

// storeAdapter bridges the process-wide store.InteractionStore to the
// per-session interactionStore interface, converting the session's
// InteractionOutcome into the persistence package's own record shape.
type storeAdapter struct {
	store store.InteractionStore
}

func (a storeAdapter) SaveOutcome(ctx context.Context, outcome InteractionOutcome) error {
	return a.store.Save(ctx, &store.InteractionRecord{
		UniqueID:             outcome.UniqueID,
		CallerID:             outcome.CallerID,
		TextToSynthesize:     outcome.TextToSynthesize,
		SynthesizedAudioPath: outcome.SynthesizedAudioPath,
		STTAudioPath:         outcome.STTAudioPath,
		RecognitionMode:      store.RecognitionMode(outcome.RecognitionMode),
		Transcript:           outcome.Transcript,
		KeypadDigits:         outcome.KeypadDigits,
		CreatedAt:            time.Now(),
	})
}

// OrchestratorDeps bundles the collaborators New needs beyond the
// per-call config defaults.
type OrchestratorDeps struct {
	Cache            *promptcache.Cache
	InteractionStore store.InteractionStore
	RecordingsWriter recordingsWriter
	ExternalMediaIP  string
	PortLo, PortHi   int
}

// Orchestrator owns the session registry keyed by channel id, and is
// the sole consumer of an ari.EventStream,
// fanning each event out to the session it belongs to (or handling
// ChannelEntered/ChannelExited itself to create and retire sessions).
type Orchestrator struct {
	logger commons.Logger
	ari    *ari.Client
	events *ari.EventStream
	cfg    *config.AppConfig

	cache            *promptcache.Cache
	interactionStore interactionStore
	recordingsWriter recordingsWriter
	externalMediaIP  string
	portLo, portHi   int

	mu                sync.Mutex
	sessionsByChannel map[string]*CallSession
}

// New constructs an Orchestrator bound to one ARI connection and
// event stream.
func New(logger commons.Logger, ariClient *ari.Client, events *ari.EventStream, cfg *config.AppConfig, deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		logger:            logger.With("component", "callorchestrator.Orchestrator"),
		ari:               ariClient,
		events:            events,
		cfg:               cfg,
		cache:             deps.Cache,
		interactionStore:  storeAdapter{store: deps.InteractionStore},
		recordingsWriter:  deps.RecordingsWriter,
		externalMediaIP:   deps.ExternalMediaIP,
		portLo:            deps.PortLo,
		portHi:            deps.PortHi,
		sessionsByChannel: make(map[string]*CallSession),
	}
}

// Run consumes the event stream until it closes (connection drop or
// Close), routing each event to the owning session or handling
// channel lifecycle itself. It returns when the event stream channel
// closes.
func (o *Orchestrator) Run(ctx context.Context) {
	for event := range o.events.Events() {
		switch e := event.(type) {
		case ari.ChannelEntered:
			o.onChannelEntered(ctx, e)
		case ari.ChannelExited:
			o.onChannelExited(e)
		case ari.PlaybackFinished:
			o.routeByPlayback(e, e.PlaybackID)
		case ari.PlaybackFailed:
			o.routeByPlayback(e, e.PlaybackID)
		default:
			o.routeByChannel(event)
		}
	}
	o.logger.Warnw("event stream closed, orchestrator stopping")
}

// isInternal reports whether args carries the marker this process
// stamps on its own snoop/external-media channels.
func isInternal(args []string) bool {
	for _, a := range args {
		if a == internalArgsMarker {
			return true
		}
	}
	return false
}

func (o *Orchestrator) onChannelEntered(ctx context.Context, e ari.ChannelEntered) {
	if isInternal(e.Args) {
		o.logger.Debugw("ignoring internal channel enter", "channel_id", e.ChannelID)
		return
	}

	o.mu.Lock()
	if _, exists := o.sessionsByChannel[e.ChannelID]; exists {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	eff := config.NewEffectiveConfig(o.cfg)
	session := newCallSession(o.logger, o.ari, e.ChannelID, "", e.ChannelID, eff, sessionDeps{
		cache:            o.cache,
		store:            o.interactionStore,
		recordingsWriter: o.recordingsWriter,
		externalMediaIP:  o.externalMediaIP,
		portLo:           o.portLo,
		portHi:           o.portHi,
	})

	o.mu.Lock()
	o.sessionsByChannel[e.ChannelID] = session
	o.mu.Unlock()

	utils.Go(ctx, o.logger, func() {
		session.run(ctx)
		o.retireSession(session)
	})
}

func (o *Orchestrator) onChannelExited(e ari.ChannelExited) {
	o.mu.Lock()
	session, ok := o.sessionsByChannel[e.ChannelID]
	o.mu.Unlock()
	if !ok {
		return
	}
	session.push(controlEvent{event: e})
}

func (o *Orchestrator) routeByChannel(event ari.Event) {
	channelID, ok := channelIDOf(event)
	if !ok {
		return
	}
	o.mu.Lock()
	session, found := o.sessionsByChannel[channelID]
	o.mu.Unlock()
	if !found {
		o.logger.Debugw("dropping event for unknown channel", "channel_id", channelID)
		return
	}
	session.push(controlEvent{event: event})
}

// routeByPlayback broadcasts a playback-scoped event to every live
// session. This deployment's wire shape (see ari/events.go) carries no
// channel id alongside the playback id, so each session's own
// playback-id filter in onPlaybackSignal picks out its events;
// playbackID is not used for routing.
func (o *Orchestrator) routeByPlayback(event ari.Event, playbackID string) {
	o.mu.Lock()
	sessions := make([]*CallSession, 0, len(o.sessionsByChannel))
	for _, s := range o.sessionsByChannel {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	for _, s := range sessions {
		s.push(controlEvent{event: event})
	}
}

func channelIDOf(event ari.Event) (string, bool) {
	switch e := event.(type) {
	case ari.VoiceStart:
		return e.ChannelID, true
	case ari.VoiceEnd:
		return e.ChannelID, true
	case ari.KeypadDigit:
		return e.ChannelID, true
	default:
		return "", false
	}
}

func (o *Orchestrator) retireSession(session *CallSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessionsByChannel, session.channelID)
}
