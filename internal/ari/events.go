// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package ari

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// Event is the tagged-variant event set the switch emits. Consumers
// exhaustively switch on the concrete type rather than inspecting a
// polymorphic envelope.
type Event interface{ isEvent() }

// ChannelEntered fires when a channel enters the application,
// carrying any out-of-band args set at creation time (e.g. the
// "internal" marker for snoop/external-media channels this system
// created itself).
type ChannelEntered struct {
	ChannelID string
	Args      []string
}

// ChannelExited fires when a channel leaves the application.
type ChannelExited struct {
	ChannelID string
}

// VoiceStart fires when the switch's talk-detect feature observes
// speech begin.
type VoiceStart struct {
	ChannelID string
}

// VoiceEnd fires when talk-detect observes speech end.
type VoiceEnd struct {
	ChannelID string
	DurationMs int
}

// KeypadDigit fires once per DTMF digit.
type KeypadDigit struct {
	ChannelID string
	Digit     string
}

// PlaybackFinished fires when a playback completes normally.
type PlaybackFinished struct {
	PlaybackID string
}

// PlaybackFailed fires when a playback could not be started or was
// aborted by a stop request (the spec treats explicit stop and
// failure identically for barge-in purposes).
type PlaybackFailed struct {
	PlaybackID string
}

func (ChannelEntered) isEvent()   {}
func (ChannelExited) isEvent()    {}
func (VoiceStart) isEvent()       {}
func (VoiceEnd) isEvent()         {}
func (KeypadDigit) isEvent()      {}
func (PlaybackFinished) isEvent() {}
func (PlaybackFailed) isEvent()   {}

// wireEvent is the raw envelope the switch's WebSocket feed sends.
// Field presence varies by Type; absent fields decode to zero values.
type wireEvent struct {
	Type      string `json:"type"`
	Channel   struct {
		ID   string   `json:"id"`
		Args []string `json:"args"`
	} `json:"channel"`
	Playback struct {
		ID string `json:"id"`
	} `json:"playback"`
	Digit      string `json:"digit"`
	DurationMs int    `json:"duration_ms"`
}

func decodeWireEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("ari: decode event: %w", err)
	}

	switch strings.ToLower(w.Type) {
	case "channelentered", "stasisstart":
		return ChannelEntered{ChannelID: w.Channel.ID, Args: w.Channel.Args}, nil
	case "channelexited", "stasisend":
		return ChannelExited{ChannelID: w.Channel.ID}, nil
	case "voicestart", "channeltalkingstarted":
		return VoiceStart{ChannelID: w.Channel.ID}, nil
	case "voiceend", "channeltalkingfinished":
		return VoiceEnd{ChannelID: w.Channel.ID, DurationMs: w.DurationMs}, nil
	case "keypaddigit", "channeldtmfreceived":
		return KeypadDigit{ChannelID: w.Channel.ID, Digit: w.Digit}, nil
	case "playbackfinished":
		return PlaybackFinished{PlaybackID: w.Playback.ID}, nil
	case "playbackfailed":
		return PlaybackFailed{PlaybackID: w.Playback.ID}, nil
	default:
		return nil, fmt.Errorf("ari: unknown event type %q", w.Type)
	}
}

// EventStream owns the WebSocket connection to the switch's event
// channel and decodes it into the typed Event set.
type EventStream struct {
	logger commons.Logger
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

// DialEvents opens the switch's event WebSocket for the configured
// application name.
func DialEvents(logger commons.Logger, cfg Config) (*EventStream, error) {
	wsURL, err := toWebSocketURL(cfg.URL, cfg.AppName)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ari: dial event stream: %w", err)
	}

	s := &EventStream{
		logger: logger.With("component", "ari.EventStream"),
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func toWebSocketURL(baseURL, appName string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("ari: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	q := u.Query()
	q.Set("app", appName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Events returns the decoded event channel. It is closed when the
// connection drops.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

func (s *EventStream) readLoop() {
	defer close(s.events)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Warnw("event stream read failed, closing", "error", err)
			return
		}
		event, err := decodeWireEvent(raw)
		if err != nil {
			s.logger.Debugw("discarding unrecognized event", "error", err)
			continue
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// Close idempotently tears down the WebSocket connection.
func (s *EventStream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
