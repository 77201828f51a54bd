// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package mediartp owns the UDP/RTP side-channel for a single call: it
// binds a local port, decodes inbound packets, reorders them through a
// jitter buffer, and exposes two delivery modes — a pre-buffer ring used
// while the call is deciding whether to start listening, and a live
// subscriber used once it has (spec.md §4.3, RtpReceiver).
package mediartp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// tickInterval is the playback cadence of the jitter buffer, matching
// the 20ms G.711 frame size used throughout the media path.
const tickInterval = 20 * time.Millisecond

// readBufferSize is large enough for any G.711 RTP packet plus header.
const readBufferSize = 1500

type mode int

const (
	modePreBuffer mode = iota
	modeLive
	modeClosed
)

// Endpoint is the bound local UDP address the switch should be told to
// send media to.
type Endpoint struct {
	IP   string
	Port int
}

// Receiver owns one UDP socket and the reorder/delivery pipeline behind
// it for the lifetime of a single call's media session.
type Receiver struct {
	logger commons.Logger
	conn   *net.UDPConn

	mu        sync.Mutex
	mode      mode
	jitter    *jitterBuffer
	preBuf    *preBuffer
	sink      func(payload []byte)
	closeOnce sync.Once
	done      chan struct{}
}

// Listen binds a local UDP port in [startPort, endPort] on ip and
// starts the receive-and-tick pipeline. capacityFrames sizes the
// pre-buffer ring (spec.md §4.3 default is 2.5s of audio, i.e. 125
// 20ms frames at 8kHz mono ulaw).
func Listen(logger commons.Logger, ip string, startPort, endPort, capacityFrames int) (*Receiver, Endpoint, error) {
	conn, port, err := bindUDP(logger, ip, startPort, endPort)
	if err != nil {
		return nil, Endpoint{}, err
	}

	r := &Receiver{
		logger: logger.With("component", "mediartp.Receiver", "port", port),
		conn:   conn,
		mode:   modePreBuffer,
		jitter: newJitterBuffer(),
		preBuf: newPreBuffer(capacityFrames),
		done:   make(chan struct{}),
	}

	go r.readLoop()
	go r.tickLoop()

	return r, Endpoint{IP: ip, Port: port}, nil
}

// readLoop pulls datagrams off the socket, parses the RTP header, and
// hands the payload to the jitter buffer keyed by sequence number. It
// exits when the socket is closed.
func (r *Receiver) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket unblocks ReadFromUDP with an error; this is
			// the expected shutdown path, not a runtime fault.
			return
		}

		var packet rtp.Packet
		if err := packet.Unmarshal(buf[:n]); err != nil {
			r.logger.Warnw("discarding unparseable RTP packet", "error", err)
			continue
		}

		r.mu.Lock()
		if r.mode != modeClosed {
			r.jitter.push(packet.SequenceNumber, append([]byte(nil), packet.Payload...))
		}
		r.mu.Unlock()
	}
}

// tickLoop drains the jitter buffer at the fixed frame cadence and
// routes each delivered frame according to the current mode.
func (r *Receiver) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.mode == modeClosed {
				r.mu.Unlock()
				return
			}
			payload, skipped := r.jitter.tick()
			if skipped {
				r.logger.Warnw("jitter buffer skipped forward past missing sequence")
			}
			if payload != nil {
				switch r.mode {
				case modePreBuffer:
					r.preBuf.push(payload)
				case modeLive:
					if r.sink != nil {
						sink := r.sink
						r.mu.Unlock()
						sink(payload)
						continue
					}
				}
			}
			r.mu.Unlock()
		}
	}
}

// StopPreBufferingAndFlush ends pre-buffer accumulation and returns the
// concatenated audio collected so far, in arrival order. The receiver
// remains in pre-buffer mode (not yet delivering live) until
// SubscribeLive is called — spec.md draws these as two separate
// transitions so the caller can process the flushed audio before live
// frames start arriving.
func (r *Receiver) StopPreBufferingAndFlush() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preBuf.flush()
}

// SubscribeLive switches the receiver into live mode: every
// subsequently delivered frame is passed to sink instead of the
// pre-buffer ring. sink is invoked on the tick goroutine and must not
// block.
func (r *Receiver) SubscribeLive(sink func(payload []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
	r.mode = modeLive
}

// Unsubscribe returns the receiver to pre-buffer mode, e.g. when
// playback resumes and the caller wants to start re-accumulating
// pre-roll for the next listening window.
func (r *Receiver) Unsubscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = nil
	r.mode = modePreBuffer
}

// Close idempotently tears down the socket and both background
// goroutines. Safe to call more than once.
func (r *Receiver) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.mode = modeClosed
		r.mu.Unlock()
		close(r.done)
		closeErr = r.conn.Close()
	})
	if closeErr != nil {
		return fmt.Errorf("mediartp: close: %w", closeErr)
	}
	return nil
}
