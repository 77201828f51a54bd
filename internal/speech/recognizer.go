// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package speech

import (
	"fmt"
	"strings"
	"sync"

	sdkaudio "github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// RecognizerEvent is the tagged-variant event set the recognizer
// adapter emits. Consumers exhaustively switch on the concrete type
// rather than calling back into the adapter.
type RecognizerEvent interface{ isRecognizerEvent() }

// StreamReady fires once the provider has accepted the opened push
// stream and is ready to receive audio.
type StreamReady struct{}

// Recognizing carries an interim (non-final) hypothesis.
type Recognizing struct{ Partial string }

// RecognitionEnded is terminal: it fires exactly once with the
// concatenation of every final hypothesis observed, joined by single
// spaces and trimmed. No event follows it.
type RecognitionEnded struct{ FinalText string }

// RecognitionError reports a provider cancellation with a non-zero
// reason. It is a distinct signal from RecognitionEnded, so the
// orchestrator can differentiate a clean finish from a provider
// failure. It does not close the event channel: a RecognitionEnded
// can still follow it once the provider's session stops.
type RecognitionError struct{ Err error }

func (StreamReady) isRecognizerEvent()      {}
func (Recognizing) isRecognizerEvent()      {}
func (RecognitionEnded) isRecognizerEvent() {}
func (RecognitionError) isRecognizerEvent() {}

// Recognizer is a thin façade over a streaming STT session: it opens a
// push stream, forwards PCM frames written to it, and aggregates
// intermediate/final hypotheses into the RecognizerEvent stream handed
// to its caller at Start. At most one push stream exists per
// Recognizer and writes to it are serialized by the caller (the
// orchestrator owns exactly one recognizer per call at a time).
type Recognizer struct {
	logger commons.Logger

	mu         sync.Mutex
	stream     *sdkaudio.PushAudioInputStream
	recognizer *speech.SpeechRecognizer
	audioCfg   *sdkaudio.AudioConfig
	speechCfg  *speech.SpeechConfig

	finals    []string
	events    chan RecognizerEvent
	closed    bool
	endedOnce sync.Once
}

// Start opens a streaming STT session declaring 8kHz/16-bit/mono and
// returns the Recognizer whose Events channel the orchestrator
// consumes. A StreamReady event is emitted once the provider accepts
// audio.
func Start(logger commons.Logger, creds Credentials) (*Recognizer, error) {
	format, err := audioStreamFormat()
	if err != nil {
		return nil, fmt.Errorf("speech: recognizer audio format: %w", err)
	}

	pushStream, err := sdkaudio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return nil, fmt.Errorf("speech: create push stream: %w", err)
	}

	audioCfg, err := sdkaudio.NewAudioConfigFromStreamInput(pushStream)
	if err != nil {
		pushStream.Close()
		return nil, fmt.Errorf("speech: audio config from stream: %w", err)
	}

	speechCfg, err := newSpeechConfigForRecognition(creds)
	if err != nil {
		audioCfg.Close()
		pushStream.Close()
		return nil, err
	}

	sdkRecognizer, err := speech.NewSpeechRecognizerFromConfig(speechCfg, audioCfg)
	if err != nil {
		speechCfg.Close()
		audioCfg.Close()
		pushStream.Close()
		return nil, fmt.Errorf("speech: new recognizer: %w", err)
	}

	r := &Recognizer{
		logger:     logger.With("component", "speech.Recognizer"),
		stream:     pushStream,
		recognizer: sdkRecognizer,
		audioCfg:   audioCfg,
		speechCfg:  speechCfg,
		events:     make(chan RecognizerEvent, 16),
	}

	sdkRecognizer.Recognizing(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		r.emit(Recognizing{Partial: event.Result.Text})
	})
	sdkRecognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		text := strings.TrimSpace(event.Result.Text)
		if text == "" {
			return
		}
		r.mu.Lock()
		r.finals = append(r.finals, text)
		r.mu.Unlock()
	})
	sdkRecognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.Reason == 0 {
			return
		}
		r.emit(RecognitionError{Err: fmt.Errorf("speech: recognition canceled: %s", event.ErrorDetails)})
	})
	sdkRecognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		r.finishEnded()
	})

	outcome := <-sdkRecognizer.StartContinuousRecognitionAsync()
	if outcome != nil {
		sdkRecognizer.Close()
		speechCfg.Close()
		audioCfg.Close()
		pushStream.Close()
		return nil, fmt.Errorf("speech: start continuous recognition: %w", outcome)
	}

	r.emit(StreamReady{})
	return r, nil
}

// Events returns the channel of RecognizerEvent values. It is closed
// after RecognitionEnded has been delivered.
func (r *Recognizer) Events() <-chan RecognizerEvent {
	return r.events
}

// Write forwards one PCM frame to the open push stream.
func (r *Recognizer) Write(pcm []byte) error {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("speech: write after stream closed")
	}
	if err := stream.Write(pcm); err != nil {
		return fmt.Errorf("speech: write: %w", err)
	}
	return nil
}

// Stop requests graceful termination. The terminal RecognitionEnded
// event is delivered asynchronously once the provider's
// session_stopped callback fires.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()
	if stream != nil {
		stream.CloseStream()
	}
	go func() {
		<-r.recognizer.StopContinuousRecognitionAsync()
	}()
}

func (r *Recognizer) emit(ev RecognizerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warnw("dropping recognizer event, consumer not keeping up")
	}
}

// finishEnded emits RecognitionEnded exactly once, with the
// concatenation of every observed final hypothesis, then releases the
// underlying SDK resources. Any callback firing afterward is ignored.
func (r *Recognizer) finishEnded() {
	r.endedOnce.Do(func() {
		r.mu.Lock()
		finalText := strings.TrimSpace(strings.Join(r.finals, " "))
		r.mu.Unlock()

		r.emit(RecognitionEnded{FinalText: finalText})

		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.stream = nil
		r.mu.Unlock()

		r.recognizer.Close()
		r.speechCfg.Close()
		r.audioCfg.Close()
	})
}
