// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package speech

import (
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// chunkSize is the PCM read granularity for the lazy synthesis stream;
// 3200 bytes is 200ms at 8kHz/16-bit/mono.
const chunkSize = 3200

// SynthesisEvent is the tagged-variant event set emitted while
// draining a synthesize() call.
type SynthesisEvent interface{ isSynthesisEvent() }

// Chunk carries one PCM byte chunk of the synthesized output.
type Chunk struct{ PCM []byte }

// End signals the lazy stream is exhausted; no further events follow.
type End struct{}

// SynthesisError signals synthesis failed; no further events follow.
type SynthesisError struct{ Err error }

func (Chunk) isSynthesisEvent()          {}
func (End) isSynthesisEvent()            {}
func (SynthesisError) isSynthesisEvent() {}

// Synthesizer is a thin façade over text-to-speech: synthesize(text)
// produces a finite, non-restartable sequence of PCM byte chunks in
// the negotiated 8kHz/16-bit/mono output format.
type Synthesizer struct {
	logger    commons.Logger
	creds     Credentials
	ssml      *SSMLBuilder
}

// NewSynthesizer constructs a synthesis adapter for one call's TTS
// credentials and voice settings.
func NewSynthesizer(logger commons.Logger, creds Credentials) *Synthesizer {
	return &Synthesizer{
		logger: logger.With("component", "speech.Synthesizer"),
		creds:  creds,
		ssml:   NewSSMLBuilder(creds.TTSLanguage, creds.TTSVoiceName),
	}
}

// Synthesize begins producing PCM chunks for text and returns the
// event channel. The channel is closed after End or SynthesisError.
func (s *Synthesizer) Synthesize(text string) <-chan SynthesisEvent {
	events := make(chan SynthesisEvent, 4)

	go func() {
		defer close(events)

		speechCfg, err := newSpeechConfigForSynthesis(s.creds)
		if err != nil {
			events <- SynthesisError{Err: err}
			return
		}
		defer speechCfg.Close()

		synthesizer, err := speech.NewSpeechSynthesizerFromConfig(speechCfg, nil)
		if err != nil {
			events <- SynthesisError{Err: fmt.Errorf("speech: new synthesizer: %w", err)}
			return
		}
		defer synthesizer.Close()

		ssml := s.ssml.Wrap(text)
		outcome := <-synthesizer.SpeakSsmlAsync(ssml)
		if outcome == nil || outcome.Result == nil {
			events <- SynthesisError{Err: fmt.Errorf("speech: synthesis returned no result")}
			return
		}
		defer outcome.Result.Close()

		if outcome.Result.Reason == 0 {
			events <- SynthesisError{Err: fmt.Errorf("speech: synthesis failed: %s", outcome.Result.AudioDuration)}
			return
		}

		audioStream, err := speech.NewAudioDataStreamFromSpeechSynthesisResult(outcome.Result)
		if err != nil {
			events <- SynthesisError{Err: fmt.Errorf("speech: audio data stream: %w", err)}
			return
		}
		defer audioStream.Close()

		buf := make([]byte, chunkSize)
		for {
			n, err := audioStream.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				events <- Chunk{PCM: chunk}
			}
			if err != nil {
				break
			}
			if n == 0 {
				break
			}
		}
		events <- End{}
	}()

	return events
}
