// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package callorchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/voxrelay/voxrelay/internal/ari"
	"github.com/voxrelay/voxrelay/internal/codec"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/speech"
	"github.com/voxrelay/voxrelay/internal/wavfile"
)

// scriptVarAllowList is the fixed set of APP_VAR_* names the bulk
// getter's per-name fallback path reads, matching the mapping table
// in internal/config.
var scriptVarAllowList = []string{
	"APP_VAR_ARI_URL", "APP_VAR_ARI_USERNAME", "APP_VAR_ARI_PASSWORD", "APP_VAR_ARI_APP_NAME",
	"APP_VAR_AZURE_SPEECH_SUBSCRIPTION_KEY", "APP_VAR_AZURE_SPEECH_REGION",
	"APP_VAR_AZURE_TTS_LANGUAGE", "APP_VAR_AZURE_TTS_VOICE_NAME", "APP_VAR_AZURE_TTS_OUTPUT_FORMAT",
	"APP_VAR_AZURE_STT_LANGUAGE",
	"APP_VAR_VAD_ACTIVATION_MODE", "APP_VAR_VAD_ACTIVATION_DELAY_MS",
	"APP_VAR_TALK_DETECT_SILENCE_THRESHOLD", "APP_VAR_TALK_DETECT_SPEECH_THRESHOLD",
	"APP_VAR_PROMPT_MODE", "APP_VAR_PLAYBACK_FILE_PATH",
	"APP_VAR_ARI_SESSION_TIMEOUT_MS", "APP_VAR_NO_INPUT_TIMEOUT_MS", "APP_VAR_RTP_PREBUFFER_SIZE",
	"APP_VAR_ENABLE_DTMF", "APP_VAR_DTMF_COMPLETION_TIMEOUT_MS",
	"APP_VAR_EXTERNAL_MEDIA_SERVER_IP", "APP_VAR_EXTERNAL_MEDIA_SERVER_PORT", "APP_VAR_EXTERNAL_MEDIA_AUDIO_FORMAT",
	"APP_VAR_LOG_LEVEL", "TEXT_TO_SPEAK", "CALLER_ID",
}

// handleEnter runs the synchronous setup sequence from channel-enter
// through prompt playback start. It always swallows call-control
// errors into logs so that a failing step degrades rather than
// panicking the session goroutine; fatal steps instead transition
// straight to cleanup.
func (s *CallSession) handleEnter(ctx context.Context) {
	scriptVars := s.readScriptVariables(ctx)

	if callerID, ok := scriptVars["CALLER_ID"]; ok && callerID != "" {
		s.callerID = callerID
		s.logger = s.logger.With("caller_id", callerID)
	}

	eff := config.NewEffectiveConfig(baseConfigFromEffective(s.cfg))
	config.ApplyScriptVariables(s.logger, eff, scriptVars)
	s.cfg = eff

	if s.cfg.ARISessionTimeoutMs > 0 {
		s.sessionTimer = time.AfterFunc(time.Duration(s.cfg.ARISessionTimeoutMs)*time.Millisecond, func() {
			s.push(timerEvent{kind: timerSession})
		})
	}

	if err := s.ari.Answer(ctx, s.channelID); err != nil {
		s.logger.Errorw("answer failed", "error", err)
	}

	textToSpeak, ok := scriptVars["TEXT_TO_SPEAK"]
	if !ok || textToSpeak == "" {
		s.logger.Warnw("TEXT_TO_SPEAK missing, finalizing with outcome ERROR")
		s.outcome = ModeError
		s.state = StateFinalizing
		s.finalize(ctx)
		return
	}

	topology, err := s.buildTopology(ctx)
	if err != nil {
		s.logger.Errorw("failed to build media topology, terminating call", "error", err)
		s.cleanup(ctx)
		return
	}
	s.topology = topology

	s.state = StatePlayingPrompt
	s.startPrompt(ctx, textToSpeak)
}

func baseConfigFromEffective(eff *config.EffectiveConfig) *config.AppConfig {
	return &config.AppConfig{
		ARIURL: eff.ARIURL, ARIUsername: eff.ARIUsername, ARIPassword: eff.ARIPassword, ARIAppName: eff.ARIAppName,
		AzureSpeechSubscriptionKey: eff.AzureSpeechSubscriptionKey, AzureSpeechRegion: eff.AzureSpeechRegion,
		AzureTTSLanguage: eff.AzureTTSLanguage, AzureTTSVoiceName: eff.AzureTTSVoiceName,
		AzureTTSOutputFormat: eff.AzureTTSOutputFormat, AzureSTTLanguage: eff.AzureSTTLanguage,
		VADActivationMode: eff.VADActivationMode, VADActivationDelayMs: eff.VADActivationDelayMs,
		TalkDetectSilenceThreshold: eff.TalkDetectSilenceThreshold, TalkDetectSpeechThreshold: eff.TalkDetectSpeechThreshold,
		PromptMode: eff.PromptMode, PlaybackFilePath: eff.PlaybackFilePath,
		ARISessionTimeoutMs: eff.ARISessionTimeoutMs, NoInputTimeoutMs: eff.NoInputTimeoutMs,
		RTPPreBufferSize: eff.RTPPreBufferSize, EnableDTMF: eff.EnableDTMF, DTMFCompletionTimeoutMs: eff.DTMFCompletionTimeoutMs,
		ExternalMediaServerIP: eff.ExternalMediaServerIP, ExternalMediaServerPortLo: eff.ExternalMediaServerPortLo,
		ExternalMediaServerPortHi: eff.ExternalMediaServerPortHi, ExternalMediaAudioFormat: eff.ExternalMediaAudioFormat,
		LogLevel: eff.LogLevel,
	}
}

// readScriptVariables attempts a bulk getter first, falling back to
// per-name gets against the fixed allow-list on failure.
func (s *CallSession) readScriptVariables(ctx context.Context) map[string]string {
	if all, err := s.ari.GetAllVariables(ctx, s.channelID); err == nil {
		return all
	}

	vars := make(map[string]string, len(scriptVarAllowList))
	for _, name := range scriptVarAllowList {
		if v, err := s.ari.GetVariable(ctx, s.channelID, name); err == nil && v != "" {
			vars[name] = v
		}
	}
	return vars
}

// dispatch routes one inbox event to the handler appropriate for the
// session's current state. Events irrelevant to the current state
// (e.g. a voice-end while not Recognizing) are dropped by their
// handlers without logging.
func (s *CallSession) dispatch(ctx context.Context, ev inboxEvent) {
	switch e := ev.(type) {
	case controlEvent:
		s.handleControlEvent(ctx, e.event)
	case mediaFrame:
		s.handleMediaFrame(ctx, e.payload)
	case recognizerEvent:
		s.handleRecognizerEvent(ctx, e.event)
	case timerEvent:
		s.handleTimer(ctx, e.kind)
	case synthesisChunk:
		s.handleSynthesisChunk(ctx, e.pcm)
	case synthesisEnded:
		s.handleSynthesisEnded(ctx)
	case synthesisFailed:
		s.logger.Warnw("synthesis failed", "error", e.err)
		if s.state == StatePlayingPrompt && len(s.promptQueue) == 0 {
			s.triggerVADArm(ctx)
			s.state = StateListening
		}
	}
}

func (s *CallSession) handleControlEvent(ctx context.Context, event ari.Event) {
	switch e := event.(type) {
	case ari.VoiceStart:
		s.onVoiceStart(ctx)
	case ari.VoiceEnd:
		s.onVoiceEnd(ctx)
	case ari.KeypadDigit:
		s.onKeypadDigit(ctx, e.Digit)
	case ari.PlaybackFinished:
		s.onPlaybackSignal(ctx, e.PlaybackID, true)
	case ari.PlaybackFailed:
		s.onPlaybackSignal(ctx, e.PlaybackID, false)
	case ari.ChannelExited:
		// The switch has already torn down the primary channel; cleanup
		// must not attempt another hangup against it.
		s.cleanup(ctx)
	}
}

func (s *CallSession) handleTimer(ctx context.Context, kind timerKind) {
	switch kind {
	case timerSession:
		s.logger.Warnw("session timeout, hanging up")
		s.hangupAndCleanup(ctx)
	case timerNoInput:
		s.logger.Infow("no-input timeout, hanging up")
		s.finalizeNoInput(ctx)
	case timerKeypadCompletion:
		s.finalizeKeypad(ctx)
	case timerVADArmDelay:
		s.armVAD(ctx)
	}
}

// startPrompt begins the configured prompt mode. playback mode plays
// a fixed file and arms VAD immediately per mode; tts mode begins
// synthesis and arms VAD at the mode-defined moment as chunks play.
func (s *CallSession) startPrompt(ctx context.Context, textToSpeak string) {
	switch s.cfg.PromptMode {
	case "playback":
		s.playFixedFile(ctx)
	default:
		s.startSynthesis(ctx, textToSpeak)
	}
}

func (s *CallSession) playFixedFile(ctx context.Context) {
	playbackID, err := s.ari.CreatePlayback(ctx, s.topology.userBridgeID, s.cfg.PlaybackFilePath)
	if err != nil {
		s.logger.Warnw("fixed-file playback failed", "error", err)
		s.triggerVADArm(ctx)
		return
	}
	s.promptQueue = append(s.promptQueue, promptQueueEntry{playbackID: playbackID})
	if s.cfg.VADActivationMode == "after_prompt_start" {
		s.triggerVADArm(ctx)
	}
}

func (s *CallSession) startSynthesis(ctx context.Context, text string) {
	synth := speech.NewSynthesizer(s.logger, speech.Credentials{
		SubscriptionKey: s.cfg.AzureSpeechSubscriptionKey,
		Region:          s.cfg.AzureSpeechRegion,
		TTSLanguage:     s.cfg.AzureTTSLanguage,
		TTSVoiceName:    s.cfg.AzureTTSVoiceName,
	})
	events := synth.Synthesize(text)

	go func() {
		for ev := range events {
			switch e := ev.(type) {
			case speech.Chunk:
				s.push(synthesisChunk{pcm: e.PCM})
			case speech.End:
				s.push(synthesisEnded{})
			case speech.SynthesisError:
				s.push(synthesisFailed{err: e.Err})
			}
		}
	}()
}

// handleSynthesisChunk wraps one PCM chunk into a cached WAV artifact
// and enqueues it; if nothing is currently playing, playback starts
// immediately.
func (s *CallSession) handleSynthesisChunk(ctx context.Context, pcm []byte) {
	if s.promptStopped {
		return
	}
	s.ttsPCM = append(s.ttsPCM, pcm...)

	artifact, err := s.deps.cache.Put(pcm, wavfile.Format{Channels: 1, SampleRate: speech.SampleRate, BitDepth: speech.BitDepth})
	if err != nil {
		s.logger.Warnw("cache tts chunk failed", "error", err)
		return
	}

	entry := promptQueueEntry{artifact: artifact}
	starting := len(s.promptQueue) == 0
	s.promptQueue = append(s.promptQueue, entry)

	if starting {
		s.playNextQueued(ctx)
	}
}

func (s *CallSession) playNextQueued(ctx context.Context) {
	if len(s.promptQueue) == 0 || s.promptStopped {
		return
	}
	head := s.promptQueue[0]
	if head.playbackID != "" {
		return
	}
	playbackID, err := s.ari.CreatePlayback(ctx, s.topology.userBridgeID, head.artifact.MediaRef)
	if err != nil {
		s.logger.Warnw("create playback for tts chunk failed", "error", err)
		s.deps.cache.Remove(head.artifact.Path)
		s.promptQueue = s.promptQueue[1:]
		s.playNextQueued(ctx)
		return
	}
	s.promptQueue[0].playbackID = playbackID

	if s.cfg.VADActivationMode == "after_prompt_start" && !s.vadArmed {
		s.triggerVADArm(ctx)
	}
}

// handleSynthesisEnded moves the session on to Listening (arming VAD
// if needed) when the prompt queue is already empty; otherwise
// onPlaybackSignal does so when the queue drains. No end-of-synthesis
// flag is kept, so onPlaybackSignal also treats a queue that drains
// before the next chunk arrives as the end of the prompt.
func (s *CallSession) handleSynthesisEnded(ctx context.Context) {
	if len(s.promptQueue) == 0 && s.state == StatePlayingPrompt {
		if !s.vadArmed {
			s.triggerVADArm(ctx)
		}
		s.state = StateListening
	}
}

func (s *CallSession) onVoiceStart(ctx context.Context) {
	if !s.voiceStartOneShot {
		return
	}
	s.voiceStartOneShot = false

	if s.noInputTimer != nil {
		s.noInputTimer.Stop()
	}

	if s.state == StatePlayingPrompt {
		s.bargeIn(ctx)
	}

	flushed := s.topology.rtpReceiver.StopPreBufferingAndFlush()

	recognizer, err := speech.Start(s.logger, speech.Credentials{
		SubscriptionKey: s.cfg.AzureSpeechSubscriptionKey,
		Region:          s.cfg.AzureSpeechRegion,
		STTLanguage:     s.cfg.AzureSTTLanguage,
	})
	if err != nil {
		s.logger.Errorw("recognizer open failed", "error", err)
		s.state = StateListening
		return
	}
	s.recognizer = recognizer
	go s.forwardRecognizerEvents(recognizer)

	if len(flushed) > 0 {
		pcm := codec.UlawToPCM(flushed)
		s.sttPCM = append(s.sttPCM, pcm...)
		if err := recognizer.Write(pcm); err != nil {
			s.logger.Warnw("write flushed pre-buffer to recognizer failed", "error", err)
		}
	}

	s.topology.rtpReceiver.SubscribeLive(func(payload []byte) {
		s.push(mediaFrame{payload: payload})
	})

	s.state = StateRecognizing
}

func (s *CallSession) forwardRecognizerEvents(r *speech.Recognizer) {
	for ev := range r.Events() {
		s.push(recognizerEvent{event: ev})
	}
}

func (s *CallSession) handleMediaFrame(ctx context.Context, ulawPayload []byte) {
	if s.state != StateRecognizing || s.recognizer == nil {
		return
	}
	pcm := codec.UlawToPCM(ulawPayload)
	s.sttPCM = append(s.sttPCM, pcm...)
	if err := s.recognizer.Write(pcm); err != nil {
		s.logger.Warnw("write live frame to recognizer failed", "error", err)
	}
}

// onVoiceEnd implements step 11: stop the recognizer and wait for its
// terminal recognition_ended event to deliver the final transcript.
func (s *CallSession) onVoiceEnd(ctx context.Context) {
	if s.state != StateRecognizing || s.recognizer == nil {
		return
	}
	s.recognizer.Stop()
}

func (s *CallSession) handleRecognizerEvent(ctx context.Context, event speech.RecognizerEvent) {
	switch e := event.(type) {
	case speech.RecognitionEnded:
		s.finalTranscript = e.FinalText
		s.outcome = ModeVoice
		s.finalizeVoice(ctx)
	case speech.RecognitionError:
		s.logger.Warnw("recognizer error, resolving empty transcript", "error", e.Err)
		s.finalTranscript = ""
		s.outcome = ModeVoice
		s.finalizeVoice(ctx)
	case speech.Recognizing:
		// interim hypothesis; no state transition, available for future
		// live-transcript forwarding hooks.
	}
}

// onKeypadDigit implements step 12: first digit preempts the voice
// path, subsequent digits (re)arm the completion timer.
func (s *CallSession) onKeypadDigit(ctx context.Context, digit string) {
	if !s.cfg.EnableDTMF {
		return
	}

	first := s.keypadDigits == ""
	s.keypadDigits += digit

	if first {
		s.voiceStartOneShot = false
		if s.noInputTimer != nil {
			s.noInputTimer.Stop()
		}
		if s.recognizer != nil {
			s.recognizer.Stop()
			s.recognizer = nil
		}
		if s.state == StatePlayingPrompt {
			s.bargeIn(ctx)
		}
		s.state = StateListening
	}

	if s.keypadTimer != nil {
		s.keypadTimer.Stop()
	}
	s.keypadTimer = time.AfterFunc(time.Duration(s.cfg.DTMFCompletionTimeoutMs)*time.Millisecond, func() {
		s.push(timerEvent{kind: timerKeypadCompletion})
	})
}

func (s *CallSession) finalizeKeypad(ctx context.Context) {
	s.outcome = ModeDTMF
	s.state = StateFinalizing
	s.finalize(ctx)
}

func (s *CallSession) finalizeVoice(ctx context.Context) {
	s.state = StateFinalizing
	s.finalize(ctx)
}

// finalizeNoInput writes RECOGNITION_MODE=NO_INPUT and persists the
// interaction record before hanging up, per the resolved no-input
// finalization policy: unlike the voice/DTMF outcomes, the call ends
// in a hangup rather than a dialplan continue, so it does not route
// through finalize's ContinueScript step.
func (s *CallSession) finalizeNoInput(ctx context.Context) {
	s.outcome = ModeNoInput
	s.state = StateFinalizing
	if err := s.ari.SetVariable(ctx, s.channelID, "RECOGNITION_MODE", string(ModeNoInput)); err != nil {
		s.logger.Warnw("set RECOGNITION_MODE failed", "error", err)
	}
	s.persistInteraction(ctx)
	s.hangupAndCleanup(ctx)
}

// bargeIn stops the active playback and drops any residual queued
// chunks, per spec.md's barge-in invariant: once voice-start fires,
// no further queued chunk may start playing.
func (s *CallSession) bargeIn(ctx context.Context) {
	s.promptStopped = true
	if len(s.promptQueue) == 0 {
		return
	}
	active := s.promptQueue[0]
	if active.playbackID != "" {
		if err := s.ari.StopPlayback(ctx, active.playbackID); err != nil {
			s.logger.Warnw("stop playback (barge-in) failed", "error", err)
		}
	}
	if active.artifact != nil {
		s.deps.cache.Remove(active.artifact.Path)
	}
	for _, pending := range s.promptQueue[1:] {
		if pending.artifact != nil {
			s.deps.cache.Remove(pending.artifact.Path)
		}
	}
	s.promptQueue = nil
}

func (s *CallSession) finalize(ctx context.Context) {
	switch s.outcome {
	case ModeVoice:
		if err := s.ari.SetVariable(ctx, s.channelID, "TRANSCRIPT", s.finalTranscript); err != nil {
			s.logger.Warnw("set TRANSCRIPT failed", "error", err)
		}
		if err := s.ari.SetVariable(ctx, s.channelID, "RECOGNITION_MODE", string(ModeVoice)); err != nil {
			s.logger.Warnw("set RECOGNITION_MODE failed", "error", err)
		}
	case ModeDTMF:
		if err := s.ari.SetVariable(ctx, s.channelID, "DTMF_RESULT", s.keypadDigits); err != nil {
			s.logger.Warnw("set DTMF_RESULT failed", "error", err)
		}
		if err := s.ari.SetVariable(ctx, s.channelID, "RECOGNITION_MODE", string(ModeDTMF)); err != nil {
			s.logger.Warnw("set RECOGNITION_MODE failed", "error", err)
		}
	case ModeError:
		if err := s.ari.SetVariable(ctx, s.channelID, "RECOGNITION_MODE", string(ModeError)); err != nil {
			s.logger.Warnw("set RECOGNITION_MODE failed", "error", err)
		}
	}

	if err := s.ari.ContinueScript(ctx, s.channelID); err != nil {
		s.logger.Warnw("continue script failed", "error", err)
	}

	s.persistInteraction(ctx)
	s.cleanup(ctx)
}

func (s *CallSession) persistInteraction(ctx context.Context) {
	now := time.Now()
	outcome := InteractionOutcome{
		UniqueID:        s.uniqueID,
		CallerID:        s.callerID,
		RecognitionMode: s.outcome,
		Transcript:      s.finalTranscript,
		KeypadDigits:    s.keypadDigits,
	}

	if len(s.ttsPCM) > 0 {
		if path, err := s.deps.recordingsWriter.WriteTTS(s.uniqueID, s.callerID, s.ttsPCM, now); err == nil {
			outcome.SynthesizedAudioPath = path
		} else {
			s.logger.Warnw("write tts recording failed", "error", err)
		}
	}

	// Per policy: no STT recording for keypad-only outcomes (open
	// question in spec.md resolved in favor of skipping it — see
	// SPEC_FULL.md §12).
	if s.outcome == ModeVoice && len(s.sttPCM) > 0 {
		if path, err := s.deps.recordingsWriter.WriteSTT(s.uniqueID, s.callerID, s.sttPCM, now); err == nil {
			outcome.STTAudioPath = path
		} else {
			s.logger.Warnw("write stt recording failed", "error", err)
		}
	}

	if err := s.deps.store.SaveOutcome(ctx, outcome); err != nil {
		s.logger.Warnw("persist interaction record failed", "error", err)
	}
}

func (s *CallSession) hangupAndCleanup(ctx context.Context) {
	if err := s.ari.Hangup(ctx, s.channelID); err != nil {
		s.logger.Warnw("hangup failed", "error", err)
	}
	s.cleanup(ctx)
}

func (s *CallSession) onPlaybackSignal(ctx context.Context, playbackID string, finished bool) {
	if len(s.promptQueue) == 0 || s.promptQueue[0].playbackID != playbackID {
		return
	}
	entry := s.promptQueue[0]
	s.promptQueue = s.promptQueue[1:]
	if entry.artifact != nil {
		s.deps.cache.Remove(entry.artifact.Path)
	}

	if s.cfg.VADActivationMode == "after_prompt_end" && len(s.promptQueue) == 0 {
		s.triggerVADArm(ctx)
	}

	if s.promptStopped || len(s.promptQueue) == 0 {
		if s.state == StatePlayingPrompt && !s.vadArmed {
			s.triggerVADArm(ctx)
		}
		if s.state == StatePlayingPrompt {
			s.state = StateListening
		}
		return
	}

	s.playNextQueued(ctx)
}

// triggerVADArm schedules arming per VADActivationDelayMs: zero arms
// immediately, non-zero arms after the delay elapses on its own
// timer. vadArmed is marked up-front so a second trigger before the
// delay fires (e.g. prompt ending early) is a no-op.
func (s *CallSession) triggerVADArm(ctx context.Context) {
	if s.vadArmed {
		return
	}
	if s.cfg.VADActivationDelayMs <= 0 {
		s.armVAD(ctx)
		return
	}
	s.vadArmed = true
	time.AfterFunc(time.Duration(s.cfg.VADActivationDelayMs)*time.Millisecond, func() {
		s.push(timerEvent{kind: timerVADArmDelay})
	})
}

// armVAD implements step 9: start the no-input timer, attach
// voice/keypad listeners (modeled here as the one-shot flag plus
// always-on dispatch), and activate the switch's talk-detect feature.
// It does not touch the RTP receiver: the receiver is in pre-buffer
// mode from Listen onward, so its ring can already hold audio from
// before VAD was armed.
func (s *CallSession) armVAD(ctx context.Context) {
	if s.vadArmed && s.noInputTimer != nil {
		return
	}
	s.vadArmed = true
	s.voiceStartOneShot = true

	if s.cfg.NoInputTimeoutMs > 0 {
		s.noInputTimer = time.AfterFunc(time.Duration(s.cfg.NoInputTimeoutMs)*time.Millisecond, func() {
			s.push(timerEvent{kind: timerNoInput})
		})
	}

	talkDetect := fmt.Sprintf("%d,%d", s.cfg.TalkDetectSilenceThreshold, s.cfg.TalkDetectSpeechThreshold)
	if err := s.ari.SetVariable(ctx, s.channelID, "TALK_DETECT(set)", talkDetect); err != nil {
		s.logger.Warnw("arm talk-detect failed", "error", err)
	}
}

// synthesisChunk/synthesisEnded/synthesisFailed are the inbox
// wrappers for the Synthesizer's event stream (the synthesis adapter
// runs on its own goroutine per spec.md's "lazy chunk stream").
type synthesisChunk struct{ pcm []byte }
type synthesisEnded struct{}
type synthesisFailed struct{ err error }

func (synthesisChunk) isInboxEvent()  {}
func (synthesisEnded) isInboxEvent()  {}
func (synthesisFailed) isInboxEvent() {}
