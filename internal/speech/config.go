// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package speech is a thin façade over the Azure Cognitive Services
// Speech SDK: a push-stream recognizer adapter and a pull-stream
// synthesis adapter, both negotiating 8kHz/16-bit/mono PCM so the
// media orchestrator never has to branch on provider wire format.
package speech

import (
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

// SampleRate and BitDepth are fixed for the whole media path: the
// switch side speaks 8kHz mono G.711, and both adapters negotiate PCM
// at the same rate so no resampling step is ever needed.
const (
	SampleRate = 8000
	BitDepth   = 16
	Channels   = 1
)

// Credentials is the provider configuration resolved from effective
// per-call config (APP_VAR_AZURE_* overrides).
type Credentials struct {
	SubscriptionKey string
	Region          string
	STTLanguage     string
	TTSLanguage     string
	TTSVoiceName    string
}

func newSpeechConfigForRecognition(creds Credentials) (*speech.SpeechConfig, error) {
	cfg, err := speech.NewSpeechConfigFromSubscription(creds.SubscriptionKey, creds.Region)
	if err != nil {
		return nil, fmt.Errorf("speech: create recognition config: %w", err)
	}
	if creds.STTLanguage != "" {
		if err := cfg.SetSpeechRecognitionLanguage(creds.STTLanguage); err != nil {
			cfg.Close()
			return nil, fmt.Errorf("speech: set recognition language: %w", err)
		}
	}
	return cfg, nil
}

func newSpeechConfigForSynthesis(creds Credentials) (*speech.SpeechConfig, error) {
	cfg, err := speech.NewSpeechConfigFromSubscription(creds.SubscriptionKey, creds.Region)
	if err != nil {
		return nil, fmt.Errorf("speech: create synthesis config: %w", err)
	}
	if creds.TTSVoiceName != "" {
		if err := cfg.SetSpeechSynthesisVoiceName(creds.TTSVoiceName); err != nil {
			cfg.Close()
			return nil, fmt.Errorf("speech: set synthesis voice: %w", err)
		}
	}
	if err := cfg.SetSpeechSynthesisOutputFormat(common.Raw8Khz16BitMonoPcm); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("speech: set synthesis output format: %w", err)
	}
	return cfg, nil
}

func audioStreamFormat() (*audio.AudioStreamFormat, error) {
	return audio.GetWaveFormatPCM(SampleRate, BitDepth, Channels)
}
