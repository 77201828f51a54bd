// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package config

import (
	"strconv"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// EffectiveConfig is the per-call configuration: a deep clone of the
// process AppConfig with APP_VAR_* script variable overrides applied.
type EffectiveConfig struct {
	ARIURL      string
	ARIUsername string
	ARIPassword string
	ARIAppName  string

	AzureSpeechSubscriptionKey string
	AzureSpeechRegion          string
	AzureTTSLanguage           string
	AzureTTSVoiceName          string
	AzureTTSOutputFormat       string
	AzureSTTLanguage           string

	VADActivationMode          string
	VADActivationDelayMs       int
	TalkDetectSilenceThreshold int
	TalkDetectSpeechThreshold  int

	PromptMode       string
	PlaybackFilePath string

	ARISessionTimeoutMs     int
	NoInputTimeoutMs        int
	RTPPreBufferSize        int
	EnableDTMF              bool
	DTMFCompletionTimeoutMs int

	ExternalMediaServerIP    string
	ExternalMediaServerPortLo int
	ExternalMediaServerPortHi int
	ExternalMediaAudioFormat string

	LogLevel string
}

// NewEffectiveConfig deep-clones the process defaults into a fresh
// per-call EffectiveConfig.
func NewEffectiveConfig(base *AppConfig) *EffectiveConfig {
	return &EffectiveConfig{
		ARIURL:      base.ARIURL,
		ARIUsername: base.ARIUsername,
		ARIPassword: base.ARIPassword,
		ARIAppName:  base.ARIAppName,

		AzureSpeechSubscriptionKey: base.AzureSpeechSubscriptionKey,
		AzureSpeechRegion:          base.AzureSpeechRegion,
		AzureTTSLanguage:           base.AzureTTSLanguage,
		AzureTTSVoiceName:          base.AzureTTSVoiceName,
		AzureTTSOutputFormat:       base.AzureTTSOutputFormat,
		AzureSTTLanguage:           base.AzureSTTLanguage,

		VADActivationMode:          base.VADActivationMode,
		VADActivationDelayMs:       base.VADActivationDelayMs,
		TalkDetectSilenceThreshold: base.TalkDetectSilenceThreshold,
		TalkDetectSpeechThreshold:  base.TalkDetectSpeechThreshold,

		PromptMode:       base.PromptMode,
		PlaybackFilePath: base.PlaybackFilePath,

		ARISessionTimeoutMs:     base.ARISessionTimeoutMs,
		NoInputTimeoutMs:        base.NoInputTimeoutMs,
		RTPPreBufferSize:        base.RTPPreBufferSize,
		EnableDTMF:              base.EnableDTMF,
		DTMFCompletionTimeoutMs: base.DTMFCompletionTimeoutMs,

		ExternalMediaServerIP:     base.ExternalMediaServerIP,
		ExternalMediaServerPortLo: base.ExternalMediaServerPortLo,
		ExternalMediaServerPortHi: base.ExternalMediaServerPortHi,
		ExternalMediaAudioFormat:  base.ExternalMediaAudioFormat,

		LogLevel: base.LogLevel,
	}
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
)

// varMapping is one entry in the fixed APP_VAR_* -> EffectiveConfig
// field mapping table (spec §6's "full mapping" list).
type varMapping struct {
	name string
	kind fieldKind
	set  func(*EffectiveConfig, string) error
}

func setString(set func(*EffectiveConfig, string)) func(*EffectiveConfig, string) error {
	return func(c *EffectiveConfig, v string) error {
		set(c, v)
		return nil
	}
}

func setInt(set func(*EffectiveConfig, int)) func(*EffectiveConfig, string) error {
	return func(c *EffectiveConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}
}

func setBool(set func(*EffectiveConfig, bool)) func(*EffectiveConfig, string) error {
	return func(c *EffectiveConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

var varMappings = []varMapping{
	{"APP_VAR_ARI_URL", kindString, setString(func(c *EffectiveConfig, v string) { c.ARIURL = v })},
	{"APP_VAR_ARI_USERNAME", kindString, setString(func(c *EffectiveConfig, v string) { c.ARIUsername = v })},
	{"APP_VAR_ARI_PASSWORD", kindString, setString(func(c *EffectiveConfig, v string) { c.ARIPassword = v })},
	{"APP_VAR_ARI_APP_NAME", kindString, setString(func(c *EffectiveConfig, v string) { c.ARIAppName = v })},

	{"APP_VAR_AZURE_SPEECH_SUBSCRIPTION_KEY", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureSpeechSubscriptionKey = v })},
	{"APP_VAR_AZURE_SPEECH_REGION", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureSpeechRegion = v })},
	{"APP_VAR_AZURE_TTS_LANGUAGE", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureTTSLanguage = v })},
	{"APP_VAR_AZURE_TTS_VOICE_NAME", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureTTSVoiceName = v })},
	{"APP_VAR_AZURE_TTS_OUTPUT_FORMAT", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureTTSOutputFormat = v })},
	{"APP_VAR_AZURE_STT_LANGUAGE", kindString, setString(func(c *EffectiveConfig, v string) { c.AzureSTTLanguage = v })},

	{"APP_VAR_VAD_ACTIVATION_MODE", kindString, setString(func(c *EffectiveConfig, v string) { c.VADActivationMode = v })},
	{"APP_VAR_VAD_ACTIVATION_DELAY_MS", kindInt, setInt(func(c *EffectiveConfig, v int) { c.VADActivationDelayMs = v })},
	{"APP_VAR_TALK_DETECT_SILENCE_THRESHOLD", kindInt, setInt(func(c *EffectiveConfig, v int) { c.TalkDetectSilenceThreshold = v })},
	{"APP_VAR_TALK_DETECT_SPEECH_THRESHOLD", kindInt, setInt(func(c *EffectiveConfig, v int) { c.TalkDetectSpeechThreshold = v })},

	{"APP_VAR_PROMPT_MODE", kindString, setString(func(c *EffectiveConfig, v string) { c.PromptMode = v })},
	{"APP_VAR_PLAYBACK_FILE_PATH", kindString, setString(func(c *EffectiveConfig, v string) { c.PlaybackFilePath = v })},

	{"APP_VAR_ARI_SESSION_TIMEOUT_MS", kindInt, setInt(func(c *EffectiveConfig, v int) { c.ARISessionTimeoutMs = v })},
	{"APP_VAR_NO_INPUT_TIMEOUT_MS", kindInt, setInt(func(c *EffectiveConfig, v int) { c.NoInputTimeoutMs = v })},
	{"APP_VAR_RTP_PREBUFFER_SIZE", kindInt, setInt(func(c *EffectiveConfig, v int) { c.RTPPreBufferSize = v })},
	{"APP_VAR_ENABLE_DTMF", kindBool, setBool(func(c *EffectiveConfig, v bool) { c.EnableDTMF = v })},
	{"APP_VAR_DTMF_COMPLETION_TIMEOUT_MS", kindInt, setInt(func(c *EffectiveConfig, v int) { c.DTMFCompletionTimeoutMs = v })},

	{"APP_VAR_EXTERNAL_MEDIA_SERVER_IP", kindString, setString(func(c *EffectiveConfig, v string) { c.ExternalMediaServerIP = v })},
	{"APP_VAR_EXTERNAL_MEDIA_SERVER_PORT", kindInt, setInt(func(c *EffectiveConfig, v int) { c.ExternalMediaServerPortLo = v })},
	{"APP_VAR_EXTERNAL_MEDIA_AUDIO_FORMAT", kindString, setString(func(c *EffectiveConfig, v string) { c.ExternalMediaAudioFormat = v })},

	{"APP_VAR_LOG_LEVEL", kindString, setString(func(c *EffectiveConfig, v string) { c.LogLevel = v })},
}

var varMappingByName = func() map[string]varMapping {
	m := make(map[string]varMapping, len(varMappings))
	for _, vm := range varMappings {
		m[vm.name] = vm
	}
	return m
}()

// ApplyScriptVariables overlays scriptVars (raw APP_VAR_* name/value
// pairs read from the channel) onto cfg. Unknown keys are logged and
// ignored; values that fail to parse for their declared type are
// logged and dropped, leaving the prior value in place.
func ApplyScriptVariables(logger commons.Logger, cfg *EffectiveConfig, scriptVars map[string]string) {
	for name, value := range scriptVars {
		mapping, ok := varMappingByName[name]
		if !ok {
			logger.Warnw("unknown script variable, ignoring", "name", name)
			continue
		}
		if err := mapping.set(cfg, value); err != nil {
			logger.Warnw("script variable failed to parse, dropping", "name", name, "value", value, "error", err)
		}
	}
}
