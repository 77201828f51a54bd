// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package config loads process-wide defaults (ARI connection, Azure
// credentials, ports, storage DSN) and exposes the declarative
// APP_VAR_* merge that builds each call's EffectiveConfig.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the process-wide configuration loaded once at startup.
// Per-call script variables (APP_VAR_*) override a deep clone of the
// matching fields via NewEffectiveConfig and ApplyScriptVariables — see
// effective.go.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	ARIURL      string `mapstructure:"ari_url" validate:"required"`
	ARIUsername string `mapstructure:"ari_username" validate:"required"`
	ARIPassword string `mapstructure:"ari_password" validate:"required"`
	ARIAppName  string `mapstructure:"ari_app_name" validate:"required"`

	AzureSpeechSubscriptionKey string `mapstructure:"azure_speech_subscription_key"`
	AzureSpeechRegion          string `mapstructure:"azure_speech_region"`
	AzureTTSLanguage           string `mapstructure:"azure_tts_language"`
	AzureTTSVoiceName          string `mapstructure:"azure_tts_voice_name"`
	AzureTTSOutputFormat       string `mapstructure:"azure_tts_output_format"`
	AzureSTTLanguage           string `mapstructure:"azure_stt_language"`

	VADActivationMode         string `mapstructure:"vad_activation_mode"`
	VADActivationDelayMs      int    `mapstructure:"vad_activation_delay_ms"`
	TalkDetectSilenceThreshold int   `mapstructure:"talk_detect_silence_threshold"`
	TalkDetectSpeechThreshold  int   `mapstructure:"talk_detect_speech_threshold"`

	PromptMode         string `mapstructure:"prompt_mode"`
	PlaybackFilePath   string `mapstructure:"playback_file_path"`

	ARISessionTimeoutMs      int `mapstructure:"ari_session_timeout_ms"`
	NoInputTimeoutMs         int `mapstructure:"no_input_timeout_ms"`
	RTPPreBufferSize         int `mapstructure:"rtp_prebuffer_size"`
	EnableDTMF               bool `mapstructure:"enable_dtmf"`
	DTMFCompletionTimeoutMs  int `mapstructure:"dtmf_completion_timeout_ms"`

	ExternalMediaServerIP     string `mapstructure:"external_media_server_ip" validate:"required"`
	ExternalMediaServerPortLo int    `mapstructure:"external_media_server_port_lo" validate:"required"`
	ExternalMediaServerPortHi int    `mapstructure:"external_media_server_port_hi" validate:"required"`
	ExternalMediaAudioFormat  string `mapstructure:"external_media_audio_format"`

	DatabaseDSN string `mapstructure:"database_dsn"`
}

// Load reads .env / environment variables (APP_VAR_* is layered on
// top per-call, not here) into a validated AppConfig.
func Load() (*AppConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no .env file found, relying on environment variables: %v", err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "voxrelay")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8090)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("ARI_APP_NAME", "voxrelay")

	v.SetDefault("AZURE_TTS_LANGUAGE", "en-US")
	v.SetDefault("AZURE_STT_LANGUAGE", "en-US")

	v.SetDefault("VAD_ACTIVATION_MODE", "after_prompt_start")
	v.SetDefault("VAD_ACTIVATION_DELAY_MS", 0)
	v.SetDefault("TALK_DETECT_SILENCE_THRESHOLD", 1200)
	v.SetDefault("TALK_DETECT_SPEECH_THRESHOLD", 500)

	v.SetDefault("PROMPT_MODE", "tts")

	v.SetDefault("ARI_SESSION_TIMEOUT_MS", 0)
	v.SetDefault("NO_INPUT_TIMEOUT_MS", 0)
	v.SetDefault("RTP_PREBUFFER_SIZE", 125)
	v.SetDefault("ENABLE_DTMF", true)
	v.SetDefault("DTMF_COMPLETION_TIMEOUT_MS", 2000)

	v.SetDefault("EXTERNAL_MEDIA_SERVER_PORT_LO", 20000)
	v.SetDefault("EXTERNAL_MEDIA_SERVER_PORT_HI", 20100)
	v.SetDefault("EXTERNAL_MEDIA_AUDIO_FORMAT", "ulaw")
}
