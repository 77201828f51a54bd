// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package store persists one interaction record per finalized call.
// Persistence is fire-and-forget from the orchestrator's perspective:
// a write failure is logged, never propagated back into the call
// state machine.
package store

import "time"

// RecognitionMode is the outcome classification written to the
// interaction record.
type RecognitionMode string

const (
	RecognitionModeVoice   RecognitionMode = "VOICE"
	RecognitionModeDTMF    RecognitionMode = "DTMF"
	RecognitionModeNoInput RecognitionMode = "NO_INPUT"
	RecognitionModeTimeout RecognitionMode = "TIMEOUT"
	RecognitionModeError   RecognitionMode = "ERROR"
)

// InteractionRecord is one row per call.
type InteractionRecord struct {
	ID                   uint64 `gorm:"primaryKey"`
	UniqueID             string `gorm:"column:unique_id;uniqueIndex"`
	CallerID             string `gorm:"column:caller_id"`
	TextToSynthesize     string `gorm:"column:text_to_synthesize"`
	SynthesizedAudioPath string `gorm:"column:synthesized_audio_path"`
	STTAudioPath         string `gorm:"column:stt_audio_path"`
	RecognitionMode      RecognitionMode `gorm:"column:recognition_mode"`
	Transcript           string `gorm:"column:transcript"`
	KeypadDigits         string `gorm:"column:keypad_digits"`
	CreatedAt            time.Time `gorm:"column:created_at"`
}

func (InteractionRecord) TableName() string { return "interaction_records" }
