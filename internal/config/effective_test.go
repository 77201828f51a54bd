package config

import (
	"testing"

	"github.com/voxrelay/voxrelay/internal/commons"
)

func testLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

func TestApplyScriptVariables_OverridesKnownFields(t *testing.T) {
	base := &AppConfig{VADActivationMode: "after_prompt_start", NoInputTimeoutMs: 0, EnableDTMF: false}
	eff := NewEffectiveConfig(base)

	ApplyScriptVariables(testLogger(t), eff, map[string]string{
		"APP_VAR_VAD_ACTIVATION_MODE": "after_prompt_end",
		"APP_VAR_NO_INPUT_TIMEOUT_MS": "3000",
		"APP_VAR_ENABLE_DTMF":         "true",
	})

	if eff.VADActivationMode != "after_prompt_end" {
		t.Errorf("VADActivationMode = %q, want after_prompt_end", eff.VADActivationMode)
	}
	if eff.NoInputTimeoutMs != 3000 {
		t.Errorf("NoInputTimeoutMs = %d, want 3000", eff.NoInputTimeoutMs)
	}
	if !eff.EnableDTMF {
		t.Errorf("EnableDTMF = false, want true")
	}
}

func TestApplyScriptVariables_UnknownKeyIgnored(t *testing.T) {
	eff := NewEffectiveConfig(&AppConfig{PromptMode: "tts"})
	ApplyScriptVariables(testLogger(t), eff, map[string]string{"APP_VAR_NOT_A_REAL_KEY": "x"})
	if eff.PromptMode != "tts" {
		t.Errorf("unrelated field mutated by unknown key")
	}
}

func TestApplyScriptVariables_UnparsableValueDropped(t *testing.T) {
	eff := NewEffectiveConfig(&AppConfig{NoInputTimeoutMs: 1500})
	ApplyScriptVariables(testLogger(t), eff, map[string]string{"APP_VAR_NO_INPUT_TIMEOUT_MS": "not-a-number"})
	if eff.NoInputTimeoutMs != 1500 {
		t.Errorf("NoInputTimeoutMs = %d, want unchanged 1500", eff.NoInputTimeoutMs)
	}
}

func TestNewEffectiveConfig_DeepClonesFromBase(t *testing.T) {
	base := &AppConfig{ARIURL: "http://switch:8088/ari"}
	eff1 := NewEffectiveConfig(base)
	eff2 := NewEffectiveConfig(base)

	eff1.ARIURL = "http://overridden"
	if eff2.ARIURL != "http://switch:8088/ari" {
		t.Errorf("mutating one EffectiveConfig leaked into another")
	}
}
