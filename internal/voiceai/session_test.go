package voiceai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPromptAutoLanguage(t *testing.T) {
	prompt := buildSystemPrompt(SessionConfig{
		UserName: "Alice",
		Briefing: "Book a table for 2 at 7pm",
		Language: "auto",
	})
	assert.Contains(t, prompt, "Alice")
	assert.Contains(t, prompt, "Book a table for 2 at 7pm")
	assert.Contains(t, prompt, "Mirror the language")
}

func TestBuildSystemPromptExplicitLanguage(t *testing.T) {
	prompt := buildSystemPrompt(SessionConfig{
		UserName: "Bob",
		Briefing: "Confirm the appointment",
		Language: "Spanish",
	})
	assert.Contains(t, prompt, "Speak in Spanish.")
}

func TestBuildSetupMessageIncludesVoiceAndVAD(t *testing.T) {
	cfg := SessionConfig{
		Model: "gemini-2.0-flash-live-001",
		Voice: "Puck",
		VAD: VADConfig{
			StartSensitivity:  "START_SENSITIVITY_LOW",
			EndSensitivity:    "END_SENSITIVITY_LOW",
			SilenceDurationMs: 500,
		},
	}
	msg := buildSetupMessage(cfg)
	assert.Equal(t, cfg.Model, msg.Setup.Model)

	speechConfig, ok := msg.Setup.GenerationConfig["speechConfig"].(map[string]interface{})
	assert.True(t, ok)
	assert.NotNil(t, speechConfig)

	aad, ok := msg.Setup.RealtimeInputConfig["automaticActivityDetection"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, 500, aad["silenceDurationMs"])
}

func TestTranslateServerMessageAudioAndTranscripts(t *testing.T) {
	msg := serverMessage{
		ServerContent: &serverContent{
			ModelTurn: &modelTurn{Parts: []serverPart{{
				InlineData: &inlineData{MimeType: "audio/pcm;rate=24000", Data: "AQID"},
			}}},
			OutputTranscription: &transcriptionChunk{Text: "hello"},
			TurnComplete:        true,
		},
	}
	evt := translateServerMessage(msg)
	assert.Equal(t, []byte{1, 2, 3}, evt.Audio)
	assert.Equal(t, "hello", evt.OutputTranscript)
	assert.True(t, evt.TurnComplete)
	assert.False(t, evt.Interrupted)
}

func TestTranslateServerMessageEmpty(t *testing.T) {
	evt := translateServerMessage(serverMessage{})
	assert.Empty(t, evt.Audio)
	assert.False(t, evt.TurnComplete)
}
