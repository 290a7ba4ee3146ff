// Package voiceai adapts the bridge's internal audio/text protocol to a
// bidirectional streaming voice model over a raw WebSocket connection. The
// realtime half is hand-rolled rather than built on a generated SDK client
// because the bidirectional streaming surface of most voice-model SDKs is
// not stable enough to target without compiling against it; the
// request/response half (summaries, moderation) uses the official SDK.
package voiceai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

// Event is one response event from the voice-AI session's receive stream.
// Any subset of fields may be populated; a zero-value Event carries nothing.
type Event struct {
	Audio            []byte // PCM little-endian, 24kHz
	OutputTranscript string // partial agent-speech transcription fragment
	InputTranscript  string // partial callee-speech transcription fragment
	TurnComplete     bool
	Interrupted      bool
	Err              error
}

// VADConfig configures server-side voice activity detection sensitivity.
type VADConfig struct {
	StartSensitivity  string // e.g. "START_SENSITIVITY_LOW"
	EndSensitivity    string // e.g. "END_SENSITIVITY_LOW"
	SilenceDurationMs int
}

// SessionConfig parameterizes a newly opened session.
type SessionConfig struct {
	APIKey    string
	Model     string
	Voice     string
	Briefing  string
	UserName  string
	Language  string
	VAD       VADConfig
}

// Session is the bidirectional voice-AI session surface the engine drives.
type Session interface {
	SendRealtimeAudio(pcmLE16k []byte)
	SendTextTurn(ctx context.Context, text string, turnComplete bool) error
	Receive() <-chan Event
	Close() error
}

const liveEndpointTemplate = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent?key=%s"

// wsSession is the gorilla/websocket-backed implementation of Session: a
// dialed connection, a write mutex, and a background response-listener
// goroutine fanning events out over a channel.
type wsSession struct {
	logger commons.Logger
	conn   *websocket.Conn

	writeMu   sync.Mutex
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Open dials the voice-AI Live endpoint and sends the initial setup message
// (system prompt, voice/VAD config, transcription enablement).
func Open(ctx context.Context, logger commons.Logger, cfg SessionConfig) (Session, error) {
	endpoint := fmt.Sprintf(liveEndpointTemplate, url.QueryEscape(cfg.APIKey))

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dialing voice-ai session: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	s := &wsSession{
		logger: logger,
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	setupMsg := buildSetupMessage(cfg)
	if err := s.writeJSON(setupMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending setup message: %w", err)
	}

	go s.responseListener()
	return s, nil
}

func buildSystemPrompt(cfg SessionConfig) string {
	languageInstruction := fmt.Sprintf("Speak in %s.", cfg.Language)
	if cfg.Language == "" || cfg.Language == "auto" {
		languageInstruction = "Mirror the language the callee speaks to you in."
	}
	return fmt.Sprintf(`You are a phone assistant calling %s on behalf of a user.
Task: %s
Rules: stay on task, be concise, speak naturally as on a phone call, never mention you are an AI unless asked directly.
%s`, cfg.UserName, cfg.Briefing, languageInstruction)
}

type setupMessage struct {
	Setup struct {
		Model                    string                 `json:"model"`
		GenerationConfig         map[string]interface{} `json:"generationConfig"`
		SystemInstruction        instructionPayload      `json:"systemInstruction"`
		RealtimeInputConfig      map[string]interface{} `json:"realtimeInputConfig"`
		InputAudioTranscription  map[string]interface{} `json:"inputAudioTranscription"`
		OutputAudioTranscription map[string]interface{} `json:"outputAudioTranscription"`
	} `json:"setup"`
}

type instructionPayload struct {
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text string `json:"text"`
}

func buildSetupMessage(cfg SessionConfig) setupMessage {
	var msg setupMessage
	msg.Setup.Model = cfg.Model
	msg.Setup.GenerationConfig = map[string]interface{}{
		"responseModalities": []string{"AUDIO"},
		"speechConfig": map[string]interface{}{
			"voiceConfig": map[string]interface{}{
				"prebuiltVoiceConfig": map[string]interface{}{"voiceName": cfg.Voice},
			},
		},
	}
	msg.Setup.SystemInstruction = instructionPayload{Parts: []partPayload{{Text: buildSystemPrompt(cfg)}}}
	msg.Setup.RealtimeInputConfig = map[string]interface{}{
		"automaticActivityDetection": map[string]interface{}{
			"startOfSpeechSensitivity": cfg.VAD.StartSensitivity,
			"endOfSpeechSensitivity":   cfg.VAD.EndSensitivity,
			"silenceDurationMs":        cfg.VAD.SilenceDurationMs,
		},
	}
	msg.Setup.InputAudioTranscription = map[string]interface{}{}
	msg.Setup.OutputAudioTranscription = map[string]interface{}{}
	return msg
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		MediaChunks []mediaChunk `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientContentMessage struct {
	ClientContent struct {
		Turns        []contentTurn `json:"turns"`
		TurnComplete bool          `json:"turnComplete"`
	} `json:"clientContent"`
}

type contentTurn struct {
	Role  string        `json:"role"`
	Parts []partPayload `json:"parts"`
}

// serverMessage mirrors the subset of BidiGenerateContent server messages
// the engine cares about.
type serverMessage struct {
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn *modelTurn `json:"modelTurn,omitempty"`

	InputTranscription  *transcriptionChunk `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionChunk `json:"outputTranscription,omitempty"`

	TurnComplete bool `json:"turnComplete,omitempty"`
	Interrupted  bool `json:"interrupted,omitempty"`
}

type transcriptionChunk struct {
	Text string `json:"text"`
}

type modelTurn struct {
	Parts []serverPart `json:"parts"`
}

type serverPart struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (s *wsSession) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling voice-ai message: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendRealtimeAudio writes a PCM chunk directly to the session socket; the
// call returns once the write completes, and there is no send queue.
// Failures are logged rather than surfaced, so a session error never
// aborts the caller (the phone->AI pump).
func (s *wsSession) SendRealtimeAudio(pcmLE16k []byte) {
	msg := realtimeInputMessage{}
	msg.RealtimeInput.MediaChunks = []mediaChunk{{
		MimeType: "audio/pcm;rate=16000",
		Data:     base64.StdEncoding.EncodeToString(pcmLE16k),
	}}
	if err := s.writeJSON(msg); err != nil {
		s.logger.Warnw("voice-ai: failed to send realtime audio", "error", err)
	}
}

// SendTextTurn injects a text-only turn, used once at session start so the
// model speaks first.
func (s *wsSession) SendTextTurn(ctx context.Context, text string, turnComplete bool) error {
	msg := clientContentMessage{}
	msg.ClientContent.Turns = []contentTurn{{Role: "user", Parts: []partPayload{{Text: text}}}}
	msg.ClientContent.TurnComplete = turnComplete
	return s.writeJSON(msg)
}

func (s *wsSession) Receive() <-chan Event {
	return s.events
}

func (s *wsSession) responseListener() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case s.events <- Event{Err: fmt.Errorf("voice-ai read error: %w", err)}:
			case <-s.done:
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warnw("voice-ai: dropping unparsable message", "error", err)
			continue
		}
		event := translateServerMessage(msg)
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func translateServerMessage(msg serverMessage) Event {
	var evt Event
	if msg.ServerContent == nil {
		return evt
	}
	sc := msg.ServerContent
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil {
				decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err == nil {
					evt.Audio = append(evt.Audio, decoded...)
				}
			}
		}
	}
	if sc.OutputTranscription != nil {
		evt.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.InputTranscription != nil {
		evt.InputTranscript = sc.InputTranscription.Text
	}
	evt.TurnComplete = sc.TurnComplete
	evt.Interrupted = sc.Interrupted
	return evt
}

// Close terminates the underlying connection, idempotently.
func (s *wsSession) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		closeErr = s.conn.Close()
	})
	return closeErr
}
