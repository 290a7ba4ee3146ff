// Package engine implements the per-call streaming engine: the state
// machine driving a call through its lifecycle, the media bridge between
// the carrier and the voice-AI session, and transcript assembly.
package engine

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/audiobridge/internal/audio"
	"github.com/rapidaai/audiobridge/internal/callback"
	"github.com/rapidaai/audiobridge/internal/callmodel"
	"github.com/rapidaai/audiobridge/internal/carrier"
	"github.com/rapidaai/audiobridge/internal/framer"
	"github.com/rapidaai/audiobridge/internal/registry"
	"github.com/rapidaai/audiobridge/internal/voiceai"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

const (
	noAnswerTimeout       = 30 * time.Second
	maxCallDurationSafety = 5*time.Minute + 30*time.Second
	maxCallDuration       = 5 * time.Minute
	answerPollInterval    = 200 * time.Millisecond
	initialGreeting       = "The phone call is now connected… Begin the conversation now."
)

// Options configures a new Engine.
type Options struct {
	PublicURL        string
	VoiceModelAPIKey string
	VoiceModelName   string
	VoiceName        string
	CarrierBigEndian bool
}

// StartCallRequest is the input to StartCall.
type StartCallRequest struct {
	CallID      string
	PhoneNumber string
	Briefing    string
	Language    string
	UserName    string
	CallbackURL string
}

// Engine drives every in-flight call's state machine and media bridging.
type Engine struct {
	registry      *registry.Registry
	carrierClient carrier.Client
	emitter       *callback.Emitter
	summarizer    *voiceai.Summarizer
	logger        commons.Logger
	opts          Options
}

// New constructs an Engine with its collaborators.
func New(reg *registry.Registry, carrierClient carrier.Client, emitter *callback.Emitter, summarizer *voiceai.Summarizer, logger commons.Logger, opts Options) *Engine {
	return &Engine{
		registry:      reg,
		carrierClient: carrierClient,
		emitter:       emitter,
		summarizer:    summarizer,
		logger:        logger,
		opts:          opts,
	}
}

// StartCall registers a new call record and places the outbound dial.
func (e *Engine) StartCall(ctx context.Context, req StartCallRequest) (string, error) {
	rec := callmodel.NewRecord(req.CallID, req.PhoneNumber, req.Briefing, req.Language, req.UserName, req.CallbackURL)
	e.registry.Insert(rec)

	webhookURL := e.opts.PublicURL + "/telnyx/webhook"
	carrierCallID, err := e.carrierClient.Dial(ctx, req.PhoneNumber, webhookURL)
	if err != nil {
		e.registry.Remove(rec.CallID)
		e.emitter.StatusUpdate(ctx, rec.CallbackURL, rec.CallID, callmodel.StatusFailed)
		return "", fmt.Errorf("dial failed: %w", err)
	}

	rec.Lock()
	rec.CarrierCallID = carrierCallID
	rec.Status = callmodel.StatusDialing
	rec.Unlock()
	e.emitter.StatusUpdate(ctx, rec.CallbackURL, rec.CallID, callmodel.StatusDialing)

	e.armTimers(rec)
	return carrierCallID, nil
}

// EndCall implements user-initiated termination.
func (e *Engine) EndCall(ctx context.Context, callID string) {
	rec, found := e.registry.Get(callID)
	if !found {
		return
	}

	rec.Lock()
	carrierCallID := rec.CarrierCallID
	rec.Unlock()

	if carrierCallID != "" {
		if err := e.carrierClient.Hangup(ctx, carrierCallID); err != nil {
			e.logger.Warnw("hangup failed during user-initiated end, proceeding with cleanup", "call_id", callID, "error", err)
		}
	}
	e.completeCall(ctx, rec, false)
}

// HandleAnswered signals the call as answered and starts carrier media
// streaming, in response to the call.answered webhook.
func (e *Engine) HandleAnswered(ctx context.Context, carrierCallID string) error {
	rec, found := e.registry.LookupByCarrierCallID(carrierCallID)
	if !found {
		return fmt.Errorf("no call record for carrier call id %s", carrierCallID)
	}
	rec.SignalAnswered()

	streamURL := e.mediaStreamURL(rec.CallID)
	if err := e.carrierClient.StartStreaming(ctx, carrierCallID, streamURL); err != nil {
		e.logger.Errorf("start-streaming failed for %s: %v", rec.CallID, err)
		e.completeCall(ctx, rec, true)
		return fmt.Errorf("start-streaming failed: %w", err)
	}
	return nil
}

// HandleHangup implements the call.hangup webhook. Unknown or
// already-completed calls are a no-op, matching the idempotent-by-removal
// completion semantics.
func (e *Engine) HandleHangup(ctx context.Context, carrierCallID string) {
	rec, found := e.registry.LookupByCarrierCallID(carrierCallID)
	if !found {
		return
	}
	e.completeCall(ctx, rec, false)
}

// HandleMediaWS drives one incoming carrier media socket for the lifetime
// of the connection. It owns conn and closes it before returning.
func (e *Engine) HandleMediaWS(ctx context.Context, callID string, conn *websocket.Conn) {
	defer conn.Close()

	rec, found := e.registry.Get(callID)
	if !found {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown call_id"),
			time.Now().Add(time.Second))
		return
	}

	answered := false
	select {
	case <-rec.AnswerSignal():
		answered = true
	default:
	}
	if !answered {
		if closedFirst := e.raceAnswerOrEarlyClose(rec, conn); closedFirst {
			return // early-media case: WS closed before the call was answered
		}
		conn.SetReadDeadline(time.Time{})
	}

	// ReaderCancel is set once a session has been opened; a session cleared
	// after an error is not reopened.
	rec.Lock()
	firstConnection := rec.VoiceSession == nil && rec.ReaderCancel == nil
	rec.Unlock()

	if firstConnection {
		if err := e.openSessionForFirstConnection(ctx, rec); err != nil {
			e.logger.Errorf("failed to open voice-ai session for %s: %v", rec.CallID, err)
			e.completeCall(ctx, rec, true)
			return
		}
	}

	rec.Lock()
	rec.CurrentWS = conn
	rec.Unlock()

	e.phoneToAIPump(rec, conn)

	rec.Lock()
	if rec.CurrentWS == conn {
		rec.CurrentWS = nil
	}
	rec.Unlock()
}

// raceAnswerOrEarlyClose polls for the answer signal while discarding
// early-media frames from conn, returning true if the WS closes before the
// call is answered. Polling (rather than a second goroutine reading the
// same connection) avoids two goroutines calling ReadMessage concurrently,
// which gorilla/websocket does not support.
func (e *Engine) raceAnswerOrEarlyClose(rec *callmodel.Record, conn *websocket.Conn) (closedFirst bool) {
	for {
		select {
		case <-rec.AnswerSignal():
			return false
		default:
		}

		conn.SetReadDeadline(time.Now().Add(answerPollInterval))
		_, _, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return true
		}
		// Early-media frame (ringback/comfort noise): nothing to forward
		// to yet since no voice-ai session exists before answer.
	}
}

func (e *Engine) openSessionForFirstConnection(ctx context.Context, rec *callmodel.Record) error {
	rec.Lock()
	rec.Status = callmodel.StatusConnected
	rec.ConnectedTime = time.Now()
	rec.Unlock()
	e.emitter.StatusUpdate(ctx, rec.CallbackURL, rec.CallID, callmodel.StatusConnected)

	sessionCtx := context.Background()
	session, err := voiceai.Open(sessionCtx, e.logger, e.sessionConfig(rec))
	if err != nil {
		return err
	}

	rec.Lock()
	rec.VoiceSession = session
	rec.Unlock()

	if err := session.SendTextTurn(sessionCtx, initialGreeting, true); err != nil {
		e.logger.Warnw("failed to send initial text turn", "call_id", rec.CallID, "error", err)
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	rec.Lock()
	rec.ReaderCancel = cancel
	rec.Unlock()

	go e.runPersistentReader(readerCtx, rec)
	return nil
}

func (e *Engine) sessionConfig(rec *callmodel.Record) voiceai.SessionConfig {
	return voiceai.SessionConfig{
		APIKey:   e.opts.VoiceModelAPIKey,
		Model:    e.opts.VoiceModelName,
		Voice:    e.opts.VoiceName,
		Briefing: rec.Briefing,
		UserName: rec.UserName,
		Language: rec.Language,
		VAD: voiceai.VADConfig{
			StartSensitivity:  "START_SENSITIVITY_LOW",
			EndSensitivity:    "END_SENSITIVITY_LOW",
			SilenceDurationMs: 500,
		},
	}
}

// phoneToAIPump reads carrier media frames off conn and forwards decoded
// audio to the voice-AI session for the lifetime of the connection.
func (e *Engine) phoneToAIPump(rec *callmodel.Record, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := framer.Parse(data)
		if err != nil {
			e.logger.Warnw("dropping unparsable carrier frame", "call_id", rec.CallID, "error", err)
			continue
		}

		switch frame.Kind {
		case framer.FrameStart:
			rec.Lock()
			rec.StreamCodec = frame.MediaFormat.Encoding
			rec.StreamSampleRate = frame.MediaFormat.SampleRate
			rec.Unlock()
		case framer.FrameStop:
			return
		case framer.FrameMedia:
			if frame.Audio != nil {
				e.forwardPhoneAudio(rec, frame.Audio)
			}
		}
	}
}

func (e *Engine) forwardPhoneAudio(rec *callmodel.Record, raw []byte) {
	rec.Lock()
	codec := rec.StreamCodec
	sampleRate := rec.StreamSampleRate
	session := rec.VoiceSession
	rec.Unlock()

	if session == nil {
		return
	}

	var pcm []byte
	switch codec {
	case framer.EncodingPCMU:
		pcm = audio.DecodeUlaw(raw)
		pcm = audio.Resample(pcm, sampleRate, 16000)
	default: // L16: little-endian unless the carrier is configured as big-endian
		pcm = raw
		if e.opts.CarrierBigEndian {
			pcm = audio.SwapEndian16(pcm)
		}
		pcm = audio.Resample(pcm, sampleRate, 16000)
	}
	session.SendRealtimeAudio(pcm)
}

// runPersistentReader consumes the voice-AI session's event stream for the
// entire call, living across media WS reconnects.
func (e *Engine) runPersistentReader(ctx context.Context, rec *callmodel.Record) {
	rec.Lock()
	session := rec.VoiceSession
	rec.Unlock()
	if session == nil {
		return
	}
	events := session.Receive()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Err != nil {
				e.logger.Errorf("voice-ai session error for %s: %v", rec.CallID, evt.Err)
				rec.Lock()
				rec.VoiceSession = nil
				rec.Unlock()
				return
			}

			rec.Lock()
			connectedTime := rec.ConnectedTime
			rec.Unlock()
			if !connectedTime.IsZero() && time.Since(connectedTime) > maxCallDuration {
				return
			}

			if len(evt.Audio) > 0 {
				e.sendPacedAudio(ctx, rec, evt.Audio)
			}
			if evt.OutputTranscript != "" {
				e.appendAgentFragment(ctx, rec, evt.OutputTranscript)
			}
			if evt.InputTranscript != "" {
				e.appendCalleeFragment(ctx, rec, evt.InputTranscript)
			}
			if evt.Interrupted {
				rec.Lock()
				rec.NextSendTime = time.Now()
				rec.Unlock()
				e.flushAgentBuffer(ctx, rec)
			}
			if evt.TurnComplete {
				e.flushAgentBuffer(ctx, rec)
			}
		}
	}
}

// sendPacedAudio resamples, optionally byte-swaps, and chunks AI-generated
// audio, writing each chunk to the phone leg on a real-time 20ms cadence.
func (e *Engine) sendPacedAudio(ctx context.Context, rec *callmodel.Record, aiAudio []byte) {
	rec.Lock()
	sampleRate := rec.StreamSampleRate
	wsSnapshot := rec.CurrentWS
	rec.Unlock()

	pcm := audio.Resample(aiAudio, 24000, sampleRate)
	if e.opts.CarrierBigEndian {
		pcm = audio.SwapEndian16(pcm)
	}
	chunkSize := audio.ChunkSizeFor20ms(sampleRate)
	chunks := audio.Chunk(pcm, chunkSize)

	rec.Lock()
	if rec.NextSendTime.IsZero() {
		rec.NextSendTime = time.Now()
	}
	rec.Unlock()

	for _, chunk := range chunks {
		rec.Lock()
		currentWS := rec.CurrentWS
		rec.Unlock()

		if currentWS != wsSnapshot {
			return // current_media_ws changed mid-batch: abort, old WS is being replaced
		}
		if currentWS == nil {
			rec.Lock()
			rec.DroppedChunks++
			rec.Unlock()
			continue
		}

		mediaFrame, err := framer.SerializeMedia(chunk)
		if err != nil {
			e.logger.Warnw("failed to serialize media frame", "call_id", rec.CallID, "error", err)
			continue
		}
		if err := currentWS.WriteMessage(websocket.TextMessage, mediaFrame); err != nil {
			e.logger.Warnw("failed to write media frame, dropping remainder of batch", "call_id", rec.CallID, "error", err)
			return
		}
		rec.Lock()
		rec.SentChunks++
		rec.NextSendTime = rec.NextSendTime.Add(20 * time.Millisecond)
		sleepFor := time.Until(rec.NextSendTime)
		if sleepFor <= 0 {
			rec.NextSendTime = time.Now()
		}
		rec.Unlock()

		if sleepFor > 0 {
			select {
			case <-time.After(sleepFor):
			case <-ctx.Done():
				return
			}
		}
	}
}

// appendAgentFragment handles the agent half of transcript assembly:
// flush the callee buffer, then append to the agent buffer.
func (e *Engine) appendAgentFragment(ctx context.Context, rec *callmodel.Record, fragment string) {
	rec.Lock()
	calleeText := rec.CalleeBuffer
	rec.CalleeBuffer = ""
	rec.AgentBuffer += fragment
	rec.Unlock()
	e.flushEntry(ctx, rec, callmodel.SpeakerCallee, calleeText)
}

// appendCalleeFragment implements the callee half: flush the agent buffer,
// then append to the callee buffer.
func (e *Engine) appendCalleeFragment(ctx context.Context, rec *callmodel.Record, fragment string) {
	rec.Lock()
	agentText := rec.AgentBuffer
	rec.AgentBuffer = ""
	rec.CalleeBuffer += fragment
	rec.Unlock()
	e.flushEntry(ctx, rec, callmodel.SpeakerAgent, agentText)
}

func (e *Engine) flushAgentBuffer(ctx context.Context, rec *callmodel.Record) {
	rec.Lock()
	agentText := rec.AgentBuffer
	rec.AgentBuffer = ""
	rec.Unlock()
	e.flushEntry(ctx, rec, callmodel.SpeakerAgent, agentText)
}

func (e *Engine) flushEntry(ctx context.Context, rec *callmodel.Record, speaker callmodel.Speaker, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	entry := callmodel.TranscriptEntry{Speaker: speaker, Text: trimmed, Timestamp: time.Now().UTC()}

	rec.Lock()
	rec.Transcript = append(rec.Transcript, entry)
	callbackURL := rec.CallbackURL
	callID := rec.CallID
	rec.Unlock()

	go e.emitter.TranscriptUpdate(ctx, callbackURL, callID, entry)
}

// completeCall tears down a call's resources exactly once; idempotent by
// removal from the registry.
func (e *Engine) completeCall(ctx context.Context, rec *callmodel.Record, failed bool) {
	if !e.registry.Remove(rec.CallID) {
		return
	}

	rec.Lock()
	alreadyTerminal := rec.Status.IsTerminal()
	rec.Unlock()
	if alreadyTerminal {
		return
	}

	e.stopTimers(rec)

	rec.Lock()
	cancel := rec.ReaderCancel
	rec.Unlock()
	if cancel != nil {
		cancel()
	}

	rec.Lock()
	session := rec.VoiceSession
	rec.VoiceSession = nil
	rec.Unlock()
	if session != nil {
		_ = session.Close()
	}

	e.flushAgentBuffer(ctx, rec)
	rec.Lock()
	calleeText := rec.CalleeBuffer
	rec.CalleeBuffer = ""
	rec.Unlock()
	e.flushEntry(ctx, rec, callmodel.SpeakerCallee, calleeText)

	rec.Lock()
	connectedTime := rec.ConnectedTime
	transcript := append([]callmodel.TranscriptEntry(nil), rec.Transcript...)
	sentChunks := rec.SentChunks
	droppedChunks := rec.DroppedChunks
	rec.Unlock()

	e.logger.Debugf("audio pacing summary for %s: sent=%d dropped=%d", rec.CallID, sentChunks, droppedChunks)

	duration := 0.0
	if !connectedTime.IsZero() {
		duration = time.Since(connectedTime).Seconds()
	}

	summary := ""
	if !failed && len(transcript) > 0 && e.summarizer != nil {
		lines := make([]voiceai.TranscriptLine, len(transcript))
		for i, entry := range transcript {
			lines[i] = voiceai.TranscriptLine{Speaker: string(entry.Speaker), Text: entry.Text}
		}
		summary = e.summarizer.Summarize(ctx, lines)
	}

	finalStatus := callmodel.StatusCompleted
	if failed {
		finalStatus = callmodel.StatusFailed
	}
	rec.Lock()
	rec.Status = finalStatus
	rec.Unlock()

	e.emitter.CallCompleted(ctx, rec.CallbackURL, rec.CallID, finalStatus, summary, duration, transcript)
}

func (e *Engine) armTimers(rec *callmodel.Record) {
	rec.Lock()
	rec.NoAnswerTimer = time.AfterFunc(noAnswerTimeout, func() {
		rec.Lock()
		status := rec.Status
		rec.Unlock()
		if status == callmodel.StatusPending || status == callmodel.StatusDialing || status == callmodel.StatusRinging {
			e.completeCall(context.Background(), rec, true)
		}
	})
	rec.MaxDurationTimer = time.AfterFunc(maxCallDurationSafety, func() {
		rec.Lock()
		terminal := rec.Status.IsTerminal()
		rec.Unlock()
		if !terminal {
			e.completeCall(context.Background(), rec, false)
		}
	})
	rec.Unlock()
}

func (e *Engine) stopTimers(rec *callmodel.Record) {
	rec.Lock()
	if rec.NoAnswerTimer != nil {
		rec.NoAnswerTimer.Stop()
	}
	if rec.MaxDurationTimer != nil {
		rec.MaxDurationTimer.Stop()
	}
	rec.Unlock()
}

func (e *Engine) mediaStreamURL(callID string) string {
	wsBase := e.opts.PublicURL
	wsBase = strings.Replace(wsBase, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)
	return fmt.Sprintf("%s/telnyx/media-stream?call_id=%s", wsBase, callID)
}
