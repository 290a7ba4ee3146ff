// Package callmodel defines the in-flight call record and its supporting
// types, shared by the registry, engine, and ingress packages.
package callmodel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rapidaai/audiobridge/internal/framer"
	"github.com/rapidaai/audiobridge/internal/voiceai"
)

// Status is one of the call's lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDialing   Status = "dialing"
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCallee Speaker = "callee"
)

// TranscriptEntry is one turn-aligned, flushed transcript line.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the call record: one per in-flight call. Fields are only ever
// mutated by the engine's goroutines for that call; cross-call code only
// inserts, looks up, or removes whole records via the registry.
type Record struct {
	mu sync.Mutex

	CallID         string
	CarrierCallID  string
	PhoneNumber    string
	Briefing       string
	Language       string
	UserName       string
	CallbackURL    string

	Status        Status
	Transcript    []TranscriptEntry
	StartTime     time.Time
	ConnectedTime time.Time

	answerOnce   sync.Once
	answerCh     chan struct{}
	VoiceSession voiceai.Session
	CurrentWS    *websocket.Conn

	StreamCodec       framer.Encoding
	StreamSampleRate  int

	AgentBuffer  string
	CalleeBuffer string

	NextSendTime time.Time

	SentChunks    uint64
	DroppedChunks uint64

	ReaderCancel func()

	NoAnswerTimer    *time.Timer
	MaxDurationTimer *time.Timer
}

// NewRecord constructs a fresh pending call record.
func NewRecord(callID, phoneNumber, briefing, language, userName, callbackURL string) *Record {
	format := framer.DefaultMediaFormat()
	return &Record{
		CallID:           callID,
		PhoneNumber:      phoneNumber,
		Briefing:         briefing,
		Language:         language,
		UserName:         userName,
		CallbackURL:      callbackURL,
		Status:           StatusPending,
		StartTime:        time.Now(),
		answerCh:         make(chan struct{}),
		StreamCodec:      format.Encoding,
		StreamSampleRate: format.SampleRate,
	}
}

// Lock/Unlock expose the record's mutex so the engine can guard
// multi-field transitions atomically without a larger lock hierarchy.
func (r *Record) Lock()   { r.mu.Lock() }
func (r *Record) Unlock() { r.mu.Unlock() }

// SignalAnswered marks the one-shot answer signal. Safe to call more than
// once; only the first call has effect.
func (r *Record) SignalAnswered() {
	r.answerOnce.Do(func() { close(r.answerCh) })
}

// AnswerSignal returns the channel that closes when the call is answered.
func (r *Record) AnswerSignal() <-chan struct{} {
	return r.answerCh
}
