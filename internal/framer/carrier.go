// Package framer parses and serializes the carrier's JSON-over-WebSocket
// media-stream protocol: start, media, and stop frames.
package framer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Encoding is the wire audio codec announced by the carrier.
type Encoding string

const (
	EncodingPCMU Encoding = "PCMU"
	EncodingL16  Encoding = "L16"
)

// MediaFormat is the format announced in a start frame.
type MediaFormat struct {
	Encoding   Encoding
	SampleRate int
}

// DefaultMediaFormat is used when a start frame omits the format.
func DefaultMediaFormat() MediaFormat {
	return MediaFormat{Encoding: EncodingL16, SampleRate: 16000}
}

type rawFrame struct {
	Event string          `json:"event"`
	Start *rawStart       `json:"start,omitempty"`
	Media *rawMedia       `json:"media,omitempty"`
	Stop  json.RawMessage `json:"stop,omitempty"`
}

type rawStart struct {
	MediaFormat *rawMediaFormat `json:"mediaFormat,omitempty"`
}

type rawMediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type rawMedia struct {
	Payload string `json:"payload"`
}

// FrameKind identifies which carrier event a parsed frame represents.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameStart
	FrameMedia
	FrameStop
)

// ParsedFrame is the result of parsing one incoming carrier WS text frame.
type ParsedFrame struct {
	Kind        FrameKind
	MediaFormat MediaFormat // valid when Kind == FrameStart
	Audio       []byte      // valid when Kind == FrameMedia; nil if payload missing
}

// Parse decodes a single JSON text frame from the carrier media WS.
func Parse(raw []byte) (ParsedFrame, error) {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ParsedFrame{}, fmt.Errorf("parsing carrier frame: %w", err)
	}

	switch f.Event {
	case "start":
		format := DefaultMediaFormat()
		if f.Start != nil && f.Start.MediaFormat != nil {
			if f.Start.MediaFormat.Encoding != "" {
				format.Encoding = Encoding(f.Start.MediaFormat.Encoding)
			}
			if f.Start.MediaFormat.SampleRate != 0 {
				format.SampleRate = f.Start.MediaFormat.SampleRate
			}
		}
		return ParsedFrame{Kind: FrameStart, MediaFormat: format}, nil
	case "media":
		if f.Media == nil || f.Media.Payload == "" {
			return ParsedFrame{Kind: FrameMedia, Audio: nil}, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(f.Media.Payload)
		if err != nil {
			return ParsedFrame{}, fmt.Errorf("decoding media payload: %w", err)
		}
		return ParsedFrame{Kind: FrameMedia, Audio: decoded}, nil
	case "stop":
		return ParsedFrame{Kind: FrameStop}, nil
	default:
		return ParsedFrame{Kind: FrameUnknown}, nil
	}
}

// SerializeMedia produces the outbound media frame carrying audio as
// base64-encoded payload.
func SerializeMedia(audio []byte) ([]byte, error) {
	type mediaPayload struct {
		Payload string `json:"payload"`
	}
	type mediaFrame struct {
		Event string       `json:"event"`
		Media mediaPayload `json:"media"`
	}

	frame := mediaFrame{
		Event: "media",
		Media: mediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("serializing media frame: %w", err)
	}
	return out, nil
}
