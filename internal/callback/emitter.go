// Package callback posts status, transcript, and completion events to the
// external orchestrator over HTTP with a bearer token. Delivery errors are
// logged and never block the call.
package callback

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/audiobridge/internal/callmodel"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

const requestTimeout = 10 * time.Second

// Emitter posts events to a call's callback_url.
type Emitter struct {
	client       *resty.Client
	logger       commons.Logger
	bridgeSecret string
}

// New constructs an Emitter with a shared, connection-pooled HTTP client.
func New(bridgeSecret string, logger commons.Logger) *Emitter {
	return &Emitter{
		client:       resty.New().SetTimeout(requestTimeout),
		logger:       logger,
		bridgeSecret: bridgeSecret,
	}
}

// StatusUpdate reports a status transition.
func (e *Emitter) StatusUpdate(ctx context.Context, callbackURL, callID string, status callmodel.Status) {
	e.post(ctx, callbackURL, map[string]interface{}{
		"call_id": callID,
		"event":   "status_update",
		"status":  status,
	})
}

// TranscriptUpdate reports one flushed transcript entry.
func (e *Emitter) TranscriptUpdate(ctx context.Context, callbackURL, callID string, entry callmodel.TranscriptEntry) {
	e.post(ctx, callbackURL, map[string]interface{}{
		"call_id": callID,
		"event":   "transcript_update",
		"transcript_entry": map[string]interface{}{
			"speaker":   entry.Speaker,
			"text":      entry.Text,
			"timestamp": entry.Timestamp,
		},
	})
}

// CallCompleted reports the final outcome of the call.
func (e *Emitter) CallCompleted(ctx context.Context, callbackURL, callID string, status callmodel.Status, summary string, durationSeconds float64, transcript []callmodel.TranscriptEntry) {
	e.post(ctx, callbackURL, map[string]interface{}{
		"call_id":          callID,
		"event":            "call_completed",
		"status":           status,
		"summary":          summary,
		"duration_seconds": durationSeconds,
		"transcript":       transcript,
	})
}

func (e *Emitter) post(ctx context.Context, callbackURL string, body map[string]interface{}) {
	if callbackURL == "" {
		return
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetAuthToken(e.bridgeSecret).
		SetBody(body).
		Post(callbackURL)
	if err != nil {
		e.logger.Warnw("callback delivery failed", "url", callbackURL, "error", err)
		return
	}
	if resp.IsError() {
		e.logger.Warnw("callback delivery rejected", "url", callbackURL, "status", resp.StatusCode())
	}
}
