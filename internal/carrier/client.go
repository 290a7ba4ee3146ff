// Package carrier implements the carrier control client: placing calls,
// starting bidirectional media streaming on an answered call, and hanging
// up. Two concrete backends (Twilio, Vonage) implement the same interface;
// the engine is indifferent to which is configured.
package carrier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

// requestTimeout bounds the raw REST calls issued through resty
// (start-streaming). Dial and Hangup go through the carrier SDKs' own HTTP
// clients and are not bounded by it.
const requestTimeout = 12 * time.Second

// Client places, streams, and terminates carrier calls.
type Client interface {
	// Dial places an outbound call to "to", directing carrier webhooks to
	// webhookURL. Streaming is intentionally not configured here.
	Dial(ctx context.Context, to, webhookURL string) (carrierCallID string, err error)

	// StartStreaming starts inbound+bidirectional media on an already
	// answered call. Idempotent on the caller's side. Neither backend
	// requests a codec; the stream uses whatever format the carrier
	// announces in its start frame.
	StartStreaming(ctx context.Context, carrierCallID, streamURL string) error

	// Hangup terminates the call.
	Hangup(ctx context.Context, carrierCallID string) error
}

// Config parameterizes backend construction.
type Config struct {
	Provider     string // "twilio" or "vonage"
	APIKey       string
	APISecret    string
	ConnectionID string
	FromNumber   string
}

// New constructs the configured Client backend.
func New(cfg Config, logger commons.Logger) (Client, error) {
	httpClient := resty.New().SetTimeout(requestTimeout)

	switch cfg.Provider {
	case "twilio":
		return newTwilioClient(cfg, httpClient, logger)
	case "vonage":
		return newVonageClient(cfg, httpClient, logger)
	default:
		return nil, fmt.Errorf("unsupported carrier provider %q", cfg.Provider)
	}
}
