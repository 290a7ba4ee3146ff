package carrier

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	vonage "github.com/vonage/vonage-go-sdk"

	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

// vonageClient places and terminates calls via vonage-go-sdk's Voice API;
// start_streaming is issued as a raw REST action the same way as the
// Twilio backend, since neither SDK models mid-call stream attachment as a
// first-class call-control operation.
type vonageClient struct {
	voice      *vonage.VoiceClient
	httpClient *resty.Client
	logger     commons.Logger
	fromNumber string
	apiKey     string
	apiSecret  string
}

func newVonageClient(cfg Config, httpClient *resty.Client, logger commons.Logger) (*vonageClient, error) {
	auth := vonage.CreateAuthFromKeySecret(cfg.APIKey, cfg.APISecret)
	voiceClient := vonage.NewVoiceClient(auth)
	return &vonageClient{
		voice:      &voiceClient,
		httpClient: httpClient,
		logger:     logger,
		fromNumber: cfg.FromNumber,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
	}, nil
}

func (c *vonageClient) Dial(ctx context.Context, to, webhookURL string) (string, error) {
	result, _, err := c.voice.CreateCall(vonage.CreateCallOpts{
		To: []vonage.CallTo{{Type: "phone", Number: to}},
		From: vonage.CallFrom{
			Type:   "phone",
			Number: c.fromNumber,
		},
		AnswerUrl: []string{webhookURL},
	})
	if err != nil {
		return "", fmt.Errorf("vonage dial failed: %w", err)
	}
	if result.Uuid == "" {
		return "", fmt.Errorf("vonage dial returned no call uuid")
	}
	return result.Uuid, nil
}

func (c *vonageClient) StartStreaming(ctx context.Context, carrierCallID, streamURL string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.apiKey, c.apiSecret).
		SetBody(map[string]interface{}{
			"streamUrl": []string{streamURL},
		}).
		Put(fmt.Sprintf("https://api.nexmo.com/v1/calls/%s/stream", carrierCallID))
	if err != nil {
		return fmt.Errorf("vonage start-streaming request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("vonage start-streaming returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *vonageClient) Hangup(ctx context.Context, carrierCallID string) error {
	_, _, err := c.voice.UpdateCall(carrierCallID, vonage.UpdateCallOpts{Action: "hangup"})
	if err != nil {
		return fmt.Errorf("vonage hangup failed: %w", err)
	}
	return nil
}
