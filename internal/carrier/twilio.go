package carrier

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	twilio "github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

// twilioClient places and terminates calls via twilio-go; start_streaming
// isn't a first-class call-model operation in the SDK, so it is issued as a
// raw authenticated REST action instead.
type twilioClient struct {
	rest       *twilio.RestClient
	httpClient *resty.Client
	logger     commons.Logger
	fromNumber string
	accountSID string
	authToken  string
}

func newTwilioClient(cfg Config, httpClient *resty.Client, logger commons.Logger) (*twilioClient, error) {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.APIKey,
		Password: cfg.APISecret,
	})
	return &twilioClient{
		rest:       rest,
		httpClient: httpClient,
		logger:     logger,
		fromNumber: cfg.FromNumber,
		accountSID: cfg.APIKey,
		authToken:  cfg.APISecret,
	}, nil
}

func (c *twilioClient) Dial(ctx context.Context, to, webhookURL string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetUrl(webhookURL)

	resp, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio dial failed: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio dial returned no call sid")
	}
	return *resp.Sid, nil
}

func (c *twilioClient) StartStreaming(ctx context.Context, carrierCallID, streamURL string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.accountSID, c.authToken).
		SetFormData(map[string]string{
			"Url":    streamURL,
			"Track":  "both_tracks",
			"Status": "in-progress",
		}).
		Post(fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Calls/%s/Streams.json", c.accountSID, carrierCallID))
	if err != nil {
		return fmt.Errorf("twilio start-streaming request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("twilio start-streaming returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *twilioClient) Hangup(ctx context.Context, carrierCallID string) error {
	params := &twilioapi.UpdateCallParams{}
	params.SetStatus("completed")
	_, err := c.rest.Api.UpdateCall(carrierCallID, params)
	if err != nil {
		return fmt.Errorf("twilio hangup failed: %w", err)
	}
	return nil
}
