package voiceai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// apologySummary substitutes for a summary that failed to generate.
const apologySummary = "A summary could not be generated for this call."

// TranscriptLine is the minimal shape Summarize needs from a transcript
// entry, kept local to avoid a dependency on the call record package.
type TranscriptLine struct {
	Speaker string
	Text    string
}

// Summarizer produces a short natural-language summary of a completed
// call's transcript. It is a request/response call, unlike the realtime
// session, so it is built directly on the official SDK client.
type Summarizer struct {
	client *genai.Client
	model  string
}

// NewSummarizer constructs a Summarizer backed by the given API key.
func NewSummarizer(ctx context.Context, apiKey, model string) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Summarizer{client: client, model: model}, nil
}

// Summarize renders a transcript to a prompt and returns a one-paragraph
// summary. On any error it returns the fixed apology string rather than
// propagating an error, so a failed summary never blocks call completion.
func (s *Summarizer) Summarize(ctx context.Context, transcript []TranscriptLine) string {
	if len(transcript) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Summarize this phone call transcript in two or three sentences.\n\n")
	for _, e := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(b.String()), nil)
	if err != nil || resp == nil {
		return apologySummary
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return apologySummary
	}
	return text
}

// Moderator checks a briefing for policy violations before a call is
// placed. A rejection is reported as false, which the ingress layer turns
// into a 422 response; an error means the check itself failed, and the
// ingress layer then lets the call proceed.
type Moderator interface {
	Allowed(ctx context.Context, briefing string) (bool, error)
}

type genaiModerator struct {
	client *genai.Client
	model  string
}

// NewModerator constructs a Moderator backed by the given API key.
func NewModerator(ctx context.Context, apiKey, model string) (Moderator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &genaiModerator{client: client, model: model}, nil
}

func (m *genaiModerator) Allowed(ctx context.Context, briefing string) (bool, error) {
	prompt := "Respond with exactly one word, ALLOW or REJECT: should an autonomous " +
		"phone agent be permitted to attempt the following task on a live call? " +
		"Reject anything illegal, harassing, or deceptive about the caller's identity.\n\nTask: " + briefing

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), nil)
	if err != nil {
		return false, fmt.Errorf("moderation request failed: %w", err)
	}
	verdict := strings.ToUpper(strings.TrimSpace(resp.Text()))
	return strings.HasPrefix(verdict, "ALLOW"), nil
}
