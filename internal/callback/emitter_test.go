package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/audiobridge/internal/callmodel"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

func testLogger() commons.Logger {
	return commons.NewLogger(commons.LogConfig{})
}

func TestStatusUpdateSendsBearerAuthAndBody(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New("secret-token", testLogger())
	e.StatusUpdate(context.Background(), srv.URL, "c1", callmodel.StatusDialing)

	waitFor(t, func() bool { return gotAuth != "" })
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "c1", gotBody["call_id"])
	assert.Equal(t, "status_update", gotBody["event"])
	assert.Equal(t, "dialing", gotBody["status"])
}

func TestPostSkippedForEmptyCallbackURL(t *testing.T) {
	e := New("secret", testLogger())
	// Should not panic or block on an empty URL.
	e.StatusUpdate(context.Background(), "", "c1", callmodel.StatusFailed)
}

func TestCallCompletedIncludesTranscript(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New("secret", testLogger())
	transcript := []callmodel.TranscriptEntry{{Speaker: callmodel.SpeakerAgent, Text: "hi", Timestamp: time.Now()}}
	e.CallCompleted(context.Background(), srv.URL, "c1", callmodel.StatusCompleted, "summary text", 12.5, transcript)

	waitFor(t, func() bool { return gotBody != nil })
	require.NotNil(t, gotBody)
	assert.Equal(t, "summary text", gotBody["summary"])
	assert.Equal(t, 12.5, gotBody["duration_seconds"])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
