package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/audiobridge/internal/callback"
	"github.com/rapidaai/audiobridge/internal/callmodel"
	"github.com/rapidaai/audiobridge/internal/registry"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

type fakeCarrierClient struct {
	dialCallID      string
	dialErr         error
	startStreamErr  error
	hangupErr       error
	hangupCallCount int
}

func (f *fakeCarrierClient) Dial(ctx context.Context, to, webhookURL string) (string, error) {
	if f.dialErr != nil {
		return "", f.dialErr
	}
	return f.dialCallID, nil
}

func (f *fakeCarrierClient) StartStreaming(ctx context.Context, carrierCallID, streamURL string) error {
	return f.startStreamErr
}

func (f *fakeCarrierClient) Hangup(ctx context.Context, carrierCallID string) error {
	f.hangupCallCount++
	return f.hangupErr
}

func testLogger() commons.Logger {
	return commons.NewLogger(commons.LogConfig{Console: false})
}

func newTestEngine(cc *fakeCarrierClient) (*Engine, *registry.Registry) {
	reg := registry.New()
	emitter := callback.New("secret", testLogger())
	eng := New(reg, cc, emitter, nil, testLogger(), Options{PublicURL: "https://bridge.example.com"})
	return eng, reg
}

func TestStartCallSuccess(t *testing.T) {
	cc := &fakeCarrierClient{dialCallID: "carrier-abc"}
	eng, reg := newTestEngine(cc)

	carrierCallID, err := eng.StartCall(context.Background(), StartCallRequest{
		CallID:      "c1",
		PhoneNumber: "+15551234567",
		Briefing:    "book a table",
		Language:    "auto",
		UserName:    "Alice",
		CallbackURL: "",
	})
	require.NoError(t, err)
	assert.Equal(t, "carrier-abc", carrierCallID)

	rec, found := reg.Get("c1")
	require.True(t, found)
	assert.Equal(t, callmodel.StatusDialing, rec.Status)
	assert.Equal(t, "carrier-abc", rec.CarrierCallID)

	eng.stopTimers(rec)
}

func TestStartCallDialFailureRemovesRecord(t *testing.T) {
	cc := &fakeCarrierClient{dialErr: assertErr("boom")}
	eng, reg := newTestEngine(cc)

	_, err := eng.StartCall(context.Background(), StartCallRequest{CallID: "c2", PhoneNumber: "+1"})
	require.Error(t, err)

	_, found := reg.Get("c2")
	assert.False(t, found)
}

func TestHandleAnsweredSignalsAndStartsStreaming(t *testing.T) {
	cc := &fakeCarrierClient{}
	eng, reg := newTestEngine(cc)

	rec := callmodel.NewRecord("c3", "+1", "b", "auto", "A", "")
	rec.CarrierCallID = "carrier-xyz"
	reg.Insert(rec)

	err := eng.HandleAnswered(context.Background(), "carrier-xyz")
	require.NoError(t, err)

	select {
	case <-rec.AnswerSignal():
	default:
		t.Fatal("expected answer signal to be set")
	}
}

func TestHandleAnsweredStreamingFailureCompletesAsFailed(t *testing.T) {
	cc := &fakeCarrierClient{startStreamErr: assertErr("stream failed")}
	eng, reg := newTestEngine(cc)

	rec := callmodel.NewRecord("c4", "+1", "b", "auto", "A", "")
	rec.CarrierCallID = "carrier-4"
	reg.Insert(rec)

	err := eng.HandleAnswered(context.Background(), "carrier-4")
	require.Error(t, err)

	_, found := reg.Get("c4")
	assert.False(t, found, "failed call should be removed from the registry")
}

func TestCompleteCallIsIdempotent(t *testing.T) {
	cc := &fakeCarrierClient{}
	eng, reg := newTestEngine(cc)

	rec := callmodel.NewRecord("c5", "+1", "b", "auto", "A", "")
	reg.Insert(rec)

	eng.completeCall(context.Background(), rec, false)
	assert.Equal(t, callmodel.StatusCompleted, rec.Status)

	statusBefore := rec.Status
	eng.completeCall(context.Background(), rec, true)
	assert.Equal(t, statusBefore, rec.Status, "second completeCall must be a no-op")
}

func TestTranscriptAssemblyFlushesOnSpeakerChange(t *testing.T) {
	cc := &fakeCarrierClient{}
	eng, _ := newTestEngine(cc)

	rec := callmodel.NewRecord("c6", "+1", "b", "auto", "A", "")
	ctx := context.Background()

	eng.appendAgentFragment(ctx, rec, "Hello")
	eng.appendAgentFragment(ctx, rec, " there")
	eng.appendCalleeFragment(ctx, rec, "Hi")

	time.Sleep(10 * time.Millisecond) // allow async callback goroutine to run

	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, callmodel.SpeakerAgent, rec.Transcript[0].Speaker)
	assert.Equal(t, "Hello there", rec.Transcript[0].Text)
	assert.Equal(t, "Hi", rec.CalleeBuffer)
}

func TestFlushAgentBufferOnTurnComplete(t *testing.T) {
	cc := &fakeCarrierClient{}
	eng, _ := newTestEngine(cc)

	rec := callmodel.NewRecord("c7", "+1", "b", "auto", "A", "")
	ctx := context.Background()

	eng.appendAgentFragment(ctx, rec, "Booking confirmed.")
	eng.flushAgentBuffer(ctx, rec)

	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, "Booking confirmed.", rec.Transcript[0].Text)
	assert.Empty(t, rec.AgentBuffer)
}

func TestFlushEntrySkipsEmptyBuffer(t *testing.T) {
	cc := &fakeCarrierClient{}
	eng, _ := newTestEngine(cc)

	rec := callmodel.NewRecord("c8", "+1", "b", "auto", "A", "")
	eng.flushEntry(context.Background(), rec, callmodel.SpeakerAgent, "   ")
	assert.Empty(t, rec.Transcript)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
