package framer

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartDefaults(t *testing.T) {
	f, err := Parse([]byte(`{"event":"start"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameStart, f.Kind)
	assert.Equal(t, DefaultMediaFormat(), f.MediaFormat)
}

func TestParseStartAnnouncedFormat(t *testing.T) {
	raw := []byte(`{"event":"start","start":{"mediaFormat":{"encoding":"PCMU","sample_rate":8000}}}`)
	f, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameStart, f.Kind)
	assert.Equal(t, EncodingPCMU, f.MediaFormat.Encoding)
	assert.Equal(t, 8000, f.MediaFormat.SampleRate)
}

func TestParseMedia(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	raw := []byte(`{"event":"media","media":{"payload":"` + payload + `"}}`)
	f, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameMedia, f.Kind)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Audio)
}

func TestParseMediaMissingPayload(t *testing.T) {
	f, err := Parse([]byte(`{"event":"media"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameMedia, f.Kind)
	assert.Nil(t, f.Audio)
}

func TestParseStop(t *testing.T) {
	f, err := Parse([]byte(`{"event":"stop"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameStop, f.Kind)
}

func TestParseUnknownIgnored(t *testing.T) {
	f, err := Parse([]byte(`{"event":"mark"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameUnknown, f.Kind)
}

func TestSerializeMediaRoundTrips(t *testing.T) {
	audio := []byte{9, 8, 7, 6}
	raw, err := SerializeMedia(audio)
	require.NoError(t, err)

	f, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameMedia, f.Kind)
	assert.Equal(t, audio, f.Audio)
}
