package carrier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

func TestNewRejectsUnsupportedProvider(t *testing.T) {
	_, err := New(Config{Provider: "unknown"}, commons.NewLogger(commons.LogConfig{}))
	assert.Error(t, err)
}

func TestNewTwilio(t *testing.T) {
	client, err := New(Config{
		Provider:   "twilio",
		APIKey:     "AC-test",
		APISecret:  "secret",
		FromNumber: "+15550001111",
	}, commons.NewLogger(commons.LogConfig{}))
	assert.NoError(t, err)
	assert.NotNil(t, client)
}
