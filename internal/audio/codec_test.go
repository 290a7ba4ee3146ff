package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUlawEmpty(t *testing.T) {
	assert.Equal(t, []byte{}, DecodeUlaw(nil))
	assert.Equal(t, []byte{}, DecodeUlaw([]byte{}))
}

func TestDecodeUlawBijectiveOnCodePoints(t *testing.T) {
	seen := make(map[int16]byte)
	for i := 0; i < 256; i++ {
		s := ulawDecodeTable[i]
		if prior, ok := seen[s]; ok {
			t.Fatalf("code points %d and %d both decode to %d", prior, i, s)
		}
		seen[s] = byte(i)
	}
}

func TestDecodeUlawSilenceIsNearZero(t *testing.T) {
	out := DecodeUlaw([]byte{0xFF})
	require.Len(t, out, 2)
	sample := int16(uint16(out[0]) | uint16(out[1])<<8)
	assert.InDelta(t, 0, sample, 10)
}

func TestSwapEndianInvolution(t *testing.T) {
	original := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	swapped := SwapEndian16(original)
	back := SwapEndian16(swapped)
	assert.Equal(t, original, back)
	assert.NotEqual(t, original, swapped)
}

func TestResampleIdentity(t *testing.T) {
	pcm := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	assert.Equal(t, pcm, Resample(pcm, 16000, 16000))
}

func TestResampleEmptyInput(t *testing.T) {
	assert.Equal(t, []byte{}, Resample([]byte{}, 8000, 16000))
}

func TestResampleOutputLengthInvariant(t *testing.T) {
	samples := make([]int16, 160) // 20ms at 8kHz
	pcm := samplesToBytes(samples)

	out := Resample(pcm, 8000, 16000)
	wantLen := int(math.Round(float64(len(samples)) * 16000.0 / 8000.0))
	assert.Equal(t, wantLen*2, len(out))

	out2 := Resample(pcm, 8000, 24000)
	wantLen2 := int(math.Round(float64(len(samples)) * 24000.0 / 8000.0))
	assert.Equal(t, wantLen2*2, len(out2))
}

func TestChunkConcatenationEqualsOriginal(t *testing.T) {
	pcm := make([]byte, 1000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	chunks := Chunk(pcm, 160)

	var reassembled []byte
	for i, c := range chunks {
		if i != len(chunks)-1 {
			assert.Len(t, c, 160)
		}
		reassembled = append(reassembled, c...)
	}
	assert.Equal(t, pcm, reassembled)
}

func TestChunkSizeFor20ms(t *testing.T) {
	assert.Equal(t, 320, ChunkSizeFor20ms(8000))
	assert.Equal(t, 640, ChunkSizeFor20ms(16000))
}
