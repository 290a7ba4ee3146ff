// Package audio implements the bridge's pure audio codec primitives:
// mu-law decode, endianness conversion, linear resampling, and fixed-size
// chunking. None of these block.
package audio

import "math"

// ulawBias is the standard G.711 mu-law expansion bias.
const ulawBias = 0x84

// ulawDecodeTable is the precomputed mu-law-to-linear expansion, one entry
// per of the 256 possible encoded bytes. Built once at init time using the
// standard sign/exponent/mantissa construction.
var ulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		ulawDecodeTable[i] = decodeUlawByte(byte(i))
	}
}

func decodeUlawByte(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int32(mantissa) << 3) + ulawBias
	sample <<= uint(exponent)
	sample -= ulawBias

	if sign != 0 {
		sample = -sample
	}
	if sample > 32767 {
		sample = 32767
	}
	if sample < -32768 {
		sample = -32768
	}
	return int16(sample)
}

// DecodeUlaw expands mu-law encoded bytes into little-endian PCM16 at the
// same sample rate. Empty input yields empty output.
func DecodeUlaw(encoded []byte) []byte {
	if len(encoded) == 0 {
		return []byte{}
	}
	out := make([]byte, len(encoded)*2)
	for i, b := range encoded {
		s := ulawDecodeTable[b]
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// SwapEndian16 byte-swaps each 16-bit sample in place on a copy, converting
// between little-endian and big-endian PCM16. It is its own inverse.
func SwapEndian16(pcm []byte) []byte {
	out := make([]byte, len(pcm))
	n := len(pcm) - (len(pcm) % 2)
	for i := 0; i < n; i += 2 {
		out[i] = pcm[i+1]
		out[i+1] = pcm[i]
	}
	if len(pcm)%2 == 1 {
		out[len(pcm)-1] = pcm[len(pcm)-1]
	}
	return out
}

// Resample converts little-endian PCM16 from one sample rate to another
// using linear interpolation. Identity when from == to or pcm is empty.
// Output length is exactly round(len(samples) * to / from).
func Resample(pcm []byte, from, to int) []byte {
	if from == to || len(pcm) == 0 {
		return pcm
	}
	samples := bytesToSamples(pcm)
	if len(samples) == 0 {
		return []byte{}
	}

	outLen := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if outLen <= 0 {
		return []byte{}
	}

	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	lastIdx := len(samples) - 1
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		if idx >= lastIdx {
			out[i] = samples[lastIdx]
			continue
		}
		frac := srcPos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return samplesToBytes(out)
}

// Chunk splits pcm into consecutive slices of exactly size bytes; the final
// slice may be shorter. size must be positive.
func Chunk(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for start := 0; start < len(pcm); start += size {
		end := start + size
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[start:end])
	}
	return chunks
}

// ChunkSizeFor20ms returns the byte count of 20ms of 16-bit PCM at
// sampleRate, the default chunk size used throughout the engine.
func ChunkSizeFor20ms(sampleRate int) int {
	return int(float64(sampleRate) * 0.020 * 2)
}

func bytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
