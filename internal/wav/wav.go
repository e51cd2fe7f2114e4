// Package wav converts raw PCM audio into a self-contained WAV container.
//
// Speech generators return raw 16-bit mono PCM; wrapping it in a standard
// RIFF/WAVE header makes the artifact directly playable from blob storage.
package wav

import "encoding/binary"

const (
	// HeaderSize is the fixed RIFF/fmt/data header length.
	HeaderSize = 44

	// DefaultSampleRate matches the speech generator's PCM output.
	DefaultSampleRate = 24000

	numChannels   = 1
	bitsPerSample = 16
)

// FromPCM wraps raw 16-bit mono little-endian PCM in a WAV container.
func FromPCM(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, HeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], numChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	copy(buf[HeaderSize:], pcm)
	return buf
}

// DurationSec estimates playback length of raw PCM at the given sample rate.
// The estimate is informational, not authoritative.
func DurationSec(pcmLen, sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	bytesPerSec := sampleRate * numChannels * bitsPerSample / 8
	if bytesPerSec == 0 {
		return 0
	}
	return (pcmLen + bytesPerSec/2) / bytesPerSec
}
