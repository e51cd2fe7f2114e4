package wav

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFromPCMHeader(t *testing.T) {
	pcm := make([]byte, 48000) // 1 second at 24kHz 16-bit mono
	out := FromPCM(pcm, 24000)

	if len(out) != HeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+len(pcm), len(out))
	}
	if !bytes.Equal(out[0:4], []byte("RIFF")) {
		t.Fatalf("missing RIFF magic: %q", out[0:4])
	}
	if !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Fatalf("missing WAVE magic: %q", out[8:12])
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff chunk size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Fatalf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Fatalf("channels = %d, want mono", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Fatalf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 48000 {
		t.Fatalf("byte rate = %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
}

func TestFromPCMDefaultsSampleRate(t *testing.T) {
	out := FromPCM([]byte{0, 0}, 0)
	if got := binary.LittleEndian.Uint32(out[24:28]); got != DefaultSampleRate {
		t.Fatalf("sample rate = %d, want default %d", got, DefaultSampleRate)
	}
}

func TestDurationSec(t *testing.T) {
	tests := []struct {
		pcmLen     int
		sampleRate int
		want       int
	}{
		{48000, 24000, 1},
		{480000, 24000, 10},
		{0, 24000, 0},
		{24000, 24000, 1}, // rounds half up
	}
	for _, tt := range tests {
		if got := DurationSec(tt.pcmLen, tt.sampleRate); got != tt.want {
			t.Errorf("DurationSec(%d, %d) = %d, want %d", tt.pcmLen, tt.sampleRate, got, tt.want)
		}
	}
}
