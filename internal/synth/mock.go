package synth

import (
	"context"
	"encoding/binary"
	"math"
)

// mockSynth produces a low-amplitude tone sized to the input text, roughly
// 60 milliseconds per character, split into fixed chunks. It stands in for a
// real synthesis service in tests and demos.
type mockSynth struct {
	sampleRate int
	channels   int
}

const (
	mockSecondsPerChar = 0.06
	mockChunkBytes     = 4096
	mockToneHz         = 220.0
)

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		pcm := m.tone(len(req.Text))
		sequence := 0
		for offset := 0; offset < len(pcm); offset += mockChunkBytes {
			end := offset + mockChunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := Chunk{
				Sequence:   sequence,
				SampleRate: m.sampleRate,
				Channels:   m.channels,
				PCM:        pcm[offset:end],
				Final:      end == len(pcm),
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- chunk:
			}
			sequence++
		}
	}()
	return chunks, errs
}

func (m *mockSynth) tone(chars int) []byte {
	samples := int(float64(m.sampleRate) * mockSecondsPerChar * float64(chars))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		value := int16(3000 * math.Sin(2*math.Pi*mockToneHz*float64(i)/float64(m.sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(value))
	}
	return pcm
}
