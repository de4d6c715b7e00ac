package synth

import (
	"context"
	"testing"
)

func TestMockSynthChunking(t *testing.T) {
	s := NewMockSynth(16000, 1)
	chunks, errs := s.Synthesize(context.Background(), Request{Text: "hello faceflow"})

	var total int
	var last Chunk
	count := 0
	for chunk := range chunks {
		if chunk.Sequence != count {
			t.Fatalf("expected sequence %d, got %d", count, chunk.Sequence)
		}
		if chunk.SampleRate != 16000 || chunk.Channels != 1 {
			t.Fatalf("unexpected chunk format: %+v", chunk)
		}
		if len(chunk.PCM) == 0 || len(chunk.PCM) > mockChunkBytes {
			t.Fatalf("unexpected chunk size: %d", len(chunk.PCM))
		}
		total += len(chunk.PCM)
		last = chunk
		count++
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !last.Final {
		t.Fatal("last chunk must carry the final flag")
	}

	// 14 chars at 60ms each and 16 kHz mono is 13440 samples of int16.
	want := int(float64(16000)*mockSecondsPerChar*14) * 2
	if total != want {
		t.Fatalf("expected %d pcm bytes, got %d", want, total)
	}
}

func TestMockSynthEmptyText(t *testing.T) {
	s := NewMockSynth(44100, 1)
	chunks, errs := s.Synthesize(context.Background(), Request{Text: ""})
	for range chunks {
		t.Fatal("empty text must produce no chunks")
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMockSynthHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMockSynth(44100, 1)
	// Nobody drains the chunk channel, so the producer fills its buffer and
	// must give up with the context error.
	chunks, errs := s.Synthesize(ctx, Request{Text: "a long enough sentence to span several chunks of audio"})

	if err := <-errs; err == nil {
		t.Fatal("expected context error after cancellation")
	}
	for range chunks {
	}
}
