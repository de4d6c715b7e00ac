package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/faceflow-labs/faceflow-core/internal/config"
	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeStream struct {
	sent      []*protocol.AudioStream
	inbound   []*protocol.AnimationDataStream
	sendErr   error
	recvErr   error
	closeSend bool
}

func (f *fakeStream) Send(_ context.Context, frame *protocol.AudioStream) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeStream) Recv(_ context.Context) (*protocol.AnimationDataStream, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if len(f.inbound) == 0 {
		return nil, io.EOF
	}
	frame := f.inbound[0]
	f.inbound = f.inbound[1:]
	return frame, nil
}

func (f *fakeStream) CloseSend() error {
	f.closeSend = true
	return nil
}

func sourceOf(bufs ...[]byte) <-chan []byte {
	ch := make(chan []byte, len(bufs))
	for _, b := range bufs {
		ch <- b
	}
	close(ch)
	return ch
}

func testParams() config.SessionParams {
	return config.SessionParams{
		FaceParams: map[string]float32{"skinStrength": 1.0},
		Blendshape: config.BlendshapeParams{
			Multipliers: map[string]float32{"jawOpen": 1.2},
			Offsets:     map[string]float32{"jawOpen": 0.1},
		},
		EmotionTimeline: []config.EmotionKey{
			{TimeCode: 0.0, Emotions: map[string]float32{"joy": 0.9}},
			{TimeCode: 1.5, Emotions: map[string]float32{"sadness": 0.4}},
		},
	}
}

func TestEncoderFrameOrder(t *testing.T) {
	fake := &fakeStream{}
	enc := NewEncoder(testParams(), 4, newLogger())

	err := enc.Run(context.Background(), fake, 44100, sourceOf([]byte{1, 2, 3, 4}, []byte{5, 6}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.sent) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(fake.sent))
	}
	if fake.sent[0].Header == nil {
		t.Fatal("first frame must be the stream header")
	}
	if fake.sent[1].Audio == nil || fake.sent[2].Audio == nil {
		t.Fatal("middle frames must be audio chunks")
	}
	if fake.sent[3].EndOfAudio == nil {
		t.Fatal("last frame must be end-of-audio")
	}
	if !fake.closeSend {
		t.Fatal("send side must be closed after end-of-audio")
	}
}

func TestEncoderHeaderContents(t *testing.T) {
	fake := &fakeStream{}
	enc := NewEncoder(testParams(), 16, newLogger())

	if err := enc.Run(context.Background(), fake, 22050, sourceOf()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := fake.sent[0].Header
	if header.AudioHeader.SamplesPerSecond != 22050 {
		t.Fatalf("expected sample rate 22050, got %d", header.AudioHeader.SamplesPerSecond)
	}
	if header.AudioHeader.BitsPerSample != 16 || header.AudioHeader.ChannelCount != 1 {
		t.Fatalf("expected 16-bit mono header, got %+v", header.AudioHeader)
	}
	if header.AudioHeader.Format != protocol.AudioFormatPCM {
		t.Fatalf("expected PCM format, got %d", header.AudioHeader.Format)
	}
	if header.BlendshapeMultipliers["jawOpen"] != 1.2 {
		t.Fatal("expected blendshape multipliers from params")
	}
}

func TestEncoderEmotionTimelineOnlyOnFirstChunk(t *testing.T) {
	fake := &fakeStream{}
	enc := NewEncoder(testParams(), 4, newLogger())

	// A single oversized buffer splits into three chunks.
	err := enc.Run(context.Background(), fake, 44100, sourceOf([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.sent) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(fake.sent))
	}
	if len(fake.sent[1].Audio.Emotions) != 2 {
		t.Fatalf("expected full emotion timeline on first chunk, got %d entries", len(fake.sent[1].Audio.Emotions))
	}
	for i := 2; i <= 3; i++ {
		if len(fake.sent[i].Audio.Emotions) != 0 {
			t.Fatalf("chunk %d must not carry emotions", i)
		}
	}
	if string(fake.sent[1].Audio.AudioBuffer) != "\x01\x02\x03\x04" {
		t.Fatalf("unexpected first chunk payload: %v", fake.sent[1].Audio.AudioBuffer)
	}
	if string(fake.sent[3].Audio.AudioBuffer) != "\x09" {
		t.Fatalf("unexpected last chunk payload: %v", fake.sent[3].Audio.AudioBuffer)
	}
}

func TestEncoderEmptySource(t *testing.T) {
	fake := &fakeStream{}
	enc := NewEncoder(testParams(), 1024, newLogger())

	if err := enc.Run(context.Background(), fake, 44100, sourceOf()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.sent) != 2 {
		t.Fatalf("expected header and end-of-audio only, got %d frames", len(fake.sent))
	}
	if fake.sent[0].Header == nil || fake.sent[1].EndOfAudio == nil {
		t.Fatal("empty source must still produce header and end-of-audio")
	}
}

func TestEncoderSurfacesWriteFault(t *testing.T) {
	fault := errors.New("broken pipe")
	fake := &fakeStream{sendErr: fault}
	enc := NewEncoder(testParams(), 1024, newLogger())

	err := enc.Run(context.Background(), fake, 44100, sourceOf([]byte{1}))
	if !errors.Is(err, fault) {
		t.Fatalf("expected wrapped transport fault, got %v", err)
	}
	if len(fake.sent) != 0 {
		t.Fatal("no frames should be recorded after a write fault")
	}
}
