package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
	"github.com/faceflow-labs/faceflow-core/internal/transport"
)

func TestSessionEndToEndAgainstMockService(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, server := transport.Pipe(16)
	mock := transport.NewMockService(newLogger())
	done := make(chan error, 1)
	go func() { done <- mock.Serve(ctx, server) }()

	sink := &captureSink{}
	session := NewSession(
		NewEncoder(testParams(), 4096, newLogger()),
		NewDecoder(sink, newLogger()),
		newLogger(),
	)

	// One second of 16-bit mono PCM at 44.1kHz.
	pcm := make([]byte, 88200)
	outcome, err := session.Run(ctx, client, 44100, sourceOf(pcm))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("mock service error: %v", err)
	}

	if outcome.StatusCode != protocol.StatusSuccess {
		t.Fatalf("expected success status, got %d %q", outcome.StatusCode, outcome.StatusMessage)
	}
	if len(outcome.Audio) != len(pcm) {
		t.Fatalf("expected %d echoed audio bytes, got %d", len(pcm), len(outcome.Audio))
	}
	if len(outcome.Keyframes) == 0 {
		t.Fatal("expected keyframes for one second of audio")
	}
	for _, frame := range outcome.Keyframes {
		if len(frame.Blendshapes) != len(transport.MockBlendshapeNames) {
			t.Fatalf("keyframe missing targets: %+v", frame)
		}
	}
	if len(sink.frames) != len(outcome.Keyframes) {
		t.Fatalf("relay sink saw %d keyframes, decoder %d", len(sink.frames), len(outcome.Keyframes))
	}
	if len(outcome.Telemetry.Input) == 0 {
		t.Fatal("expected input emotions reflected in telemetry")
	}
}

func TestSessionWriteFailureStillDrainsReadSide(t *testing.T) {
	fault := errors.New("write refused")
	fake := &fakeStream{
		sendErr: fault,
		inbound: []*protocol.AnimationDataStream{
			headerFrame("jawOpen"),
			{Status: &protocol.Status{Code: 7, Message: "INTERNAL"}},
		},
	}
	session := NewSession(
		NewEncoder(testParams(), 1024, newLogger()),
		NewDecoder(nil, newLogger()),
		newLogger(),
	)

	outcome, err := session.Run(context.Background(), fake, 44100, sourceOf([]byte{1, 2}))
	if !errors.Is(err, fault) {
		t.Fatalf("expected write fault surfaced, got %v", err)
	}
	if outcome == nil {
		t.Fatal("read side must still finalize an outcome")
	}
	if outcome.StatusCode != 7 || outcome.StatusMessage != "INTERNAL" {
		t.Fatalf("expected terminal status captured, got %d %q", outcome.StatusCode, outcome.StatusMessage)
	}
}
