package export

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriteOutcome(t *testing.T) {
	tmp := t.TempDir()
	w := NewWriter(tmp, newLogger())
	w.clock = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC) }

	outcome := &protocol.StreamOutcome{
		AudioHeader: protocol.NewAudioHeader(44100),
		Audio:       []byte{0x01, 0x00, 0x02, 0x00},
		Keyframes: []protocol.Keyframe{
			{TimeCode: 0.0, Blendshapes: map[string]float32{"jawOpen": 0.1}},
			{TimeCode: 0.033, Blendshapes: map[string]float32{"jawOpen": 0.3}},
		},
	}

	dir, err := w.WriteOutcome(outcome)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(dir) != "20250314_092653_589793" {
		t.Fatalf("unexpected directory name: %s", filepath.Base(dir))
	}

	wavData, err := os.ReadFile(filepath.Join(dir, "out.wav"))
	if err != nil {
		t.Fatalf("wav file missing: %v", err)
	}
	if string(wavData[0:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		t.Fatal("wav file must be a RIFF/WAVE container")
	}

	jsonData, err := os.ReadFile(filepath.Join(dir, "animation_frames.json"))
	if err != nil {
		t.Fatalf("keyframes file missing: %v", err)
	}
	var frames []protocol.Keyframe
	if err := json.Unmarshal(jsonData, &frames); err != nil {
		t.Fatalf("keyframes file not valid JSON: %v", err)
	}
	if len(frames) != 2 || frames[1].Blendshapes["jawOpen"] != 0.3 {
		t.Fatalf("unexpected keyframes content: %+v", frames)
	}
}

func TestWriteOutcomeUnknownAudioFormat(t *testing.T) {
	tmp := t.TempDir()
	w := NewWriter(tmp, newLogger())

	outcome := &protocol.StreamOutcome{
		AudioHeader: protocol.AudioHeader{SamplesPerSecond: 44100, BitsPerSample: 8, ChannelCount: 1},
		Audio:       []byte{0x01},
		Keyframes:   []protocol.Keyframe{{TimeCode: 0.0, Blendshapes: map[string]float32{}}},
	}

	dir, err := w.WriteOutcome(outcome)
	if err != nil {
		t.Fatalf("keyframe export must survive a bad audio header: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.wav")); !os.IsNotExist(err) {
		t.Fatal("no wav file may be written for an unsupported format")
	}
	if _, err := os.Stat(filepath.Join(dir, "animation_frames.json")); err != nil {
		t.Fatalf("keyframes file missing: %v", err)
	}
}

func TestWriteOutcomeEmptySession(t *testing.T) {
	tmp := t.TempDir()
	w := NewWriter(tmp, newLogger())

	outcome := &protocol.StreamOutcome{AudioHeader: protocol.NewAudioHeader(44100)}
	dir, err := w.WriteOutcome(outcome)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jsonData, err := os.ReadFile(filepath.Join(dir, "animation_frames.json"))
	if err != nil {
		t.Fatalf("keyframes file missing: %v", err)
	}
	var frames []protocol.Keyframe
	if err := json.Unmarshal(jsonData, &frames); err != nil {
		t.Fatalf("keyframes file not valid JSON: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected empty array, got %+v", frames)
	}
}
