// Package export writes the finalized artifacts of a session: the
// accumulated audio as a WAV container and the keyframe sequence as a
// normalized JSON array, both into a freshly created timestamped directory.
package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

const (
	wavFileName       = "out.wav"
	keyframesFileName = "animation_frames.json"
)

// Writer persists stream outcomes under a base directory.
type Writer struct {
	baseDir string
	log     *slog.Logger
	clock   func() time.Time
}

func NewWriter(baseDir string, log *slog.Logger) *Writer {
	return &Writer{
		baseDir: baseDir,
		log:     log.With(slog.String("component", "export")),
		clock:   time.Now,
	}
}

// WriteOutcome creates a new directory named after the current timestamp and
// writes the session artifacts into it. It returns the directory path.
func (w *Writer) WriteOutcome(outcome *protocol.StreamOutcome) (string, error) {
	stamp := w.clock()
	name := stamp.Format("20060102_150405") + fmt.Sprintf("_%06d", stamp.Nanosecond()/1000)
	dir := filepath.Join(w.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if err := w.writeAudio(dir, outcome); err != nil {
		// Unknown audio format is not fatal, the keyframes still export.
		w.log.Error("audio export failed", slog.String("error", err.Error()))
	}
	if err := w.writeKeyframes(dir, outcome.Keyframes); err != nil {
		return dir, err
	}

	w.log.Info("artifacts written",
		slog.String("dir", dir),
		slog.Int("keyframes", len(outcome.Keyframes)),
		slog.Int("audio_bytes", len(outcome.Audio)))
	return dir, nil
}

func (w *Writer) writeAudio(dir string, outcome *protocol.StreamOutcome) error {
	header := outcome.AudioHeader
	if header.Format != protocol.AudioFormatPCM || header.BitsPerSample != protocol.BitsPerSample {
		return fmt.Errorf("unknown format for audio output: format=%d bits=%d", header.Format, header.BitsPerSample)
	}
	if len(outcome.Audio)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}

	file, err := os.Create(filepath.Join(dir, wavFileName))
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	channels := header.ChannelCount
	if channels <= 0 {
		channels = protocol.ChannelCount
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: header.SamplesPerSecond}}
	samples := make([]int, len(outcome.Audio)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(outcome.Audio[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, header.SamplesPerSecond, header.BitsPerSample, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

func (w *Writer) writeKeyframes(dir string, keyframes []protocol.Keyframe) error {
	if keyframes == nil {
		keyframes = []protocol.Keyframe{}
	}
	data, err := json.MarshalIndent(keyframes, "", "    ")
	if err != nil {
		return fmt.Errorf("encode keyframes: %w", err)
	}
	path := filepath.Join(dir, keyframesFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write keyframes: %w", err)
	}
	return nil
}
