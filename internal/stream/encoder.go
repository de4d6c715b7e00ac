package stream

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/faceflow-labs/faceflow-core/internal/config"
	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// AudioSink receives raw outbound PCM chunks for live relay in push-to-talk
// setups. Implementations must not block.
type AudioSink interface {
	EnqueueAudio(chunk []byte)
}

// Encoder writes the outbound frame sequence for one session: a stream
// header, the audio chunks (emotion timeline attached to the first), and a
// terminal end-of-audio frame.
type Encoder struct {
	params     config.SessionParams
	chunkBytes int
	audioSink  AudioSink
	log        *slog.Logger
}

func NewEncoder(params config.SessionParams, chunkBytes int, log *slog.Logger) *Encoder {
	initMetrics()
	return &Encoder{
		params:     params,
		chunkBytes: chunkBytes,
		log:        log.With(slog.String("component", "encoder")),
	}
}

// WithAudioSink relays each outbound chunk as an opaque binary payload.
func (e *Encoder) WithAudioSink(sink AudioSink) *Encoder {
	e.audioSink = sink
	return e
}

// Run drains source into stream. The frame order is fixed: header first,
// then every chunk in arrival order, then end-of-audio, even when the source
// yields no bytes at all. Write faults surface immediately, retries belong
// to the transport.
func (e *Encoder) Run(ctx context.Context, stream protocol.DuplexStream, sampleRate int, source <-chan []byte) error {
	header := e.headerFrame(sampleRate)
	if err := stream.Send(ctx, header); err != nil {
		return fmt.Errorf("write stream header: %w", err)
	}
	framesOutTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "header")))

	first := true
	chunks := 0
	for {
		var buf []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok = <-source:
		}
		if !ok {
			break
		}
		for len(buf) > 0 {
			size := len(buf)
			if size > e.chunkBytes {
				size = e.chunkBytes
			}
			chunk := buf[:size]
			buf = buf[size:]

			frame := &protocol.AudioStream{Audio: &protocol.AudioWithEmotion{AudioBuffer: chunk}}
			if first {
				frame.Audio.Emotions = emotionTimeline(e.params.EmotionTimeline)
				first = false
			}
			if err := stream.Send(ctx, frame); err != nil {
				return fmt.Errorf("write audio chunk %d: %w", chunks, err)
			}
			framesOutTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "audio")))
			if e.audioSink != nil {
				e.audioSink.EnqueueAudio(chunk)
			}
			chunks++
		}
	}

	if err := stream.Send(ctx, &protocol.AudioStream{EndOfAudio: &protocol.EndOfAudio{}}); err != nil {
		return fmt.Errorf("write end of audio: %w", err)
	}
	framesOutTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "end_of_audio")))

	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send side: %w", err)
	}
	e.log.Info("outbound stream complete", slog.Int("chunks", chunks), slog.Int("sample_rate", sampleRate))
	return nil
}

func (e *Encoder) headerFrame(sampleRate int) *protocol.AudioStream {
	return &protocol.AudioStream{
		Header: &protocol.AudioStreamHeader{
			AudioHeader: protocol.NewAudioHeader(sampleRate),
			PostProcessingParams: protocol.PostProcessingParams{
				EmotionContrast:          e.params.PostProcessing.EmotionContrast,
				LiveBlendCoef:            e.params.PostProcessing.LiveBlendCoef,
				EnablePreferredEmotion:   e.params.PostProcessing.EnablePreferredEmotion,
				PreferredEmotionStrength: e.params.PostProcessing.PreferredEmotionStrength,
				EmotionStrength:          e.params.PostProcessing.EmotionStrength,
				MaxEmotions:              e.params.PostProcessing.MaxEmotions,
			},
			FaceParams:            e.params.FaceParams,
			BlendshapeMultipliers: e.params.Blendshape.Multipliers,
			BlendshapeOffsets:     e.params.Blendshape.Offsets,
		},
	}
}

func emotionTimeline(keys []config.EmotionKey) []protocol.TimedEmotion {
	if len(keys) == 0 {
		return nil
	}
	timeline := make([]protocol.TimedEmotion, 0, len(keys))
	for _, key := range keys {
		timeline = append(timeline, protocol.TimedEmotion{TimeCode: key.TimeCode, Emotions: key.Emotions})
	}
	return timeline
}
