package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// State names the decoder's position in the inbound protocol.
type State int

const (
	AwaitingHeader State = iota
	Streaming
	Finalized
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "awaiting_header"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// KeyframeSink receives decoded keyframes for live relay. Implementations
// must not block, a slow subscriber can never stall decoding.
type KeyframeSink interface {
	EnqueueKeyframe(frame protocol.Keyframe)
}

// Decoder consumes the inbound frame sequence and accumulates keyframes,
// emotion telemetry and audio bytes until end-of-stream finalizes the
// session.
type Decoder struct {
	log  *slog.Logger
	sink KeyframeSink

	state       State
	targetNames []string
	headerSeen  bool
	audioHeader protocol.AudioHeader

	keyframes     []protocol.Keyframe
	telemetry     protocol.EmotionTelemetry
	audio         bytes.Buffer
	statusCode    int32
	statusMessage string
}

// NewDecoder builds a decoder in the awaiting-header state. sink may be nil
// when no live relay is attached.
func NewDecoder(sink KeyframeSink, log *slog.Logger) *Decoder {
	initMetrics()
	return &Decoder{
		log:  log.With(slog.String("component", "decoder")),
		sink: sink,
	}
}

func (d *Decoder) State() State { return d.state }

// Run reads stream to end-of-stream and returns the finalized outcome.
// Transport read faults and fatal decode errors abort the session.
func (d *Decoder) Run(ctx context.Context, stream protocol.DuplexStream) (*protocol.StreamOutcome, error) {
	for {
		frame, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return d.Finalize()
		}
		if err != nil {
			return nil, fmt.Errorf("read inbound frame: %w", err)
		}
		if err := d.HandleFrame(frame); err != nil {
			return nil, err
		}
	}
}

// HandleFrame applies one inbound frame to the state machine. The only error
// it returns is fatal: a frame after finalization or a blendshape record
// that cannot be zipped against the target name list. Everything else is a
// logged anomaly with degraded data.
func (d *Decoder) HandleFrame(frame *protocol.AnimationDataStream) error {
	if d.state == Finalized {
		return fmt.Errorf("frame after end-of-stream: %w", ErrFinalized)
	}

	switch {
	case frame.Header != nil:
		d.handleHeader(frame.Header)
	case frame.Data != nil:
		return d.handleData(frame.Data)
	case frame.Status != nil:
		d.handleStatus(frame.Status)
	default:
		d.log.Warn("inbound frame with no payload", slog.String("state", d.state.String()))
	}
	return nil
}

func (d *Decoder) handleHeader(header *protocol.AnimationDataStreamHeader) {
	framesInTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "header")))
	if d.headerSeen {
		d.log.Warn("duplicate stream header, keeping original target names")
		return
	}
	d.targetNames = header.BlendshapeNames
	d.audioHeader = header.AudioHeader
	d.headerSeen = true
	d.state = Streaming
	d.log.Info("receiving data from service",
		slog.Int("targets", len(d.targetNames)),
		slog.Int("sample_rate", header.AudioHeader.SamplesPerSecond))
}

func (d *Decoder) handleData(data *protocol.AnimationData) error {
	ctx := context.Background()
	framesInTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "animation_data")))

	if !d.headerSeen {
		// Tolerated so an audio-only session still finalizes cleanly, the
		// target name list stays empty until a header arrives.
		d.log.Warn("animation data before stream header")
		d.state = Streaming
	}

	switch aggregate, result := protocol.DecodeEmotionAggregate(data.Metadata); result {
	case protocol.AggregateOK:
		d.telemetry.Input = append(d.telemetry.Input, aggregate.InputEmotions...)
		d.telemetry.InferredOutput = append(d.telemetry.InferredOutput, aggregate.InferredOutput...)
		d.telemetry.SmoothedOutput = append(d.telemetry.SmoothedOutput, aggregate.SmoothedOutput...)
	case protocol.AggregateMalformed:
		d.log.Warn("malformed emotion aggregate payload, skipping telemetry for frame")
	}

	for _, record := range data.BlendshapeWeights {
		if len(record.Values) != len(d.targetNames) {
			return &FatalDecodeError{TimeCode: record.TimeCode, Targets: len(d.targetNames), Values: len(record.Values)}
		}
		weights := make(map[string]float32, len(d.targetNames))
		for i, name := range d.targetNames {
			weights[name] = record.Values[i]
		}
		keyframe := protocol.Keyframe{TimeCode: record.TimeCode, Blendshapes: weights}
		d.keyframes = append(d.keyframes, keyframe)
		keyframesTotal.Add(ctx, 1)
		if d.sink != nil {
			d.sink.EnqueueKeyframe(keyframe)
		}
	}

	if len(data.AudioBuffer) > 0 {
		d.audio.Write(data.AudioBuffer)
		audioBytesTotal.Add(ctx, int64(len(data.AudioBuffer)))
	}
	return nil
}

func (d *Decoder) handleStatus(status *protocol.Status) {
	framesInTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "status")))
	d.statusCode = status.Code
	d.statusMessage = status.Message
	if status.Code != protocol.StatusSuccess {
		d.log.Warn("service reported non-zero status",
			slog.Int("code", int(status.Code)), slog.String("message", status.Message))
		return
	}
	d.log.Info("service status", slog.Int("code", int(status.Code)), slog.String("message", status.Message))
}

// Finalize seals the accumulated artifacts into a StreamOutcome. It succeeds
// exactly once, a second end-of-stream signal is a protocol violation.
func (d *Decoder) Finalize() (*protocol.StreamOutcome, error) {
	if d.state == Finalized {
		return nil, fmt.Errorf("finalize: %w", ErrFinalized)
	}
	d.state = Finalized
	outcome := &protocol.StreamOutcome{
		StatusCode:    d.statusCode,
		StatusMessage: d.statusMessage,
		Keyframes:     d.keyframes,
		Telemetry:     d.telemetry,
		AudioHeader:   d.audioHeader,
		Audio:         append([]byte(nil), d.audio.Bytes()...),
	}
	d.log.Info("inbound stream finalized",
		slog.Int("keyframes", len(outcome.Keyframes)),
		slog.Int("audio_bytes", len(outcome.Audio)))
	return outcome, nil
}
