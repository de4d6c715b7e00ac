package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// MockBlendshapeNames is the deterministic target set the mock service
// announces in its stream header.
var MockBlendshapeNames = []string{"jawOpen", "eyeBlinkLeft", "eyeBlinkRight", "mouthSmile"}

const mockFrameRate = 30.0

// MockService emulates the animation inference endpoint on a server stream:
// it echoes received audio, produces keyframes at a fixed frame rate from
// the amount of audio received, and reflects the input emotion timeline in
// its emotion aggregates. It lets the runtime operate end to end without the
// real service.
type MockService struct {
	log *slog.Logger
}

func NewMockService(log *slog.Logger) *MockService {
	return &MockService{log: log.With(slog.String("component", "mock-service"))}
}

// Serve consumes the outbound stream until end-of-audio and closes the
// inbound stream after emitting a success status.
func (m *MockService) Serve(ctx context.Context, stream *ServerStream) error {
	defer stream.Close()

	var header *protocol.AudioStreamHeader
	var clock float64
	for {
		frame, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			// Client hung up without end-of-audio, still report status.
			break
		}
		if err != nil {
			return err
		}

		switch {
		case frame.Header != nil:
			header = frame.Header
			if err := stream.Send(ctx, &protocol.AnimationDataStream{
				Header: &protocol.AnimationDataStreamHeader{
					BlendshapeNames: MockBlendshapeNames,
					AudioHeader:     header.AudioHeader,
				},
			}); err != nil {
				return err
			}
		case frame.Audio != nil:
			if header == nil {
				m.log.Warn("audio frame before stream header")
				continue
			}
			data, next := m.animate(header, frame.Audio, clock)
			clock = next
			if err := stream.Send(ctx, &protocol.AnimationDataStream{Data: data}); err != nil {
				return err
			}
		case frame.EndOfAudio != nil:
			if err := stream.Send(ctx, &protocol.AnimationDataStream{
				Status: &protocol.Status{Code: protocol.StatusSuccess, Message: "SUCCESS"},
			}); err != nil {
				return err
			}
			return nil
		}
	}
	return nil
}

func (m *MockService) animate(header *protocol.AudioStreamHeader, audio *protocol.AudioWithEmotion, clock float64) (*protocol.AnimationData, float64) {
	bytesPerSecond := header.AudioHeader.SamplesPerSecond * header.AudioHeader.BitsPerSample / 8 * header.AudioHeader.ChannelCount
	duration := 0.0
	if bytesPerSecond > 0 {
		duration = float64(len(audio.AudioBuffer)) / float64(bytesPerSecond)
	}

	var records []protocol.BlendshapeFrame
	step := 1.0 / mockFrameRate
	for t := clock; t < clock+duration; t += step {
		values := make([]float32, len(MockBlendshapeNames))
		for i := range values {
			values[i] = float32(0.5 + 0.5*math.Sin(t*(float64(i)+1)))
		}
		records = append(records, protocol.BlendshapeFrame{TimeCode: t, Values: values})
	}

	data := &protocol.AnimationData{
		BlendshapeWeights: records,
		AudioBuffer:       audio.AudioBuffer,
	}
	if len(audio.Emotions) > 0 {
		metadata, err := protocol.EncodeEmotionAggregate(protocol.EmotionAggregate{
			InputEmotions:  audio.Emotions,
			SmoothedOutput: audio.Emotions,
		})
		if err == nil {
			data.Metadata = metadata
		}
	}
	return data, clock + duration
}
