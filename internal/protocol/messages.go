package protocol

import (
	"context"
	"encoding/json"
	"fmt"
)

// AudioFormat identifies the encoding of PCM payloads. Only linear PCM is
// supported by the inference service.
type AudioFormat int

const AudioFormatPCM AudioFormat = 0

const (
	// BitsPerSample is fixed, only 16 bit PCM audio is currently supported.
	BitsPerSample = 16
	// ChannelCount is fixed, only mono audio is currently supported.
	ChannelCount = 1
)

// AudioHeader describes the PCM payload of a session. It is sent once in the
// outbound stream header and echoed back by the service.
type AudioHeader struct {
	SamplesPerSecond int         `json:"samples_per_second"`
	BitsPerSample    int         `json:"bits_per_sample"`
	ChannelCount     int         `json:"channel_count"`
	Format           AudioFormat `json:"audio_format"`
}

// NewAudioHeader builds the fixed 16-bit mono PCM header for a sample rate.
func NewAudioHeader(sampleRate int) AudioHeader {
	return AudioHeader{
		SamplesPerSecond: sampleRate,
		BitsPerSample:    BitsPerSample,
		ChannelCount:     ChannelCount,
		Format:           AudioFormatPCM,
	}
}

// TimedEmotion pairs an emotion intensity vector with a point in time.
// Sequences of TimedEmotion preserve arrival order, sortedness is not
// enforced.
type TimedEmotion struct {
	TimeCode float64            `json:"time_code"`
	Emotions map[string]float32 `json:"emotions"`
}

// AudioStream is the outbound frame union. Exactly one field is set.
type AudioStream struct {
	Header     *AudioStreamHeader
	Audio      *AudioWithEmotion
	EndOfAudio *EndOfAudio
}

// AudioStreamHeader opens an outbound stream with the audio format and the
// session parameter bundle.
type AudioStreamHeader struct {
	AudioHeader           AudioHeader
	PostProcessingParams  PostProcessingParams
	FaceParams            map[string]float32
	BlendshapeMultipliers map[string]float32
	BlendshapeOffsets     map[string]float32
}

// PostProcessingParams mirrors the emotion post-processing knobs accepted by
// the service.
type PostProcessingParams struct {
	EmotionContrast          float32
	LiveBlendCoef            float32
	EnablePreferredEmotion   bool
	PreferredEmotionStrength float32
	EmotionStrength          float32
	MaxEmotions              int
}

// AudioWithEmotion carries one chunk of PCM bytes. The configured emotion
// timeline rides on the first chunk of a session only.
type AudioWithEmotion struct {
	AudioBuffer []byte
	Emotions    []TimedEmotion
}

// EndOfAudio terminates the outbound sequence.
type EndOfAudio struct{}

// AnimationDataStream is the inbound frame union. Exactly one field is set.
type AnimationDataStream struct {
	Header *AnimationDataStreamHeader
	Data   *AnimationData
	Status *Status
}

// AnimationDataStreamHeader establishes the ordered blendshape target names
// for the session and echoes the audio header.
type AnimationDataStreamHeader struct {
	BlendshapeNames []string
	AudioHeader     AudioHeader
}

// AnimationData carries zero or more blendshape weight records, an optional
// chunk of synthesized audio, and an opaque metadata payload that may hold an
// emotion aggregate.
type AnimationData struct {
	BlendshapeWeights []BlendshapeFrame
	AudioBuffer       []byte
	Metadata          []byte
}

// BlendshapeFrame is one animation sample: a time code plus weight values
// parallel to the header's target name list.
type BlendshapeFrame struct {
	TimeCode float64
	Values   []float32
}

// Status reports the service's terminal disposition. It is informational
// mid-stream, end-of-stream is the authoritative terminal signal.
type Status struct {
	Code    int32
	Message string
}

const StatusSuccess int32 = 0

// EmotionAggregate groups the three emotion telemetry sources carried in
// AnimationData metadata.
type EmotionAggregate struct {
	InputEmotions  []TimedEmotion `json:"input_emotions"`
	InferredOutput []TimedEmotion `json:"a2e_output"`
	SmoothedOutput []TimedEmotion `json:"a2f_smoothed_output"`
}

// AggregateResult tags the outcome of decoding an emotion aggregate payload.
type AggregateResult int

const (
	AggregateOK AggregateResult = iota
	AggregateAbsent
	AggregateMalformed
)

// DecodeEmotionAggregate unpacks the metadata payload of an AnimationData
// frame. Absent and malformed payloads are reported distinctly so callers
// can treat malformed data as a warning rather than silently skipping it.
func DecodeEmotionAggregate(metadata []byte) (EmotionAggregate, AggregateResult) {
	var aggregate EmotionAggregate
	if len(metadata) == 0 {
		return aggregate, AggregateAbsent
	}
	if err := json.Unmarshal(metadata, &aggregate); err != nil {
		return EmotionAggregate{}, AggregateMalformed
	}
	return aggregate, AggregateOK
}

// EncodeEmotionAggregate packs an aggregate into the wire metadata form.
func EncodeEmotionAggregate(aggregate EmotionAggregate) ([]byte, error) {
	data, err := json.Marshal(aggregate)
	if err != nil {
		return nil, fmt.Errorf("encode emotion aggregate: %w", err)
	}
	return data, nil
}

// DuplexStream is the bidirectional frame channel to the inference service.
// Recv returns io.EOF once the service has emitted its last frame. The
// transport owns serialization and retry, this layer only sequences frames.
type DuplexStream interface {
	Send(ctx context.Context, frame *AudioStream) error
	Recv(ctx context.Context) (*AnimationDataStream, error)
	CloseSend() error
}
