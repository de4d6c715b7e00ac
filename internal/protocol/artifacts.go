package protocol

// Keyframe is one decoded animation sample: a time code plus a weight for
// every blendshape target named in the stream header.
type Keyframe struct {
	TimeCode    float64            `json:"timeCode"`
	Blendshapes map[string]float32 `json:"blendShapes"`
}

// EmotionTelemetry accumulates timed emotion vectors from the three sources
// the service reports.
type EmotionTelemetry struct {
	Input          []TimedEmotion `json:"input"`
	InferredOutput []TimedEmotion `json:"inferred_output"`
	SmoothedOutput []TimedEmotion `json:"smoothed_output"`
}

// StreamOutcome is the finalized result of one session. It is constructed
// exactly once, when the inbound stream reaches end-of-stream.
type StreamOutcome struct {
	StatusCode    int32
	StatusMessage string
	Keyframes     []Keyframe
	Telemetry     EmotionTelemetry
	AudioHeader   AudioHeader
	Audio         []byte
}

// Relay message records. Keyframes travel as JSON text records, audio chunks
// as opaque binary payloads tagged by channel.
type KeyframeRecord struct {
	Type string   `json:"type"`
	Data Keyframe `json:"data"`
}

const RecordTypeAnimationData = "animation_data"

const (
	SubjectKeyframe = "anim.keyframe"
	SubjectAudio    = "anim.audio"
)
