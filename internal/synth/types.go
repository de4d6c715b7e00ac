package synth

import "context"

// Request contains parameters to synthesize speech.
type Request struct {
	Text  string
	Voice string
}

// Chunk contains PCM data.
type Chunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}
