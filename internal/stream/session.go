package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// Session runs the outbound encoder and inbound decoder concurrently against
// one duplex stream. The write and read paths are independent: a failure in
// either does not cancel the other, the read side always drains to
// end-of-stream so the terminal status is observed even when writing failed.
type Session struct {
	encoder *Encoder
	decoder *Decoder
	log     *slog.Logger
}

func NewSession(encoder *Encoder, decoder *Decoder, log *slog.Logger) *Session {
	return &Session{
		encoder: encoder,
		decoder: decoder,
		log:     log.With(slog.String("component", "session")),
	}
}

// Run completes when both paths finish. The outcome is non-nil whenever the
// inbound stream reached end-of-stream, even if the write path failed.
func (s *Session) Run(ctx context.Context, stream protocol.DuplexStream, sampleRate int, source <-chan []byte) (*protocol.StreamOutcome, error) {
	var wg sync.WaitGroup
	var writeErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.encoder.Run(ctx, stream, sampleRate, source); err != nil {
			s.log.Error("write path failed", slog.String("error", err.Error()))
			writeErr = err
		}
	}()

	outcome, readErr := s.decoder.Run(ctx, stream)
	wg.Wait()

	if err := errors.Join(writeErr, readErr); err != nil {
		return outcome, err
	}
	return outcome, nil
}
