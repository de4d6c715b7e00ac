package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/faceflow-labs/faceflow-core/internal/bus"
	"github.com/faceflow-labs/faceflow-core/internal/config"
	"github.com/faceflow-labs/faceflow-core/internal/export"
	"github.com/faceflow-labs/faceflow-core/internal/natsserver"
	"github.com/faceflow-labs/faceflow-core/internal/protocol"
	"github.com/faceflow-labs/faceflow-core/internal/relay"
	"github.com/faceflow-labs/faceflow-core/internal/sessionstore"
	"github.com/faceflow-labs/faceflow-core/internal/stream"
	"github.com/faceflow-labs/faceflow-core/internal/synth"
	"github.com/faceflow-labs/faceflow-core/internal/transport"
)

// ServiceDialer opens a duplex stream to an external inference endpoint. It
// is injected when service.mode=external, the transport itself lives outside
// this module.
type ServiceDialer interface {
	Dial(ctx context.Context, target string) (protocol.DuplexStream, error)
}

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	hub      *natsserver.EmbeddedServer
	busConn  *bus.Client
	relay    *relay.Relay
	store    *sessionstore.Store
	synth    synth.Synthesizer
	exporter *export.Writer
	dialer   ServiceDialer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// SetServiceDialer installs the transport for service.mode=external.
func (r *Runtime) SetServiceDialer(dialer ServiceDialer) {
	r.dialer = dialer
}

// Start brings up telemetry, the health endpoints, the relay side channel,
// the session store and the synthesizer. It returns once the runtime is
// ready to run sessions.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startRelay(ctx); err != nil {
		return err
	}

	store, err := sessionstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	r.store = store

	synthesizer, err := r.buildSynthesizer()
	if err != nil {
		return err
	}
	r.synth = synthesizer

	r.exporter = export.NewWriter(r.cfg.Session.OutputDir, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))
	return nil
}

func (r *Runtime) startRelay(ctx context.Context) error {
	switch r.cfg.Relay.Mode {
	case "off":
		return nil
	case "ws":
		r.relay = relay.New(relay.NewWSDialer(r.cfg.Relay.WSURL), r.cfg.Relay.QueueSize, r.logger)
	case "nats":
		hub, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded hub: %w", err)
		}
		r.hub = hub
		busConn, err := bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			return err
		}
		r.busConn = busConn
		r.relay = relay.New(relay.NewNATSDialer(busConn), r.cfg.Relay.QueueSize, r.logger)
	}
	r.relay.Start(ctx)
	return nil
}

func (r *Runtime) buildSynthesizer() (synth.Synthesizer, error) {
	switch r.cfg.Synth.Mode {
	case "exec":
		return synth.NewExecSynth(r.cfg.Synth.Command, r.cfg.Synth.SampleRate, r.cfg.Synth.Channels)
	default:
		return synth.NewMockSynth(r.cfg.Synth.SampleRate, r.cfg.Synth.Channels), nil
	}
}

// RunSession synthesizes text, streams it to the inference service and
// persists the finalized artifacts. It returns the stored record.
func (r *Runtime) RunSession(ctx context.Context, text string) (sessionstore.Record, error) {
	record := sessionstore.Record{SessionID: uuid.NewString(), Text: text}
	log := r.logger.With(slog.String("session_id", record.SessionID))

	// Scope the helper goroutines (synth bridge, mock service) to this
	// session so they unwind once the session ends for any reason.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	params, err := config.LoadSessionParams(r.cfg.Session.ParamsPath)
	if err != nil {
		return record, err
	}

	client, err := r.openStream(ctx)
	if err != nil {
		return record, err
	}

	source := make(chan []byte)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(source)
		chunks, errs := r.synth.Synthesize(ctx, synth.Request{Text: text, Voice: r.cfg.Synth.Voice})
		for chunks != nil || errs != nil {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				select {
				case source <- chunk.PCM:
				case <-ctx.Done():
					return
				}
			case err, ok := <-errs:
				if ok && err != nil {
					log.Warn("synthesis error", slog.String("error", err.Error()))
				}
				errs = nil
			case <-ctx.Done():
				return
			}
		}
	}()

	encoder := stream.NewEncoder(params, r.cfg.Service.ChunkBytes, log)
	var keyframeSink stream.KeyframeSink
	if r.relay != nil {
		keyframeSink = r.relay
		if r.cfg.Session.RelayAudio {
			encoder.WithAudioSink(r.relay)
		}
	}
	decoder := stream.NewDecoder(keyframeSink, log)
	session := stream.NewSession(encoder, decoder, log)

	outcome, runErr := session.Run(ctx, client, r.cfg.Synth.SampleRate, source)
	if outcome == nil {
		return record, runErr
	}

	record.StatusCode = outcome.StatusCode
	record.StatusMessage = outcome.StatusMessage
	record.Keyframes = len(outcome.Keyframes)
	record.AudioBytes = len(outcome.Audio)

	dir, err := r.exporter.WriteOutcome(outcome)
	if err != nil {
		log.Error("artifact export failed", slog.String("error", err.Error()))
	}
	record.ArtifactDir = dir

	if err := r.store.RecordOutcome(ctx, record); err != nil {
		log.Warn("failed to record session", slog.String("error", err.Error()))
	}
	return record, runErr
}

func (r *Runtime) openStream(ctx context.Context) (protocol.DuplexStream, error) {
	if r.cfg.Service.Mode == "external" {
		if r.dialer == nil {
			return nil, fmt.Errorf("service.mode=external requires a service dialer")
		}
		return r.dialer.Dial(ctx, r.cfg.Service.Target)
	}

	client, server := transport.Pipe(16)
	mock := transport.NewMockService(r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := mock.Serve(ctx, server); err != nil {
			r.logger.Warn("mock service stopped", slog.String("error", err.Error()))
		}
	}()
	return client, nil
}

// Shutdown stops the runtime and flushes telemetry.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.relay != nil {
		r.relay.Close()
	}
	r.busConn.Close()
	r.hub.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("session store close error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	r.logger.Info("runtime stopped")
	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
