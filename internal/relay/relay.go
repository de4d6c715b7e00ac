// Package relay broadcasts decoded session output to live observers over a
// side channel. Delivery is best effort: the main session never waits on the
// relay and never sees its failures.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

// Conn is a single established connection to the fan-out hub.
type Conn interface {
	// WriteRecord delivers a structured record, serialized as JSON.
	WriteRecord(v any) error
	// WriteBinary delivers an opaque audio payload, tagged distinctly from
	// structured records so subscribers can tell them apart.
	WriteBinary(p []byte) error
	Close() error
}

// Dialer establishes connections to the hub.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type item struct {
	record any
	binary []byte
}

// Relay owns the hub connection and a bounded queue between the decode path
// and the wire. Items are sent in submission order for a given connection
// lifetime. Per item, at most one reconnect-and-retry cycle happens before
// the item is dropped, no failure ever reaches the caller.
type Relay struct {
	dialer Dialer
	log    *slog.Logger

	queue  chan item
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// conn is owned exclusively by the worker goroutine.
	conn Conn

	sentTotal    metric.Int64Counter
	droppedTotal metric.Int64Counter
}

// New builds a relay draining a queue of at most queueSize pending items.
func New(dialer Dialer, queueSize int, log *slog.Logger) *Relay {
	meter := otel.Meter("faceflow/relay")
	sent, _ := meter.Int64Counter("faceflow_relay_sent_total",
		metric.WithDescription("Items delivered to the fan-out hub"))
	dropped, _ := meter.Int64Counter("faceflow_relay_dropped_total",
		metric.WithDescription("Items dropped by the relay"))
	return &Relay{
		dialer:       dialer,
		log:          log.With(slog.String("component", "relay")),
		queue:        make(chan item, queueSize),
		sentTotal:    sent,
		droppedTotal: dropped,
	}
}

// Start launches the single relay worker. One worker means one send mid-flight
// at a time, which keeps wire framing intact without further locking.
func (r *Relay) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-r.queue:
				r.deliver(ctx, it)
			}
		}
	}()
}

// Close stops the worker and releases the connection. Pending items are
// dropped, the relay is an at-most-once preview channel.
func (r *Relay) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// EnqueueKeyframe queues a keyframe record without blocking. A full queue
// drops the item with a warning.
func (r *Relay) EnqueueKeyframe(frame protocol.Keyframe) {
	r.enqueue(item{record: protocol.KeyframeRecord{Type: protocol.RecordTypeAnimationData, Data: frame}})
}

// EnqueueAudio queues a raw audio chunk without blocking.
func (r *Relay) EnqueueAudio(chunk []byte) {
	r.enqueue(item{binary: chunk})
}

func (r *Relay) enqueue(it item) {
	select {
	case r.queue <- it:
	default:
		r.droppedTotal.Add(context.Background(), 1)
		r.log.Warn("relay queue full, dropping item")
	}
}

func (r *Relay) deliver(ctx context.Context, it item) {
	if r.conn == nil {
		conn, err := r.dialer.Dial(ctx)
		if err != nil {
			r.droppedTotal.Add(ctx, 1)
			r.log.Warn("failed to connect to hub, dropping item", slog.String("error", err.Error()))
			return
		}
		r.conn = conn
		r.log.Info("connected to hub")
	}

	err := r.write(it)
	if err == nil {
		r.sentTotal.Add(ctx, 1)
		return
	}
	r.log.Warn("hub write failed, reconnecting", slog.String("error", err.Error()))

	// One reconnect-and-retry cycle, then the item is dropped. Items sent on
	// the previous connection are not redelivered.
	_ = r.conn.Close()
	r.conn = nil
	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		r.droppedTotal.Add(ctx, 1)
		r.log.Warn("reconnect failed, dropping item", slog.String("error", err.Error()))
		return
	}
	r.conn = conn
	if err := r.write(it); err != nil {
		r.droppedTotal.Add(ctx, 1)
		r.log.Warn("retry failed, dropping item", slog.String("error", err.Error()))
		_ = r.conn.Close()
		r.conn = nil
		return
	}
	r.sentTotal.Add(ctx, 1)
}

func (r *Relay) write(it item) error {
	if it.binary != nil {
		return r.conn.WriteBinary(it.binary)
	}
	return r.conn.WriteRecord(it.record)
}
