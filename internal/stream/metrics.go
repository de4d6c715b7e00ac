package stream

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	framesOutTotal  metric.Int64Counter
	framesInTotal   metric.Int64Counter
	keyframesTotal  metric.Int64Counter
	audioBytesTotal metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("faceflow/stream")
		framesOutTotal, _ = meter.Int64Counter("faceflow_frames_sent_total",
			metric.WithDescription("Outbound frames written to the duplex stream"))
		framesInTotal, _ = meter.Int64Counter("faceflow_frames_received_total",
			metric.WithDescription("Inbound frames read from the duplex stream"))
		keyframesTotal, _ = meter.Int64Counter("faceflow_keyframes_total",
			metric.WithDescription("Animation keyframes decoded"))
		audioBytesTotal, _ = meter.Int64Counter("faceflow_audio_bytes_total",
			metric.WithDescription("Audio bytes accumulated from the inbound stream"))
	})
}
