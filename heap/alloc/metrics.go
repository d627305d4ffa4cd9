package alloc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports allocator activity to prometheus.
type Metrics struct {
	allocateBytesCounter   prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	allocateObjectsCounter *prometheus.CounterVec
	releaseObjectsCounter  prometheus.Counter
	poolExhaustedCounter   *prometheus.CounterVec
	chunksGauge            prometheus.Gauge
	chunkBytesGauge        prometheus.Gauge
	flushedBytesCounter    prometheus.Counter
}

// NewMetrics creates the allocator collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns, sub = "blockmem", "allocator"
	m := &Metrics{
		allocateBytesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "allocate_bytes_total",
			Help: "Bytes handed out, after alignment.",
		}),
		inuseBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "inuse_bytes",
			Help: "Bytes currently allocated.",
		}),
		allocateObjectsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "allocate_objects_total",
			Help: "Allocations by the component that served them.",
		}, []string{"source"}),
		releaseObjectsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "release_objects_total",
			Help: "Successful releases.",
		}),
		poolExhaustedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "pool_exhausted_total",
			Help: "Times a small-block pool was found full.",
		}, []string{"pool"}),
		chunksGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "chunks",
			Help: "Live chunks.",
		}),
		chunkBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "chunk_capacity_bytes",
			Help: "Usable capacity of live chunks.",
		}),
		flushedBytesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "flushed_bytes_total",
			Help: "Chunk capacity returned to the system by flushes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.allocateBytesCounter,
			m.inuseBytesGauge,
			m.allocateObjectsCounter,
			m.releaseObjectsCounter,
			m.poolExhaustedCounter,
			m.chunksGauge,
			m.chunkBytesGauge,
			m.flushedBytesCounter,
		)
	}
	return m
}

// The methods below are nil-safe so the allocator can call them unconditionally.

func (m *Metrics) allocated(src Source, size int) {
	if m == nil {
		return
	}
	m.allocateBytesCounter.Add(float64(size))
	m.inuseBytesGauge.Add(float64(size))
	m.allocateObjectsCounter.WithLabelValues(string(src)).Inc()
}

func (m *Metrics) released(size int) {
	if m == nil {
		return
	}
	m.inuseBytesGauge.Sub(float64(size))
	m.releaseObjectsCounter.Inc()
}

func (m *Metrics) poolExhausted(src Source) {
	if m == nil {
		return
	}
	m.poolExhaustedCounter.WithLabelValues(string(src)).Inc()
}

func (m *Metrics) chunkAdded(capacity int) {
	if m == nil {
		return
	}
	m.chunksGauge.Inc()
	m.chunkBytesGauge.Add(float64(capacity))
}

func (m *Metrics) chunkFlushed(capacity int) {
	if m == nil {
		return
	}
	m.chunkClosed(capacity)
	m.flushedBytesCounter.Add(float64(capacity))
}

// chunkClosed drops a chunk from the gauges without counting it as flushed.
func (m *Metrics) chunkClosed(capacity int) {
	if m == nil {
		return
	}
	m.chunksGauge.Dec()
	m.chunkBytesGauge.Sub(float64(capacity))
}
