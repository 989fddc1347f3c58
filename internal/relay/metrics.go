package relay

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds the relay's process-lifetime telemetry: per-message-type
// counts under a lock, an atomic fast path for connection counts, and a
// point-in-time Snapshot for /health and logs.
type Metrics struct {
	mu           sync.Mutex
	messageCount map[string]int64

	totalConns    int64
	activeConns   int64
	rejectedConns int64

	startTime time.Time
}

// NewMetrics returns a ready-to-use Metrics with its clock started now.
func NewMetrics() *Metrics {
	return &Metrics{
		messageCount: make(map[string]int64),
		startTime:    time.Now(),
	}
}

// RecordMessage increments the counter for a wire message type.
func (m *Metrics) RecordMessage(messageType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageCount[messageType]++
}

// RecordConnect marks a device connecting.
func (m *Metrics) RecordConnect() {
	atomic.AddInt64(&m.totalConns, 1)
	atomic.AddInt64(&m.activeConns, 1)
}

// RecordDisconnect marks a device disconnecting.
func (m *Metrics) RecordDisconnect() {
	atomic.AddInt64(&m.activeConns, -1)
}

// RecordRejected marks a hello rejected (auth failure or vault-full).
func (m *Metrics) RecordRejected() {
	atomic.AddInt64(&m.rejectedConns, 1)
}

// Snapshot is a point-in-time view suitable for /health or periodic logging.
type Snapshot struct {
	UptimeSeconds float64          `json:"uptimeSeconds"`
	TotalConns    int64            `json:"totalConnections"`
	ActiveConns   int64            `json:"activeConnections"`
	RejectedConns int64            `json:"rejectedConnections"`
	Messages      map[string]int64 `json:"messagesByType"`
}

// Snapshot copies out the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	msgs := make(map[string]int64, len(m.messageCount))
	for k, v := range m.messageCount {
		msgs[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		TotalConns:    atomic.LoadInt64(&m.totalConns),
		ActiveConns:   atomic.LoadInt64(&m.activeConns),
		RejectedConns: atomic.LoadInt64(&m.rejectedConns),
		Messages:      msgs,
	}
}
