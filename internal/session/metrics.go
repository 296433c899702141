package session

import (
	"sync/atomic"
	"time"
)

// Metrics counts what a session's tick loop has done. Counters are written
// by the tick goroutine and may be read from anywhere.
type Metrics struct {
	ticks          atomic.Int64
	totalTickNs    atomic.Int64
	intentsApplied atomic.Int64
	intentsDropped atomic.Int64
	joinsAccepted  atomic.Int64
	joinsRejected  atomic.Int64
	players        atomic.Int64
}

func (m *Metrics) addTick(d time.Duration) {
	m.ticks.Add(1)
	m.totalTickNs.Add(d.Nanoseconds())
}

// Snapshot returns a point-in-time copy keyed by metric name.
func (m *Metrics) Snapshot() map[string]int64 {
	ticks := m.ticks.Load()
	var avgUs int64
	if ticks > 0 {
		avgUs = m.totalTickNs.Load() / ticks / int64(time.Microsecond)
	}
	return map[string]int64{
		"ticks":           ticks,
		"avg_tick_us":     avgUs,
		"intents_applied": m.intentsApplied.Load(),
		"intents_dropped": m.intentsDropped.Load(),
		"joins_accepted":  m.joinsAccepted.Load(),
		"joins_rejected":  m.joinsRejected.Load(),
		"players":         m.players.Load(),
	}
}
