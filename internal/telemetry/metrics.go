package telemetry

import "sync/atomic"

// Metrics counts the hub's key runtime figures. All methods are safe for
// concurrent use; reads never block the tick loop.
type Metrics struct {
	Ticks              atomic.Uint64
	TickNanos          atomic.Uint64
	CommandsDispatched atomic.Uint64
	CommandsRejected   atomic.Uint64
	EventsQueued       atomic.Uint64
	EventsDropped      atomic.Uint64
	BattlesStarted     atomic.Uint64
	BattlesEnded       atomic.Uint64
}

// AddTick records one completed tick and its duration.
func (m *Metrics) AddTick(nanos int64) {
	if m == nil {
		return
	}
	m.Ticks.Add(1)
	if nanos > 0 {
		m.TickNanos.Add(uint64(nanos))
	}
}

// Snapshot returns a read-only copy for the diagnostics endpoint.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	ticks := m.Ticks.Load()
	var avgMillis float64
	if ticks > 0 {
		avgMillis = float64(m.TickNanos.Load()) / float64(ticks) / 1e6
	}
	return map[string]any{
		"ticks":               ticks,
		"avg_tick_ms":         avgMillis,
		"commands_dispatched": m.CommandsDispatched.Load(),
		"commands_rejected":   m.CommandsRejected.Load(),
		"events_queued":       m.EventsQueued.Load(),
		"events_dropped":      m.EventsDropped.Load(),
		"battles_started":     m.BattlesStarted.Load(),
		"battles_ended":       m.BattlesEnded.Load(),
	}
}
