package metrics

import (
	"sync/atomic"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

// Counters are in-process totals served by the metrics endpoint
type Counters struct {
	started time.Time

	requests        atomic.Uint64
	serverErrors    atomic.Uint64
	controlApplied  atomic.Uint64
	controlRejected atomic.Uint64
	sessions        atomic.Uint64

	lastSession atomic.Pointer[scheduler.Summary]
}

// CounterSnapshot is a copy of Counters at one instant
type CounterSnapshot struct {
	UptimeSeconds   float64            `json:"uptime_seconds"`
	Requests        uint64             `json:"requests"`
	ServerErrors    uint64             `json:"server_errors"`
	ControlApplied  uint64             `json:"control_applied"`
	ControlRejected uint64             `json:"control_rejected"`
	Sessions        uint64             `json:"sessions"`
	LastSession     *scheduler.Summary `json:"last_session,omitempty"`
}

func NewCounters(started time.Time) *Counters {
	return &Counters{started: started}
}

func (c *Counters) RecordRequest(statusCode int) {
	c.requests.Add(1)
	if statusCode >= httpStatusServerError {
		c.serverErrors.Add(1)
	}
}

// RecordControl counts one routed control message
func (c *Counters) RecordControl(err error) {
	if err != nil {
		c.controlRejected.Add(1)
		return
	}
	c.controlApplied.Add(1)
}

func (c *Counters) RecordSession(s scheduler.Summary) {
	c.sessions.Add(1)
	c.lastSession.Store(&s)
}

func (c *Counters) Snapshot(now time.Time) CounterSnapshot {
	return CounterSnapshot{
		UptimeSeconds:   now.Sub(c.started).Seconds(),
		Requests:        c.requests.Load(),
		ServerErrors:    c.serverErrors.Load(),
		ControlApplied:  c.controlApplied.Load(),
		ControlRejected: c.controlRejected.Load(),
		Sessions:        c.sessions.Load(),
		LastSession:     c.lastSession.Load(),
	}
}

// SessionEndHook fans a finished session out to every configured backend. Nil backends are skipped.
func SessionEndHook(cw *Client, sm *SentryMetrics, counters *Counters) func(scheduler.Summary) {
	return func(s scheduler.Summary) {
		if counters != nil {
			counters.RecordSession(s)
		}
		if cw != nil {
			cw.RecordSessionSummary(s)
		}
		if sm != nil {
			sm.RecordSessionSummary(s)
		}
	}
}
