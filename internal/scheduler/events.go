package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/logger"
)

// Kind identifies an event
type Kind uint8

const (
	KindSessionStart Kind = iota + 1
	KindChord
	KindNote
	KindSessionEnd
)

func (k Kind) String() string {
	switch k {
	case KindSessionStart:
		return "session_start"
	case KindChord:
		return "chord"
	case KindNote:
		return "note"
	case KindSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// Event is one emission of the scheduler. Pitches is shared with the chord library and
// must be treated as read-only.
type Event struct {
	Kind      Kind
	Seq       uint64
	At        time.Time
	Duration  time.Duration
	SessionID string

	// Chord events
	Chord      harmony.Chord
	Pitches    []int
	Target     float64
	Confidence float64
	Pad        bool

	// Note events
	Pitch    int
	Velocity int

	// Session start events
	Params LiveParameters
}

// Sink receives events on its own goroutine
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

const (
	DefaultDispatchBuffer = 256
	deliverTimeout        = 5 * time.Second
)

// SinkStats counts deliveries for one sink
type SinkStats struct {
	Name      string `json:"name"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

type sinkQueue struct {
	sink      Sink
	ch        chan Event
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Dispatcher fans events out to sinks without ever blocking the publisher.
// Each sink has its own queue; when a queue is full the event is dropped for that sink.
type Dispatcher struct {
	mu     sync.RWMutex
	queues []*sinkQueue
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts one delivery goroutine per sink
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer < 1 {
		buffer = DefaultDispatchBuffer
	}
	d := &Dispatcher{}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		q := &sinkQueue{sink: s, ch: make(chan Event, buffer)}
		d.queues = append(d.queues, q)
		d.wg.Add(1)
		go d.run(q)
	}
	return d
}

// Publish enqueues ev for every sink. Never blocks.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, q := range d.queues {
		select {
		case q.ch <- ev:
		default:
			q.dropped.Add(1)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q.ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped is the total number of events dropped across sinks
func (d *Dispatcher) Dropped() uint64 {
	var n uint64
	for _, q := range d.queues {
		n += q.dropped.Load()
	}
	return n
}

// Stats returns per-sink counters
func (d *Dispatcher) Stats() []SinkStats {
	stats := make([]SinkStats, 0, len(d.queues))
	for _, q := range d.queues {
		stats = append(stats, SinkStats{
			Name:      q.sink.Name(),
			Delivered: q.delivered.Load(),
			Dropped:   q.dropped.Load(),
			Failed:    q.failed.Load(),
		})
	}
	return stats
}

func (d *Dispatcher) run(q *sinkQueue) {
	defer d.wg.Done()
	for ev := range q.ch {
		if err := deliver(q.sink, ev); err != nil {
			q.failed.Add(1)
			logger.Error("Event delivery failed", err, logger.Fields{
				"sink":       q.sink.Name(),
				"kind":       ev.Kind.String(),
				"session_id": ev.SessionID,
			})
			continue
		}
		q.delivered.Add(1)
	}
}

func deliver(s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	return s.Deliver(ctx, ev)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev Event) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Deliver(ctx context.Context, ev Event) error { return f.Fn(ctx, ev) }
