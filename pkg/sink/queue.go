package sink

import (
	"sync"
	"sync/atomic"

	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

// Queue decouples a sink from the goroutine delivering events. Handle only
// enqueues; a single goroutine feeds the wrapped sink in order. When the
// queue is full the event is dropped and logged.
type Queue struct {
	next   Sink
	events chan sensortag.Event
	log    *zap.Logger
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewQueue(next Sink, size int, log *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		next:   next,
		events: make(chan sensortag.Event, size),
		log:    log,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for e := range q.events {
		q.next.Handle(e)
	}
}

func (q *Queue) Handle(e sensortag.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.events <- e:
	default:
		n := q.dropped.Add(1)
		q.log.Warn("sink queue full, dropping event",
			zap.String("sensorId", e.SensorID),
			zap.String("kind", string(e.Kind)),
			zap.Uint64("dropped", n),
		)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close drains the queued events into the wrapped sink and closes it.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
	return q.next.Close()
}
