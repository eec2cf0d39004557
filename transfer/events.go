package transfer

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// EventName identifies a lifecycle or progress notification.
type EventName string

const (
	EventQueued    EventName = "transferQueued"
	EventStarted   EventName = "transferStarted"
	EventProgress  EventName = "transferProgress"
	EventCompleted EventName = "transferCompleted"
	EventFailed    EventName = "transferFailed"
	EventCancelled EventName = "transferCancelled"
	EventRetrying  EventName = "transferRetrying"
	EventCleaned   EventName = "transferCleaned"
)

// Event carries a snapshot of the affected job, taken at emission time.
// For EventCleaned only JobID is set, because the job no longer exists.
type Event struct {
	Name  EventName
	JobID string
	Job   Job
	Time  time.Time
}

// Handler receives events. Handlers run on the emitter's dispatch
// goroutine; a panicking handler is logged and never reaches the scheduler.
type Handler func(Event)

// Emitter is a topic-keyed publish/subscribe channel. All events flow
// through a single buffered dispatch goroutine, so handlers for a given
// job observe its events in transition order.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventName][]Handler

	ch   chan Event
	done chan struct{}
}

// NewEmitter creates an emitter and starts its dispatch goroutine.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	e := &Emitter{
		handlers: make(map[EventName][]Handler),
		ch:       make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// On registers a handler for the named event.
func (e *Emitter) On(name EventName, h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], h)
}

// Emit queues an event for dispatch. It blocks if the buffer is full,
// which only happens when a subscriber is pathologically slow.
func (e *Emitter) Emit(ev Event) {
	ev.Time = time.Now()
	select {
	case e.ch <- ev:
	case <-e.done:
	}
}

// TryEmit queues an event without blocking, dropping it if the buffer
// is full. Used for the high-frequency progress stream so a slow
// subscriber cannot stall the transport loop.
func (e *Emitter) TryEmit(ev Event) bool {
	ev.Time = time.Now()
	select {
	case e.ch <- ev:
		return true
	default:
		logger.WithFields(logger.Fields{
			"event": ev.Name,
			"job":   ev.JobID,
		}).Debug("Event buffer full, dropping event")
		return false
	}
}

// Close stops the dispatch goroutine after draining queued events.
func (e *Emitter) Close() {
	close(e.done)
}

func (e *Emitter) dispatch() {
	for {
		select {
		case ev := <-e.ch:
			e.deliver(ev)
		case <-e.done:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-e.ch:
					e.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(ev Event) {
	e.mu.RLock()
	hs := e.handlers[ev.Name]
	e.mu.RUnlock()
	for _, h := range hs {
		e.safeCall(h, ev)
	}
}

func (e *Emitter) safeCall(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{
				"event": ev.Name,
				"job":   ev.JobID,
				"panic": r,
			}).Error("Event handler panicked")
		}
	}()
	h(ev)
}
