package app

import (
	"context"
	"sync"
	"time"

	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

// EventType discriminates progress events.
type EventType string

const (
	EventStarted     EventType = "started"
	EventProgress    EventType = "progress"
	EventOpportunity EventType = "opportunity"
	EventDegraded    EventType = "marketplace_degraded"
	EventUnitSkipped EventType = "unit_skipped"
	EventFinished    EventType = "finished"
)

// ProgressEvent is one item in a scan's event stream. Exactly one
// finished event ends every stream, and it is always last.
type ProgressEvent struct {
	Type        EventType            `json:"type"`
	ScanID      string               `json:"scan_id"`
	At          time.Time            `json:"at"`
	Percent     int                  `json:"percent"`
	Processed   int                  `json:"processed"`
	Total       int                  `json:"total"`
	Opportunity *domain.Opportunity  `json:"opportunity,omitempty"`
	Marketplace string               `json:"marketplace,omitempty"`
	ASIN        string               `json:"asin,omitempty"`
	Message     string               `json:"message,omitempty"`
	Status      domain.SessionStatus `json:"status,omitempty"`
}

// IsTerminal reports whether the event closes the stream.
func (e ProgressEvent) IsTerminal() bool {
	return e.Type == EventFinished
}

// Emitter is the single event core for a scan session. Consumers attach
// either through the buffered Events channel or through Subscribe
// callbacks; both see the same events. The reported percent never
// decreases. After the terminal event the channel is closed and further
// emissions are dropped.
type Emitter struct {
	scanID string
	logger logger.LoggerInterface

	mu          sync.Mutex
	events      chan ProgressEvent
	subscribers []func(ProgressEvent)
	lastPercent int
	closed      bool
}

// NewEmitter creates an emitter with the given channel buffer size.
func NewEmitter(scanID string, buffer int, log logger.LoggerInterface) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{
		scanID: scanID,
		logger: log,
		events: make(chan ProgressEvent, buffer),
	}
}

// Events returns the channel consumption adapter. The channel closes
// after the terminal event.
func (e *Emitter) Events() <-chan ProgressEvent {
	return e.events
}

// Subscribe registers a callback invoked synchronously for every event
// from now on, including any the channel adapter has to drop.
func (e *Emitter) Subscribe(fn func(ProgressEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Attach opens an additional consumer channel. A late attacher misses
// events emitted before the call; the snapshot endpoint covers the gap.
// The channel closes after the terminal event, or immediately when the
// stream has already finished.
func (e *Emitter) Attach(buffer int) <-chan ProgressEvent {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan ProgressEvent, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subscribers = append(e.subscribers, func(ev ProgressEvent) {
		if ev.IsTerminal() {
			for {
				select {
				case ch <- ev:
					close(ch)
					return
				default:
					select {
					case <-ch:
					default:
					}
				}
			}
		}
		select {
		case ch <- ev:
		default:
		}
	})
	return ch
}

// Emit publishes an event. The percent is clamped so it never moves
// backwards. A terminal event closes the channel; anything emitted
// afterwards is dropped.
func (e *Emitter) Emit(ctx context.Context, event ProgressEvent) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	event.ScanID = e.scanID
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if event.Percent < e.lastPercent {
		event.Percent = e.lastPercent
	}
	e.lastPercent = event.Percent

	subscribers := e.subscribers
	terminal := event.IsTerminal()
	if terminal {
		e.closed = true
	}
	e.mu.Unlock()

	for _, fn := range subscribers {
		fn(event)
	}

	if terminal {
		// The terminal event must reach the channel consumer; make room
		// by shedding older buffered events if needed.
		for {
			select {
			case e.events <- event:
				close(e.events)
				return
			default:
				select {
				case <-e.events:
				default:
				}
			}
		}
	}

	select {
	case e.events <- event:
	default:
		// Channel consumer is behind; progress events are lossy.
		e.logger.Debug(ctx, "dropping progress event for slow consumer",
			"scan_id", e.scanID, "type", string(event.Type))
	}
}

// Percent computes a whole-number completion percentage.
func Percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return processed * 100 / total
}
