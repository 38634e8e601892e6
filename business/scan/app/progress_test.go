package app

import (
	"context"
	"testing"

	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

func drain(ch <-chan ProgressEvent) []ProgressEvent {
	var out []ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEmitter_ChannelDeliversInOrder(t *testing.T) {
	e := NewEmitter("scan-1", 16, logger.Nop())
	ctx := context.Background()

	e.Emit(ctx, ProgressEvent{Type: EventStarted, Percent: 0})
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 50})
	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCompleted})

	events := drain(e.Events())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []EventType{EventStarted, EventProgress, EventFinished}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event[%d].Type = %s, want %s", i, ev.Type, want[i])
		}
		if ev.ScanID != "scan-1" {
			t.Errorf("event[%d].ScanID = %q", i, ev.ScanID)
		}
	}
}

func TestEmitter_PercentIsMonotonic(t *testing.T) {
	e := NewEmitter("scan-1", 16, logger.Nop())
	ctx := context.Background()

	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 40})
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 30}) // must not regress
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 60})
	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCompleted})

	events := drain(e.Events())
	last := -1
	for i, ev := range events {
		if ev.Percent < last {
			t.Errorf("event[%d].Percent = %d regressed below %d", i, ev.Percent, last)
		}
		last = ev.Percent
	}
	if events[1].Percent != 40 {
		t.Errorf("regressing emit reported %d, want clamped 40", events[1].Percent)
	}
}

func TestEmitter_TerminalClosesChannelAndLaterEmitsDropped(t *testing.T) {
	e := NewEmitter("scan-1", 16, logger.Nop())
	ctx := context.Background()

	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCancelled})
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 100}) // after terminal, dropped

	events := drain(e.Events())
	if len(events) != 1 {
		t.Fatalf("got %d events, want only the terminal one", len(events))
	}
	if !events[0].IsTerminal() {
		t.Error("remaining event is not terminal")
	}
}

func TestEmitter_SlowConsumerStillGetsTerminal(t *testing.T) {
	e := NewEmitter("scan-1", 2, logger.Nop())
	ctx := context.Background()

	// Nobody is reading; overflow the buffer, then finish.
	for i := 0; i < 10; i++ {
		e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: i * 10})
	}
	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCompleted})

	events := drain(e.Events())
	if len(events) == 0 {
		t.Fatal("no events delivered")
	}
	last := events[len(events)-1]
	if !last.IsTerminal() {
		t.Errorf("last event = %s, want terminal", last.Type)
	}
}

func TestEmitter_SubscribersSeeEveryEvent(t *testing.T) {
	e := NewEmitter("scan-1", 1, logger.Nop())
	ctx := context.Background()

	var seen []EventType
	e.Subscribe(func(ev ProgressEvent) {
		seen = append(seen, ev.Type)
	})

	// Buffer of 1 forces channel drops, but the callback path is
	// synchronous and lossless.
	for i := 0; i < 5; i++ {
		e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: i * 20})
	}
	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCompleted})

	if len(seen) != 6 {
		t.Fatalf("subscriber saw %d events, want 6", len(seen))
	}
	if seen[5] != EventFinished {
		t.Errorf("last subscriber event = %s, want finished", seen[5])
	}
}

func TestEmitter_AttachJoinsMidStream(t *testing.T) {
	e := NewEmitter("scan-1", 16, logger.Nop())
	ctx := context.Background()

	e.Emit(ctx, ProgressEvent{Type: EventStarted, Percent: 0})
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 40})

	attached := e.Attach(16)
	e.Emit(ctx, ProgressEvent{Type: EventProgress, Percent: 80})
	e.Emit(ctx, ProgressEvent{Type: EventFinished, Percent: 100, Status: domain.StatusCompleted})

	events := drain(attached)
	if len(events) != 2 {
		t.Fatalf("attached consumer saw %d events, want the 2 after attach", len(events))
	}
	if events[0].Percent != 80 || !events[1].IsTerminal() {
		t.Errorf("events = %+v, want progress 80 then terminal", events)
	}
}

func TestEmitter_AttachAfterTerminalIsClosed(t *testing.T) {
	e := NewEmitter("scan-1", 16, logger.Nop())
	e.Emit(context.Background(), ProgressEvent{
		Type: EventFinished, Percent: 100, Status: domain.StatusCompleted,
	})

	if events := drain(e.Attach(16)); len(events) != 0 {
		t.Errorf("attach after terminal delivered %d events, want closed empty channel", len(events))
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 40, 0},
		{20, 40, 50},
		{40, 40, 100},
		{1, 3, 33},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.processed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}
