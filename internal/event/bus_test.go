package event

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/model"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeTeamStarted, func(e Event) {
		received = e
	})

	bus.Publish(NewTeamStartedEvent("e1", "te1", "t1", "Research", 2, 3))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	started, ok := received.(TeamStartedEvent)
	if !ok {
		t.Fatalf("received %T, want TeamStartedEvent", received)
	}
	if started.TeamName != "Research" || started.Workers != 3 {
		t.Errorf("unexpected payload: %+v", started)
	}
}

func TestBus_OrderSpecificThenWildcard(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe("x.y", func(e Event) { order = append(order, "specific-1") })
	bus.Subscribe("x.y", func(e Event) { order = append(order, "specific-2") })
	bus.Subscribe("other", func(e Event) { order = append(order, "other") })

	bus.Publish(newBaseEvent("x.y"))

	want := []string{"specific-1", "specific-2", "all"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	count := 0
	id1 := bus.Subscribe("x", func(e Event) { count++ })
	bus.Subscribe("x", func(e Event) { count += 10 })

	if !bus.Unsubscribe(id1) {
		t.Fatal("Unsubscribe should return true for a known ID")
	}
	if bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return false for a removed ID")
	}

	bus.Publish(newBaseEvent("x"))
	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewLoggerWithWriter(&buf, logging.LevelDebug))

	reached := false
	bus.Subscribe("x", func(e Event) { panic("boom") })
	bus.Subscribe("x", func(e Event) { reached = true })

	bus.Publish(newBaseEvent("x"))

	if !reached {
		t.Error("handler after a panicking handler should still run")
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(newBaseEvent("x"))
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe("a", func(Event) {})
	bus.SubscribeAll(func(Event) {})
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestSink(t *testing.T) {
	var nilSink Sink
	nilSink.Emit(newBaseEvent("x"))

	bus := NewBus(nil)
	var got []string
	bus.SubscribeAll(func(e Event) { got = append(got, e.EventType()) })

	sink := bus.Sink()
	sink.Emit(NewCapacityWarningEvent("e1", 80, 100, 0.8))
	if len(got) != 1 || got[0] != TypeCapacityWarning {
		t.Errorf("got %v, want [%s]", got, TypeCapacityWarning)
	}
}

func TestEventConstructors(t *testing.T) {
	cp := model.Checkpoint{
		ID:              "cp1",
		TeamExecutionID: "te1",
		TeamID:          "t1",
		Status:          model.CheckpointDenied,
		Original:        "draft",
		Reason:          "off topic",
	}
	w := model.WorkerExecution{
		WorkerID: "analyst",
		Status:   model.WorkerFailed,
		Tier:     "small",
		Attempts: []model.Attempt{{Tier: "large"}, {Tier: "small"}},
		Error:    "exhausted",
	}

	tests := []struct {
		name     string
		event    Event
		wantType string
	}{
		{"execution started", NewExecutionStartedEvent("e1", "p1", "task", 2, ""), TypeExecutionStarted},
		{"execution completed", NewExecutionCompletedEvent("e1", model.Usage{}, time.Second), TypeExecutionCompleted},
		{"execution failed", NewExecutionFailedEvent("e1", "terminal_worker", "x", model.Boundary{}), TypeExecutionFailed},
		{"execution cancelled", NewExecutionCancelledEvent("e1", model.Boundary{}), TypeExecutionCancelled},
		{"execution paused", NewExecutionPausedEvent("e1", "t1", "no", model.Boundary{}), TypeExecutionPaused},
		{"team completed", NewTeamCompletedEvent("e1", "te1", "t1", "R", time.Second, false), TypeTeamCompleted},
		{"team failed", NewTeamFailedEvent("e1", "te1", "t1", "R", "x", true), TypeTeamFailed},
		{"team skipped", NewTeamSkippedEvent("e1", "te1", "t1", "R", "cancelled"), TypeTeamSkipped},
		{"worker started", NewWorkerStartedEvent("e1", "t1", "w", 1), TypeWorkerStarted},
		{"worker attempt", NewWorkerAttemptEvent("e1", "t1", "w", 1, model.Attempt{}), TypeWorkerAttempt},
		{"worker completed", NewWorkerCompletedEvent("e1", "t1", w), TypeWorkerCompleted},
		{"checkpoint required", NewCheckpointRequiredEvent(cp), TypeCheckpointRequired},
		{"checkpoint resolved", NewCheckpointResolvedEvent(cp), TypeCheckpointResolved},
		{"checkpoint timeout", NewCheckpointTimeoutEvent("cp1", "t1", time.Minute, "notify"), TypeCheckpointTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.wantType {
				t.Errorf("EventType() = %q, want %q", got, tt.wantType)
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}

	completed := NewWorkerCompletedEvent("e1", "t1", w)
	if completed.Attempts != 2 || completed.Message != "exhausted" {
		t.Errorf("worker completed payload = %+v", completed)
	}
	required := NewCheckpointRequiredEvent(cp)
	if required.Output != "draft" {
		t.Errorf("Output = %q, want frozen original", required.Output)
	}
}
