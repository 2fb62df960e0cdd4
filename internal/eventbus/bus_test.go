package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

type nopLogger struct{}

func (nopLogger) Level() zapcore.Level { return zapcore.InfoLevel }

func (nopLogger) Debug(args ...interface{})                 {}
func (nopLogger) Debugf(string, ...interface{})             {}
func (nopLogger) Debugw(string, ...interface{})             {}
func (nopLogger) Info(args ...interface{})                  {}
func (nopLogger) Infof(string, ...interface{})              {}
func (nopLogger) Infow(string, ...interface{})              {}
func (nopLogger) Warn(args ...interface{})                  {}
func (nopLogger) Warnf(string, ...interface{})              {}
func (nopLogger) Warnw(string, ...interface{})              {}
func (nopLogger) Error(args ...interface{})                 {}
func (nopLogger) Errorf(string, ...interface{})             {}
func (nopLogger) Errorw(string, ...interface{})             {}
func (nopLogger) DPanic(args ...interface{})                {}
func (nopLogger) Panic(args ...interface{})                 {}
func (nopLogger) Fatal(args ...interface{})                 {}
func (nopLogger) Benchmark(string, time.Duration)            {}
func (nopLogger) Tracef(context.Context, string, ...interface{}) {}
func (nopLogger) Sync() error                                { return nil }

func TestEmitDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	got := make(chan Event, 1)
	b.Subscribe(CallAnswered, func(e Event) { got <- e })

	b.Emit(Event{AgentID: "a1", Tag: CallAnswered, Fields: map[string]interface{}{"call_id": "c1"}})

	ev := <-got
	if ev.AgentID != "a1" || ev.Get("call_id") != "c1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatalf("expected auto-filled timestamp")
	}
}

func TestEmitIsolatesPanickingListener(t *testing.T) {
	b := New(nil)
	var called bool
	b.Subscribe(AudioEnded, func(Event) { panic("boom") })
	b.Subscribe(AudioEnded, func(Event) { called = true })

	b.Emit(Event{AgentID: "a1", Tag: AudioEnded})

	if !called {
		t.Fatalf("second listener should still run after first panics")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var n int
	unsub := b.Subscribe(SpeechDetected, func(Event) { n++ })
	b.Emit(Event{AgentID: "a", Tag: SpeechDetected})
	unsub()
	b.Emit(Event{AgentID: "a", Tag: SpeechDetected})

	if n != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", n)
	}
}

func TestScopedFiltersByAgentID(t *testing.T) {
	b := New(nil)
	s1 := NewScoped(b, "agent-1")
	s2 := NewScoped(b, "agent-2")

	var mu sync.Mutex
	var seenBy1, seenBy2 int
	s1.Subscribe(CallAnswered, func(Event) { mu.Lock(); seenBy1++; mu.Unlock() })
	s2.Subscribe(CallAnswered, func(Event) { mu.Lock(); seenBy2++; mu.Unlock() })

	s1.Emit(CallAnswered, nil)

	if seenBy1 != 1 || seenBy2 != 0 {
		t.Fatalf("scoped emit leaked across agents: seenBy1=%d seenBy2=%d", seenBy1, seenBy2)
	}
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	b := New(nopLogger{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := b.Subscribe(CallAnswered, func(Event) {})
			b.Emit(Event{AgentID: "a", Tag: CallAnswered})
			unsub()
		}()
	}
	wg.Wait()
}
