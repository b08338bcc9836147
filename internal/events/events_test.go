package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
	panic  bool
}

func (s *recordingSink) Deliver(_ context.Context, ev Event) error {
	if s.block != nil {
		<-s.block
	}
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Name
	}
	return out
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatcher_deliversInOrderAndDrainsOnClose(t *testing.T) {
	t.Parallel()

	log, _ := test.NewNullLogger()
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8, log)

	d.Emit(ItemCreated, map[string]string{"slug": "a"})
	d.Emit(ItemUpdated, nil)
	d.Emit(ItemDeleted, nil)
	closeDispatcher(t, d)

	got := sink.names()
	want := []string{ItemCreated, ItemUpdated, ItemDeleted}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDispatcher_Emit_dropsWhenFull(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, log)

	// the worker may hold one event while blocked; the queue holds one more
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Emit(ItemCreated, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked")
	}

	close(sink.block)
	closeDispatcher(t, d)

	dropped := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "event dropped: queue full" {
			dropped++
		}
	}
	if dropped == 0 || dropped+len(sink.names()) != 5 {
		t.Fatalf("dropped %d, delivered %d; want them to add up to 5 with some drops", dropped, len(sink.names()))
	}
}

func TestDispatcher_swallowsSinkFailures(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	failing := NewDispatcher(&recordingSink{err: errors.New("broker down")}, 4, log)
	failing.Emit(ItemCreated, nil)
	closeDispatcher(t, failing)

	panicking := NewDispatcher(&recordingSink{panic: true}, 4, log)
	panicking.Emit(ItemCreated, nil)
	closeDispatcher(t, panicking)

	var sawFailure, sawPanic bool
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "event delivery failed":
			sawFailure = true
		case "event sink panicked":
			sawPanic = true
		}
	}
	if !sawFailure || !sawPanic {
		t.Fatalf("failure logged %v, panic logged %v", sawFailure, sawPanic)
	}
}

func TestDispatcher_Emit_afterCloseIsDropped(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	sink := &recordingSink{}
	d := NewDispatcher(sink, 4, log)
	closeDispatcher(t, d)

	d.Emit(ItemCreated, nil)
	if n := len(sink.names()); n != 0 {
		t.Fatalf("delivered %d events after close", n)
	}
	if last := hook.LastEntry(); last == nil || last.Message != "event dropped: dispatcher closed" {
		t.Fatalf("last log entry = %+v", last)
	}
	// closing twice is harmless
	closeDispatcher(t, d)
}

func TestLogSink_Deliver(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	if err := NewLogSink(log).Deliver(context.Background(), Event{Name: ItemDeleted, Payload: "slug-1"}); err != nil {
		t.Fatal(err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != ItemDeleted || entry.Data["payload"] != "slug-1" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestRedisSink_Deliver(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	sub := client.Subscribe(ctx, "anythink:test")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink := NewRedisSink(client, "anythink:test")
	if err := sink.Deliver(ctx, Event{Name: ItemCreated, Payload: map[string]string{"title": "lamp"}}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Name != ItemCreated {
		t.Fatalf("name = %q", ev.Name)
	}
}
