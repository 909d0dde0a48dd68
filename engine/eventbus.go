package engine

import (
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// listener matches every type when types is empty.
type listener struct {
	id    SubscriberID
	types []EventType
	fn    func(Event)
}

func (l *listener) matches(t EventType) bool {
	return len(l.types) == 0 || slices.Contains(l.types, t)
}

// EventBus delivers events synchronously on the emitting goroutine, in
// subscription order. Emit reads a snapshot and never takes the lock, so
// a subscriber may subscribe or unsubscribe from inside its callback.
type EventBus struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]*listener]
	nextID    SubscriberID
}

func NewEventBus() *EventBus {
	eb := &EventBus{}
	eb.listeners.Store(&[]*listener{})
	return eb
}

// Subscribe registers fn for every event type.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return eb.add(fn, nil)
}

// SubscribeTypes registers fn for the listed types only.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	return eb.add(fn, slices.Clone(types))
}

func (eb *EventBus) add(fn func(Event), types []EventType) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	next := append(slices.Clone(*eb.listeners.Load()), &listener{id: eb.nextID, types: types, fn: fn})
	eb.listeners.Store(&next)
	return eb.nextID
}

func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	next := slices.DeleteFunc(slices.Clone(*eb.listeners.Load()), func(l *listener) bool { return l.id == id })
	eb.listeners.Store(&next)
}

func (eb *EventBus) Len() int {
	return len(*eb.listeners.Load())
}

// Emit stamps evt if needed and hands it to each matching listener.
// A panic in one listener is logged and does not reach the others.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	for _, l := range *eb.listeners.Load() {
		if l.matches(evt.Type) {
			l.call(evt)
		}
	}
}

func (l *listener) call(evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: listener %d panicked on %s: %v", l.id, EventName(evt.Type), r)
		}
	}()
	l.fn(evt)
}
