package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/engine"
)

const (
	sseKeepalive   = 30 * time.Second
	sseClientQueue = 64
)

type SSEEvent struct {
	Event     string
	Data      string
	BookingID int64
}

// sseClient receives every event when booking is 0, otherwise only the
// events of that booking plus keepalives.
type sseClient struct {
	events  chan SSEEvent
	booking int64
}

func (c *sseClient) wants(evt SSEEvent) bool {
	return c.booking == 0 || evt.Event == "keepalive" || evt.BookingID == c.booking
}

type EventHub struct {
	mu       sync.RWMutex
	clients  map[chan SSEEvent]*sseClient
	incoming chan SSEEvent
	done     chan struct{}
	stopOnce sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:  make(map[chan SSEEvent]*sseClient),
		incoming: make(chan SSEEvent, 256),
		done:     make(chan struct{}),
	}
}

func (h *EventHub) Start() { go h.loop() }

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *EventHub) loop() {
	ping := time.NewTicker(sseKeepalive)
	defer ping.Stop()
	for {
		select {
		case <-h.done:
			return
		case evt := <-h.incoming:
			h.deliver(evt)
		case <-ping.C:
			h.deliver(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

// deliver never blocks; a client whose queue is full misses the event.
func (h *EventHub) deliver(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.events <- evt:
		default:
		}
	}
}

func (h *EventHub) Broadcast(evt SSEEvent) {
	select {
	case h.incoming <- evt:
	default:
		log.Printf("sse: hub queue full, dropped %s", evt.Event)
	}
}

// AddClient registers a listener. bookingID 0 subscribes to everything.
func (h *EventHub) AddClient(bookingID int64) chan SSEEvent {
	c := &sseClient{events: make(chan SSEEvent, sseClientQueue), booking: bookingID}
	h.mu.Lock()
	h.clients[c.events] = c
	h.mu.Unlock()
	return c.events
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	_, ok := h.clients[ch]
	delete(h.clients, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners forwards engine events as SSE, named by
// engine.EventName with the payload as JSON data.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.Subscribe(func(evt engine.Event) {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			log.Printf("sse: marshal %s: %v", engine.EventName(evt.Type), err)
			return
		}
		var ref struct {
			BookingID int64 `json:"booking_id"`
		}
		_ = json.Unmarshal(data, &ref)
		h.Broadcast(SSEEvent{Event: engine.EventName(evt.Type), Data: string(data), BookingID: ref.BookingID})
	})
}

// SSEHandler streams events. ?booking=<id> narrows the stream to one booking.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	var booking int64
	if v := r.URL.Query().Get("booking"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "booking must be a positive id", http.StatusBadRequest)
			return
		}
		booking = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.AddClient(booking)
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
