package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Broadcaster relays every event on the bus to connected websocket clients
// (SPEC_FULL.md §11: gorilla/websocket promoted from an indirect teacher
// dependency to direct domain-stack use as the event-channel transport).
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewBroadcaster subscribes to each of the given channels on bus and returns
// an HTTP handler clients can connect to for a live feed of those events.
func NewBroadcaster(bus *Bus, channels ...Channel) *Broadcaster {
	b := &Broadcaster{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]bool),
	}
	for _, ch := range channels {
		bus.Subscribe(ch, b.relay)
	}
	return b
}

func (b *Broadcaster) relay(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// ServeHTTP upgrades an incoming request to a websocket and registers the
// connection as an event subscriber until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
