package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetroute/internal/events"
)

// Event stream over WebSocket, framed like graphql-transport-ws: the client
// sends connection_init, then subscribe messages naming the event types it
// wants; every matching tenant event arrives as a next message.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	// Events filters by event type; empty means every event.
	Events []string `json:"events"`
}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
)

// EventsWSHandler handles /v1/events/ws
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	tenant := s.tenantFrom(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	subs := map[string]chan events.Event{}
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		for id, ch := range subs {
			s.Broker.Unsubscribe(tenant, ch)
			delete(subs, id)
		}
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
			_ = write(wsMessage{Type: "connection_ack"})
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if !acked {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"connection_init required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"subscription id missing or in use"}`)})
				continue
			}
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			ch := s.Broker.Subscribe(tenant)
			subs[msg.ID] = ch
			wg.Add(1)
			go func(id string, c chan events.Event, want []string) {
				defer wg.Done()
				for evt := range c {
					if len(want) > 0 && !slices.Contains(want, evt.Type) {
						continue
					}
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, pl.Events)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(tenant, ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
}
