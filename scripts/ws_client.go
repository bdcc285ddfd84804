//go:build ignore

// Demo client: subscribes to the tenant event stream, submits a small
// optimization and prints the route.optimized event it triggers.
//
//	go run scripts/ws_client.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoProblem = `{
  "vehicles": [
    {"id": "v1", "capacity": {"weight": 800, "volume": 8, "pallets": 6}, "fuelConsumption": 11, "operatingCost": 1.4, "currentLocation": {"lat": 40.7128, "lon": -74.0060}}
  ],
  "customers": [
    {"id": "c1", "location": {"lat": 40.7306, "lon": -73.9866}, "timeWindow": {"start": 0, "end": 240}, "serviceTime": 10, "priority": 3, "demand": {"weight": 120, "volume": 1, "pallets": 1}},
    {"id": "c2", "location": {"lat": 40.7061, "lon": -74.0087}, "timeWindow": {"start": 30, "end": 300}, "serviceTime": 15, "priority": 1, "demand": {"weight": 80, "volume": 1, "pallets": 1}},
    {"id": "c3", "location": {"lat": 40.7484, "lon": -73.9857}, "timeWindow": {"start": 60, "end": 360}, "serviceTime": 5, "priority": 2, "demand": {"weight": 200, "volume": 2, "pallets": 2}}
  ],
  "objectives": {"minimizeCost": true, "minimizeDistance": true, "maximizeUtilization": true, "respectTimeWindows": true},
  "constraints": {"maxRouteDuration": 8, "maxCustomersPerRoute": 10, "fuelLimit": 80}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"events": []string{"route.optimized"}})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "next" {
				return
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader([]byte(demoProblem)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var res struct {
		Routes []struct {
			VehicleID string `json:"vehicleId"`
			Customers []struct {
				ID string `json:"id"`
			} `json:"customers"`
		} `json:"routes"`
		TotalCost float64 `json:"totalCost"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Fatal(err)
	}
	log.Printf("optimize: status=%d routes=%d totalCost=%.2f", resp.StatusCode, len(res.Routes), res.TotalCost)

	select {
	case <-time.After(3 * time.Second):
		log.Print("no event received")
	case <-done:
	}
}
