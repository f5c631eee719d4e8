// Package main runs a demo telemetry gateway: a websocket endpoint that
// emits technician location/availability updates for a local dispatchd to
// consume (DISPATCH_TELEMETRY_URL=ws://localhost:9191/telemetry).
package main

import (
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type update struct {
	OrgID        string  `json:"orgId"`
	TechnicianID string  `json:"technicianId"`
	Location     *latLng `json:"location,omitempty"`
	Availability string  `json:"availability,omitempty"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func main() {
	addr := ":9191"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}
	org := os.Getenv("ORG_ID")
	if org == "" {
		org = "default"
	}

	upgrader := websocket.Upgrader{}
	techs := []string{"t-1", "t-2", "t-3"}

	http.HandleFunc("/telemetry", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		log.Printf("subscriber connected: %s", r.RemoteAddr)

		// Random walk around downtown Manhattan, one update per second.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			id := techs[rand.Intn(len(techs))]
			u := update{
				OrgID:        org,
				TechnicianID: id,
				Location: &latLng{
					Lat: 40.71 + rand.Float64()*0.05,
					Lng: -74.01 + rand.Float64()*0.05,
				},
			}
			if rand.Intn(10) == 0 {
				u.Availability = "break"
			}
			if err := conn.WriteJSON(u); err != nil {
				log.Printf("write: %v", err)
				return
			}
		}
	})

	log.Printf("telemetry gateway on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
