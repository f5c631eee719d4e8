package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

// serveUpdates upgrades each connection and pushes the given payloads, then
// holds the connection open until the test ends.
func serveUpdates(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestFeedAppliesUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	if err := st.UpsertTechnician(ctx, "org-1", &model.Technician{
		ID: "t-1", Availability: model.TechOffDuty, MaxJobsPerDay: 8,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	srv := serveUpdates(t, []string{
		`{"orgId":"org-1","technicianId":"t-1","location":{"lat":40.7,"lng":-74.0},"availability":"available"}`,
		`{"technicianId":"t-1"}`,                   // missing org, dropped
		`{"orgId":"org-1","technicianId":"ghost"}`, // unknown technician, logged
		`{"orgId":"org-1","technicianId":"t-1","availability":"nonsense"}`, // bad enum, dropped
	})

	c := NewClient(wsURL(srv), st, zerolog.Nop())
	go c.Run(ctx)

	waitFor(t, func() bool {
		techs, _ := st.ListAvailableTechnicians(ctx, "org-1")
		return len(techs) == 1
	})

	techs, _ := st.ListAvailableTechnicians(ctx, "org-1")
	got := techs[0]
	if got.Location == nil || got.Location.Lat != 40.7 || got.Location.Lng != -74.0 {
		t.Fatalf("location not applied: %+v", got.Location)
	}
	if got.Availability != model.TechAvailable {
		t.Fatalf("availability = %q", got.Availability)
	}
}

func TestFeedReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	if err := st.UpsertTechnician(ctx, "org-1", &model.Technician{
		ID: "t-1", Availability: model.TechOffDuty, MaxJobsPerDay: 8,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns.Add(1) == 1 {
			// First connection drops immediately to force a reconnect.
			conn.Close()
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"orgId":"org-1","technicianId":"t-1","availability":"available"}`))
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := NewClient(wsURL(srv), st, zerolog.Nop())
	c.minBackoff = 10 * time.Millisecond
	go c.Run(ctx)

	waitFor(t, func() bool {
		techs, _ := st.ListAvailableTechnicians(ctx, "org-1")
		return len(techs) == 1
	})
	if conns.Load() < 2 {
		t.Fatalf("expected a reconnect, saw %d connection(s)", conns.Load())
	}
}
