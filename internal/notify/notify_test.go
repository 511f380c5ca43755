package notify

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/events"
	"contractdesk/internal/migrate"
	"contractdesk/internal/repo"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
	header http.Header
}

func (c *capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, data)
	c.header = r.Header.Clone()
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestDispatcherDeliversNewEvents(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	writer := events.Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
	ctx := context.Background()

	appendEvent := func(evtType string) {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Rollback()
		if err := writer.Append(ctx, tx, evtType, "contract", "c1", "adm", events.EventPayload{"n": 1}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	// An event written before the dispatcher exists must not be replayed.
	appendEvent("contract.created")

	sink := &capture{}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: sink}
	go srv.Serve(ln)
	defer func() {
		srv.Shutdown(context.Background())
		ln.Close()
	}()

	cfg := config.Default("test")
	cfg.Push.Endpoints = []config.PushEndpoint{
		{Name: "sink", URL: "http://" + ln.Addr().String(), Secret: "s3cret", Events: []string{"contract.updated"}},
	}
	d := New(r, cfg)
	if d == nil {
		t.Fatal("expected dispatcher")
	}
	d.DispatchAll() // initializes the cursor at the tip

	appendEvent("contract.updated")
	appendEvent("contract.deleted") // filtered out by the endpoint
	d.DispatchAll()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sink.bodies))
	}
	var got pushEvent
	if err := json.Unmarshal(sink.bodies[0], &got); err != nil {
		t.Fatalf("unmarshal delivery: %v", err)
	}
	if got.Type != "contract.updated" || got.EntityID != "c1" {
		t.Fatalf("delivery = %+v", got)
	}
	if sink.header.Get("X-Contractdesk-Secret") != "s3cret" {
		t.Fatal("secret header missing")
	}
	if sink.header.Get("X-Contractdesk-Event") != "contract.updated" {
		t.Fatalf("event header = %q", sink.header.Get("X-Contractdesk-Event"))
	}
}

func TestDispatcherSurvivesDeadEndpoint(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test")
	cfg.Push.Endpoints = []config.PushEndpoint{
		{Name: "dead", URL: "http://127.0.0.1:1", TimeoutSeconds: 1},
	}
	d := New(repo.Repo{DB: conn}, cfg)
	// Must not panic or block; the failure is logged and retried next pass.
	d.DispatchAll()
}
