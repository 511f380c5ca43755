// Package notify delivers the event feed to configured external endpoints.
// Delivery is best effort: a failed endpoint is retried on the next poll from
// its last acknowledged cursor, and errors never reach the writing side.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"contractdesk/internal/config"
	"contractdesk/internal/domain"
	"contractdesk/internal/repo"
)

const (
	defaultPushInterval = 2 * time.Second
	defaultPushTimeout  = 5 * time.Second
	defaultPushBatch    = 100
)

type Dispatcher struct {
	repo      repo.Repo
	endpoints []config.PushEndpoint
	client    *http.Client
	mu        sync.Mutex
	cursors   map[int]int64
}

// New builds a dispatcher for the configured endpoints without starting it.
// Returns nil when nothing is configured.
func New(r repo.Repo, cfg *config.Config) *Dispatcher {
	if cfg == nil || len(cfg.Push.Endpoints) == 0 {
		return nil
	}
	return &Dispatcher{
		repo:      r,
		endpoints: cfg.Push.Endpoints,
		client:    &http.Client{Timeout: defaultPushTimeout},
		cursors:   make(map[int]int64),
	}
}

// Start launches a background dispatcher for the configured endpoints.
// Returns nil when nothing is configured.
func Start(r repo.Repo, cfg *config.Config) *Dispatcher {
	d := New(r, cfg)
	if d != nil {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()
	for {
		d.DispatchAll()
		<-ticker.C
	}
}

// DispatchAll runs one delivery pass over every enabled endpoint.
func (d *Dispatcher) DispatchAll() {
	for i, ep := range d.endpoints {
		if ep.Enabled != nil && !*ep.Enabled {
			continue
		}
		if strings.TrimSpace(ep.URL) == "" {
			continue
		}
		d.dispatchEndpoint(i, ep)
	}
}

func (d *Dispatcher) dispatchEndpoint(idx int, ep config.PushEndpoint) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	events, err := d.repo.EventsAfter(ctx, defaultPushBatch, cursor)
	if err != nil {
		log.Printf("[push] fetch events failed: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(ep.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, ep, evt); err != nil {
			log.Printf("[push] deliver to %s failed: %v", ep.URL, err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	// New endpoints start at the tip; historical events are not replayed.
	cur, err := d.repo.LatestEventID(context.Background())
	if err != nil {
		log.Printf("[push] init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type pushEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *Dispatcher) postEvent(ctx context.Context, ep config.PushEndpoint, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := pushEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultPushTimeout
	if ep.TimeoutSeconds > 0 {
		timeout = time.Duration(ep.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Contractdesk-Event", evt.Type)
	req.Header.Set("X-Contractdesk-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(ep.Secret) != "" {
		req.Header.Set("X-Contractdesk-Secret", ep.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
