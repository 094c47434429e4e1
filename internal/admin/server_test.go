package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"golang.org/x/net/websocket"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/scenario"
	"github.com/asg0451/crakv/internal/store"
)

func newNode(t *testing.T) (*node.Node, *bus.Pipe) {
	t.Helper()
	in := bus.NewPipe(8)
	out := bus.NewPipe(8)
	n := node.NewKV(node.Config{ID: "n1", Workers: 1}, store.NewLocked(), in, out)

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()
	t.Cleanup(func() {
		in.Close()
		<-done
	})
	return n, in
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	defer ts.Close()

	var body map[string]string
	if code := getJSON(t, ts.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
}

func TestStats(t *testing.T) {
	n, in := newNode(t)
	s := NewServer("", nil)
	s.AddNode(n)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	msg := maelstrom.Message{Src: "c1", Dest: "n1", Body: json.RawMessage(`{"type":"write","msg_id":1,"key":"k","value":1}`)}
	if err := in.Send(context.Background(), msg); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	var resp StatsResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		getJSON(t, ts.URL+"/api/stats", &resp)
		if len(resp.Nodes) == 1 && resp.Nodes[0].StoreSize == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(resp.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(resp.Nodes))
	}
	got := resp.Nodes[0]
	if got.ID != "n1" || got.State != "running" {
		t.Errorf("unexpected node stats: %+v", got)
	}
	if got.StoreSize != 1 {
		t.Errorf("expected store size 1, got %d", got.StoreSize)
	}
	if got.Metrics.ByKind["write"].Success != 1 {
		t.Errorf("expected 1 successful write, got %+v", got.Metrics.ByKind)
	}

	var one node.Stats
	if code := getJSON(t, ts.URL+"/api/nodes/n1", &one); code != http.StatusOK || one.ID != "n1" {
		t.Errorf("expected n1 stats, got %d %+v", code, one)
	}
	if code := getJSON(t, ts.URL+"/api/nodes/n9", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown node, got %d", code)
	}
}

func TestScenarioEndpoint(t *testing.T) {
	s := NewServer("", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	if code := getJSON(t, ts.URL+"/api/scenario", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 without engine, got %d", code)
	}

	s.SetEngine(scenario.New(scenario.BasicScenario()))

	var resp ScenarioResponse
	if code := getJSON(t, ts.URL+"/api/scenario", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Running {
		t.Error("expected engine not running")
	}
}

func TestPresets(t *testing.T) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	defer ts.Close()

	var presets []PresetInfo
	if code := getJSON(t, ts.URL+"/api/presets", &presets); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(presets) != len(scenario.ListPresets()) {
		t.Errorf("expected %d presets, got %d", len(scenario.ListPresets()), len(presets))
	}
	for _, p := range presets {
		if p.Description == "" {
			t.Errorf("expected description for %s", p.Name)
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	eventBus := events.NewBus()
	defer eventBus.Close()

	s := NewServer("", eventBus)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.forwardEvents(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", ts.URL)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(5 * time.Second)
	for (s.ClientCount() == 0 || eventBus.SubscriberCount() == 0) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	eventBus.Publish(events.NewChaosAttackEvent("n2", events.AttackTypePartition))

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var raw string
	if err := websocket.Message.Receive(ws, &raw); err != nil {
		t.Fatalf("failed to receive: %v", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != "event" || msg.Event == nil {
		t.Fatalf("expected event message, got %s", raw)
	}
	if msg.Event.Type != events.EventChaosAttack || msg.Event.NodeID != "n2" {
		t.Errorf("unexpected event: %+v", msg.Event)
	}
	if msg.Event.Data.AttackType != events.AttackTypePartition {
		t.Errorf("expected partition attack, got %s", msg.Event.Data.AttackType)
	}
}
