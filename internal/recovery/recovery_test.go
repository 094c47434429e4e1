package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/cluster"
	"github.com/asg0451/crakv/internal/events"
)

func newCluster(t *testing.T, count int) *cluster.Cluster {
	t.Helper()
	c := cluster.New(cluster.DefaultConfig())
	if err := c.CreateNodes(count, "n"); err != nil {
		t.Fatalf("failed to create nodes: %v", err)
	}
	if err := c.StartAll(context.Background()); err != nil {
		t.Fatalf("failed to start nodes: %v", err)
	}
	t.Cleanup(func() { _ = c.StopAll() })
	return c
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.HealthCheckInterval != 1*time.Second {
		t.Errorf("expected interval 1s, got %v", config.HealthCheckInterval)
	}
	if config.RecoveryDelay != 2*time.Second {
		t.Errorf("expected recovery delay 2s, got %v", config.RecoveryDelay)
	}
	if !config.AutoHeal {
		t.Error("expected auto heal to be true")
	}
}

func TestNewManager(t *testing.T) {
	manager := New(cluster.New(cluster.DefaultConfig()), DefaultConfig())

	if manager == nil {
		t.Fatal("expected non-nil manager")
	}
	if manager.IsRunning() {
		t.Error("expected manager to not be running initially")
	}
}

func TestManagerHealsAfterDelay(t *testing.T) {
	c := newCluster(t, 2)
	c.Network().Partition("n1")
	c.Network().SetDelay("n2", 10*time.Millisecond)

	config := DefaultConfig()
	config.RecoveryDelay = time.Second
	manager := New(c, config)

	eventBus := events.NewBus()
	defer eventBus.Close()
	sub := eventBus.Subscribe()
	manager.SetEventBus(eventBus)

	now := time.Now()

	// 初回は検出のみ
	manager.CheckAndRecover(now)
	if stats := manager.Stats(); stats.CurrentlyFaulted != 2 {
		t.Errorf("expected 2 faulted nodes, got %d", stats.CurrentlyFaulted)
	}
	if !c.Network().Fault("n1").Partitioned {
		t.Error("expected n1 to remain partitioned before the delay")
	}

	// 待機時間内は解除しない
	manager.CheckAndRecover(now.Add(500 * time.Millisecond))
	if manager.Stats().TotalRecoveries != 0 {
		t.Error("expected no recoveries before the delay")
	}

	manager.CheckAndRecover(now.Add(2 * time.Second))
	stats := manager.Stats()
	if stats.TotalRecoveries != 2 {
		t.Errorf("expected 2 recoveries, got %d", stats.TotalRecoveries)
	}
	if stats.HealedPartitions != 1 || stats.ClearedDelays != 1 {
		t.Errorf("expected 1 partition and 1 delay healed, got %+v", stats)
	}
	if stats.CurrentlyFaulted != 0 {
		t.Errorf("expected 0 faulted nodes, got %d", stats.CurrentlyFaulted)
	}
	for _, id := range []string{"n1", "n2"} {
		if f := c.Network().Fault(id); f.Partitioned || f.Delay > 0 {
			t.Errorf("expected %s healed, got %+v", id, f)
		}
	}

	for j := 0; j < 2; j++ {
		select {
		case e := <-sub:
			if e.Type != events.EventChaosHeal {
				t.Errorf("expected chaos_heal, got %s", e.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("expected heal events")
		}
	}
}

func TestManagerWithoutAutoHeal(t *testing.T) {
	c := newCluster(t, 1)
	c.Network().Partition("n1")

	config := DefaultConfig()
	config.AutoHeal = false
	manager := New(c, config)

	now := time.Now()
	manager.CheckAndRecover(now)
	manager.CheckAndRecover(now.Add(time.Hour))

	if !c.Network().Fault("n1").Partitioned {
		t.Error("expected partition to remain without auto heal")
	}
	if manager.Stats().TotalRecoveries != 0 {
		t.Error("expected no recoveries")
	}
}

func TestManagerExternalHeal(t *testing.T) {
	c := newCluster(t, 1)
	c.Network().Partition("n1")
	manager := New(c, DefaultConfig())

	now := time.Now()
	manager.CheckAndRecover(now)
	c.Network().Heal("n1")
	manager.CheckAndRecover(now.Add(100 * time.Millisecond))

	if stats := manager.Stats(); stats.CurrentlyFaulted != 0 || stats.TotalRecoveries != 0 {
		t.Errorf("expected fault cleared without recovery, got %+v", stats)
	}
}

func TestManagerReportsFailedNode(t *testing.T) {
	c := newCluster(t, 1)
	manager := New(c, DefaultConfig())

	ep, err := c.Network().Join("c1")
	if err != nil {
		t.Fatalf("failed to join: %v", err)
	}
	msg := maelstrom.Message{Dest: "n1", Body: json.RawMessage(`{"type":"frobnicate","msg_id":1}`)}
	if err := ep.Send(context.Background(), msg); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Err("n1") == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	manager.CheckAndRecover(time.Now())
	manager.CheckAndRecover(time.Now())
	if got := manager.Stats().FailedNodes; got != 1 {
		t.Errorf("expected 1 failed node reported once, got %d", got)
	}
}

func TestManagerStartStop(t *testing.T) {
	c := newCluster(t, 3)

	config := DefaultConfig()
	config.HealthCheckInterval = 20 * time.Millisecond
	config.RecoveryDelay = 20 * time.Millisecond
	manager := New(c, config)

	manager.Start(context.Background())
	if !manager.IsRunning() {
		t.Error("expected manager to be running after Start")
	}

	c.Network().Partition("n2")

	deadline := time.Now().Add(5 * time.Second)
	for c.Network().Fault("n2").Partitioned && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	manager.Stop()
	if manager.IsRunning() {
		t.Error("expected manager to not be running after Stop")
	}
	if c.Network().Fault("n2").Partitioned {
		t.Error("expected n2 to be healed")
	}

	manager.ResetStats()
	if manager.Stats().TotalRecoveries != 0 {
		t.Error("expected stats to be reset")
	}
}
