package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

func joinAll(t *testing.T, n *Network, addrs ...string) map[string]*Endpoint {
	t.Helper()
	eps := make(map[string]*Endpoint)
	for _, addr := range addrs {
		ep, err := n.Join(addr)
		if err != nil {
			t.Fatalf("join %s: %v", addr, err)
		}
		eps[addr] = ep
	}
	return eps
}

func TestNetworkRoute(t *testing.T) {
	n := NewNetwork(0)
	defer n.Close()
	eps := joinAll(t, n, "n1", "c1")
	ctx := context.Background()

	if err := eps["c1"].Send(ctx, maelstrom.Message{Dest: "n1"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msg, err := eps["n1"].Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if msg.Src != "c1" {
		t.Errorf("expected src to be filled in as c1, got %q", msg.Src)
	}
	if n.Stats().Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", n.Stats().Delivered)
	}
}

func TestNetworkJoinDuplicate(t *testing.T) {
	n := NewNetwork(0)
	defer n.Close()
	joinAll(t, n, "n1")

	if _, err := n.Join("n1"); err == nil {
		t.Error("expected error for duplicate address")
	}
	if got := n.Addrs(); len(got) != 1 || got[0] != "n1" {
		t.Errorf("unexpected addrs: %v", got)
	}
}

func TestNetworkPartitionDrops(t *testing.T) {
	n := NewNetwork(0)
	defer n.Close()
	eps := joinAll(t, n, "n1", "c1")
	ctx := context.Background()

	n.Partition("n1")
	if !n.Fault("n1").Partitioned {
		t.Fatal("expected n1 to be partitioned")
	}

	_ = eps["c1"].Send(ctx, maelstrom.Message{Dest: "n1"})
	_ = eps["c1"].Send(ctx, maelstrom.Message{Dest: "nobody"})

	if n.Stats().Dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", n.Stats().Dropped)
	}

	n.Heal("n1")
	_ = eps["c1"].Send(ctx, maelstrom.Message{Dest: "n1"})

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := eps["n1"].Recv(recvCtx); err != nil {
		t.Errorf("expected delivery after heal, got %v", err)
	}
}

func TestNetworkDelay(t *testing.T) {
	n := NewNetwork(0)
	defer n.Close()
	eps := joinAll(t, n, "n1", "c1")
	ctx := context.Background()

	delay := 30 * time.Millisecond
	n.SetDelay("n1", delay)

	start := time.Now()
	_ = eps["c1"].Send(ctx, maelstrom.Message{Dest: "n1"})
	if _, err := eps["n1"].Recv(ctx); err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("expected at least %v delay, got %v", delay, elapsed)
	}
}

func TestNetworkClose(t *testing.T) {
	n := NewNetwork(0)
	eps := joinAll(t, n, "n1", "c1")
	ctx := context.Background()

	n.Close()
	n.Close()

	if _, err := eps["n1"].Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on recv, got %v", err)
	}
	if err := eps["c1"].Send(ctx, maelstrom.Message{Dest: "n1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on send, got %v", err)
	}
	if _, err := n.Join("n2"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on join, got %v", err)
	}
}

func TestNetworkLeave(t *testing.T) {
	n := NewNetwork(0)
	defer n.Close()
	eps := joinAll(t, n, "n1")

	n.Leave("n1")
	if _, err := eps["n1"].Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after leave, got %v", err)
	}
}
