// Package events provides lifecycle and fault-injection notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// EventNodeStarted is emitted when a node loop begins reading requests
	EventNodeStarted EventType = "node_started"
	// EventNodeDraining is emitted when the bus closes and the node waits for in-flight handlers
	EventNodeDraining EventType = "node_draining"
	// EventNodeStopped is emitted when a node loop returns without error
	EventNodeStopped EventType = "node_stopped"
	// EventNodeFailed is emitted when a node loop terminates with an error
	EventNodeFailed EventType = "node_failed"
	// EventChaosAttack is emitted when a fault is injected
	EventChaosAttack EventType = "chaos_attack"
	// EventChaosHeal is emitted when an injected fault is removed
	EventChaosHeal EventType = "chaos_heal"
)

// AttackType represents the type of injected fault
type AttackType string

const (
	AttackTypePartition AttackType = "partition"
	AttackTypeDelay     AttackType = "delay"
)

// Event represents a node or chaos event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	AttackType    AttackType `json:"attack_type,omitempty"`
	DelayDuration string     `json:"delay_duration,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func newEvent(typ EventType, nodeID string, data EventData) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		Data:      data,
	}
}

// NewNodeEvent creates a lifecycle event without payload
func NewNodeEvent(typ EventType, nodeID string) Event {
	return newEvent(typ, nodeID, EventData{})
}

// NewNodeFailedEvent creates a node failure event
func NewNodeFailedEvent(nodeID string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return newEvent(EventNodeFailed, nodeID, EventData{Error: errMsg})
}

// NewChaosAttackEvent creates a chaos attack event
func NewChaosAttackEvent(nodeID string, attackType AttackType) Event {
	return newEvent(EventChaosAttack, nodeID, EventData{AttackType: attackType})
}

// NewChaosAttackEventWithDelay creates a chaos attack event for delay injection
func NewChaosAttackEventWithDelay(nodeID string, delay time.Duration) Event {
	return newEvent(EventChaosAttack, nodeID, EventData{
		AttackType:    AttackTypeDelay,
		DelayDuration: delay.String(),
	})
}

// NewChaosHealEvent creates a chaos heal event
func NewChaosHealEvent(nodeID string) Event {
	return newEvent(EventChaosHeal, nodeID, EventData{})
}
