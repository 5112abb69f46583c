// Package events is the pub/sub bus for everything observable about the
// game: purchases, throws, catches, relocations, reward movements and the
// operational alerts monitoring cares about. The indexer and the websocket
// feed are its main consumers.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"

	// Economy
	EventTokenTransfer     EventType = "token_transfer"
	EventBallsPurchased    EventType = "balls_purchased"
	EventRevenueAccrued    EventType = "revenue_accrued"
	EventRateSet           EventType = "exchange_rate_set"
	EventTreasuryWithdrawn EventType = "treasury_withdrawn"

	// Hunt lifecycle
	EventThrowRequested    EventType = "throw_requested"
	EventCreatureCaught    EventType = "creature_caught"
	EventCreatureMissed    EventType = "creature_missed"
	EventSpawnRequested    EventType = "spawn_requested"
	EventSlotSpawned       EventType = "slot_spawned"
	EventSlotRelocating    EventType = "slot_relocating"
	EventSlotsExpanded     EventType = "slots_expanded"
	EventRequestRefunded   EventType = "request_refunded"
	EventPausedSet         EventType = "paused_set"

	// Rewards
	EventRewardAssigned  EventType = "reward_assigned"
	EventRewardShortfall EventType = "reward_shortfall"
	EventPullRequested   EventType = "reward_pull_requested"
	EventRewardDelivered EventType = "reward_delivered"
	EventRewardRecovered EventType = "reward_recovered"

	// Operational alerts: an external submission failed after local state
	// already committed. Never a rollback, always an alert.
	EventOracleSubmitFailed EventType = "oracle_submit_failed"
	EventIssuerSubmitFailed EventType = "issuer_submit_failed"
)

// Event carries a typed payload emitted after a state change. Proposer is
// the block proposer's pubkey hex; the relay uses it to act only on blocks
// this node produced.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Proposer    string         `json:"proposer,omitempty"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	log      *zap.Logger
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter(log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{log: log, handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type. Used by the websocket feed.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("event handler panicked",
						zap.String("event", string(ev.Type)),
						zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}
