// Package indexer maintains secondary indexes over committed chain events so
// game servers can answer per-player questions (catch history, rewards won,
// outstanding throws) without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/storage"
)

const (
	prefixPlayerCatches  = "idx:player:catch:"
	prefixOwnerRewards   = "idx:owner:reward:"
	prefixPlayerRequests = "idx:player:request:"
)

// Catch is one resolved successful throw as recorded by the index.
type Catch struct {
	RequestID string `json:"request_id"`
	Creature  string `json:"creature"`
	Tier      string `json:"tier"`
	Slot      uint32 `json:"slot"`
	Height    int64  `json:"height"`
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventThrowRequested, idx.onThrowRequested)
	emitter.Subscribe(events.EventCreatureCaught, idx.onCreatureCaught)
	emitter.Subscribe(events.EventCreatureMissed, idx.onCreatureMissed)
	emitter.Subscribe(events.EventRequestRefunded, idx.onRequestRefunded)
	emitter.Subscribe(events.EventRewardAssigned, idx.onRewardAssigned)
	return idx
}

// GetCatchesByPlayer returns the player's catch history, oldest first.
func (idx *Indexer) GetCatchesByPlayer(player string) ([]Catch, error) {
	data, err := idx.db.Get([]byte(prefixPlayerCatches + player))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var catches []Catch
	if err := json.Unmarshal(data, &catches); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return catches, nil
}

// GetRewardsByOwner returns all reward unit IDs assigned to owner.
func (idx *Indexer) GetRewardsByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerRewards + owner)
}

// GetPendingRequestsByPlayer returns the IDs of the player's unresolved
// throw requests.
func (idx *Indexer) GetPendingRequestsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerRequests + player)
}

// ---- event handlers ----

func (idx *Indexer) onThrowRequested(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	requestID, _ := ev.Data["request_id"].(string)
	if player == "" || requestID == "" {
		return
	}
	_ = idx.addToList(prefixPlayerRequests+player, requestID)
}

func (idx *Indexer) onCreatureCaught(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	requestID, _ := ev.Data["request_id"].(string)
	if player == "" || requestID == "" {
		return
	}
	_ = idx.removeFromList(prefixPlayerRequests+player, requestID)

	creature, _ := ev.Data["creature"].(string)
	tier, _ := ev.Data["tier"].(string)
	rec := Catch{
		RequestID: requestID,
		Creature:  creature,
		Tier:      tier,
		Slot:      asUint32(ev.Data["slot"]),
		Height:    ev.BlockHeight,
	}
	catches, _ := idx.GetCatchesByPlayer(player)
	catches = append(catches, rec)
	data, err := json.Marshal(catches)
	if err != nil {
		return
	}
	_ = idx.db.Set([]byte(prefixPlayerCatches+player), data)
}

func (idx *Indexer) onCreatureMissed(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	requestID, _ := ev.Data["request_id"].(string)
	if player == "" || requestID == "" {
		return
	}
	_ = idx.removeFromList(prefixPlayerRequests+player, requestID)
}

func (idx *Indexer) onRequestRefunded(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	requestID, _ := ev.Data["request_id"].(string)
	if player == "" || requestID == "" {
		return
	}
	_ = idx.removeFromList(prefixPlayerRequests+player, requestID)
}

func (idx *Indexer) onRewardAssigned(ev events.Event) {
	winner, _ := ev.Data["winner"].(string)
	rewardID, _ := ev.Data["reward_id"].(string)
	if winner == "" || rewardID == "" {
		return
	}
	_ = idx.addToList(prefixOwnerRewards+winner, rewardID)
}

// asUint32 tolerates the numeric types the emitter's in-process path and a
// JSON round trip both produce.
func asUint32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case float64:
		return uint32(n)
	case int:
		return uint32(n)
	}
	return 0
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, _ := idx.getList(key)
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, _ := idx.getList(key)
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
