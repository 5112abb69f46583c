package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount  = registerPrefix("acct:")
	prefixBall     = registerPrefix("ball:")
	prefixSlot     = registerPrefix("slot:")
	prefixRequest  = registerPrefix("req:")
	prefixPool     = registerPrefix("pool:")
	prefixReward   = registerPrefix("rwd:")
	prefixPull     = registerPrefix("pull:")
	prefixRewOwner = registerPrefix("rwdowner:")
	prefixRate     = registerPrefix("rate:")
	prefixMeta     = registerPrefix("meta:")
)

const (
	keyRewardInventory = "rwd:inventory"
	keySlotCapacity    = "meta:slots"
	keyPaused          = "meta:paused"
)

func ballKey(player, tier string) string {
	return prefixBall + player + ":" + tier
}

func slotKey(index uint32) string {
	return prefixSlot + strconv.FormatUint(uint64(index), 10)
}

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

// getJSON unmarshals the value at key into out. Returns core.ErrNotFound
// untouched so callers can substitute zero values.
func (s *StateDB) getJSON(key string, out any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Accounts ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Ball inventory ----

func (s *StateDB) GetBallCount(player, tier string) (uint64, error) {
	var count uint64
	err := s.getJSON(ballKey(player, tier), &count)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *StateDB) SetBallCount(player, tier string, count uint64) error {
	return s.setJSON(ballKey(player, tier), count)
}

// ---- Spawn slots ----

func (s *StateDB) GetSlot(index uint32) (*core.SpawnSlot, error) {
	var slot core.SpawnSlot
	err := s.getJSON(slotKey(index), &slot)
	if errors.Is(err, core.ErrNotFound) {
		return &core.SpawnSlot{}, nil // never-written slot reads as empty
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *StateDB) SetSlot(index uint32, slot *core.SpawnSlot) error {
	return s.setJSON(slotKey(index), slot)
}

func (s *StateDB) SlotCapacity() (uint32, error) {
	var capacity uint32
	err := s.getJSON(keySlotCapacity, &capacity)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return capacity, nil
}

func (s *StateDB) SetSlotCapacity(capacity uint32) error {
	return s.setJSON(keySlotCapacity, capacity)
}

// ---- Randomness request ledger ----

func (s *StateDB) GetRequest(id string) (*core.PendingRequest, error) {
	var req core.PendingRequest
	if err := s.getJSON(prefixRequest+id, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *StateDB) SetRequest(req *core.PendingRequest) error {
	return s.setJSON(prefixRequest+req.ID, req)
}

// ---- Pools ----

func (s *StateDB) GetPool(name string) (*core.Pool, error) {
	var pool core.Pool
	err := s.getJSON(prefixPool+name, &pool)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Pool{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *StateDB) SetPool(name string, pool *core.Pool) error {
	return s.setJSON(prefixPool+name, pool)
}

// ---- Rewards ----

func (s *StateDB) GetRewardInventory() (*core.RewardInventory, error) {
	var inv core.RewardInventory
	err := s.getJSON(keyRewardInventory, &inv)
	if errors.Is(err, core.ErrNotFound) {
		return &core.RewardInventory{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *StateDB) SetRewardInventory(inv *core.RewardInventory) error {
	return s.setJSON(keyRewardInventory, inv)
}

func (s *StateDB) GetPendingPull(id string) (*core.PendingPull, error) {
	var pull core.PendingPull
	if err := s.getJSON(prefixPull+id, &pull); err != nil {
		return nil, err
	}
	return &pull, nil
}

func (s *StateDB) SetPendingPull(pull *core.PendingPull) error {
	return s.setJSON(prefixPull+pull.ID, pull)
}

func (s *StateDB) DeletePendingPull(id string) error {
	s.del(prefixPull + id)
	return nil
}

func (s *StateDB) GetRewardOwner(rewardID string) (string, error) {
	var owner string
	if err := s.getJSON(prefixRewOwner+rewardID, &owner); err != nil {
		return "", err
	}
	return owner, nil
}

func (s *StateDB) SetRewardOwner(rewardID, owner string) error {
	return s.setJSON(prefixRewOwner+rewardID, owner)
}

// ---- Exchange rates ----

func (s *StateDB) GetRate(currency string) (uint64, error) {
	var rate uint64
	if err := s.getJSON(prefixRate+currency, &rate); err != nil {
		return 0, err
	}
	return rate, nil
}

func (s *StateDB) SetRate(currency string, rate uint64) error {
	return s.setJSON(prefixRate+currency, rate)
}

// ---- Pause switch ----

func (s *StateDB) Paused() (bool, error) {
	var paused bool
	err := s.getJSON(keyPaused, &paused)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return paused, nil
}

func (s *StateDB) SetPaused(paused bool) error {
	return s.setJSON(keyPaused, paused)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding. It does NOT flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	// Step 1: collect all persisted state entries from DB.
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Step 2: apply the in-memory write buffer (uncommitted changes this block).
	for k, v := range s.dirty {
		merged[k] = v
	}

	// Step 3: exclude deleted keys.
	for k := range s.deleted {
		delete(merged, k)
	}

	// Step 4: sort keys for determinism.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Step 5: length-prefix encode each key-value pair and hash.
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
