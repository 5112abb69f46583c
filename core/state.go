package core

// Account holds a player's currency balances and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address  string            `json:"address"` // pubkey hex
	Balances map[string]uint64 `json:"balances,omitempty"`
	Nonce    uint64            `json:"nonce"`
}

// Balance returns the account's balance in the given currency.
func (a *Account) Balance(currency string) uint64 {
	return a.Balances[currency]
}

// Credit adds amount to the account's balance in currency.
func (a *Account) Credit(currency string, amount uint64) {
	if a.Balances == nil {
		a.Balances = make(map[string]uint64)
	}
	a.Balances[currency] += amount
}

// Debit subtracts amount from the account's balance, or reports false if the
// balance is insufficient. Balances never wrap below zero.
func (a *Account) Debit(currency string, amount uint64) bool {
	if a.Balances[currency] < amount {
		return false
	}
	a.Balances[currency] -= amount
	return true
}

// SpawnSlot is one of the fixed number of concurrent creature positions.
// Active == false means the slot is empty or mid-reposition; position fields
// are meaningless while inactive. CreatureID survives a relocation so the
// same creature reappears elsewhere. PendingRequest holds the id of an
// unresolved reposition request, if any.
type SpawnSlot struct {
	CreatureID     string `json:"creature_id,omitempty"`
	X              uint32 `json:"x"`
	Y              uint32 `json:"y"`
	AttemptCount   uint8  `json:"attempt_count"` // 0..3, resets on reposition
	Active         bool   `json:"active"`
	SpawnedAt      int64  `json:"spawned_at,omitempty"`
	PendingRequest string `json:"pending_request,omitempty"`
}

// MaxAttempts is the number of throws a slot tolerates before the creature
// relocates.
const MaxAttempts = 3

// RequestKind tags what a pending randomness request will resolve into.
type RequestKind string

const (
	// KindThrow resolves a player's catch attempt.
	KindThrow RequestKind = "throw"
	// KindReposition resolves a slot's fair position.
	KindReposition RequestKind = "reposition"
)

// PendingRequest bridges a synchronous action to its asynchronous randomness
// callback. The id is assigned by the oracle and is opaque to the chain; it
// is validated only by presence in the ledger. Resolved flips false → true
// exactly once; a second callback for the same id is rejected.
type PendingRequest struct {
	ID        string      `json:"id"`
	Kind      RequestKind `json:"kind"`
	Player    string      `json:"player,omitempty"` // throws only
	Slot      uint32      `json:"slot"`
	Tier      string      `json:"tier,omitempty"` // throws only
	Resolved  bool        `json:"resolved"`
	CreatedAt int64       `json:"created_at"`
}

// Pool is a named balance sheet keyed by settlement currency. Two pools
// exist: the revenue pool that funds reward pulls, and the treasury sink.
type Pool struct {
	Balances map[string]uint64 `json:"balances,omitempty"`
}

// Balance returns the pool's balance in the given currency.
func (p *Pool) Balance(currency string) uint64 {
	return p.Balances[currency]
}

// Credit adds amount to the pool in currency.
func (p *Pool) Credit(currency string, amount uint64) {
	if p.Balances == nil {
		p.Balances = make(map[string]uint64)
	}
	p.Balances[currency] += amount
}

// Debit subtracts amount, or reports false if the pool would go negative.
func (p *Pool) Debit(currency string, amount uint64) bool {
	if p.Balances[currency] < amount {
		return false
	}
	p.Balances[currency] -= amount
	return true
}

// Pool names used with State.GetPool / SetPool.
const (
	PoolRevenue  = "revenue"
	PoolTreasury = "treasury"
)

// RewardInventory is the capped list of reward units held by the chain.
// InFlight counts issued-but-undelivered pulls so the cap covers them too.
type RewardInventory struct {
	IDs      []string `json:"ids,omitempty"`
	InFlight uint32   `json:"in_flight"`
}

// PendingPull records an issued reward pull awaiting delivery.
type PendingPull struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// State is the full game-chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts (balances + nonces)
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Ball inventory, keyed by (player, tier)
	GetBallCount(player, tier string) (uint64, error)
	SetBallCount(player, tier string, count uint64) error

	// Spawn slots. GetSlot returns a zero-value slot for an index that has
	// never been written; callers bound indices via SlotCapacity.
	GetSlot(index uint32) (*SpawnSlot, error)
	SetSlot(index uint32, slot *SpawnSlot) error
	SlotCapacity() (uint32, error)
	SetSlotCapacity(capacity uint32) error

	// Randomness request ledger
	GetRequest(id string) (*PendingRequest, error)
	SetRequest(req *PendingRequest) error

	// Revenue / treasury pools
	GetPool(name string) (*Pool, error)
	SetPool(name string, pool *Pool) error

	// Reward inventory and in-flight pulls
	GetRewardInventory() (*RewardInventory, error)
	SetRewardInventory(inv *RewardInventory) error
	GetPendingPull(id string) (*PendingPull, error)
	SetPendingPull(pull *PendingPull) error
	DeletePendingPull(id string) error
	GetRewardOwner(rewardID string) (string, error)
	SetRewardOwner(rewardID, owner string) error

	// Exchange rates: base units of currency per USD cent.
	// GetRate returns ErrNotFound for a currency with no rate set.
	GetRate(currency string) (uint64, error)
	SetRate(currency string, rate uint64) error

	// Global pause switch over player operations
	Paused() (bool, error)
	SetPaused(paused bool) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
