package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hollowdex/wildchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

// Player transactions. These are gated by the global pause switch.
const (
	TxTransfer  TxType = "transfer"
	TxBuyBalls  TxType = "buy_balls"
	TxThrowBall TxType = "throw_ball"
)

// Collaborator callbacks. Only the configured oracle / reward-issuer
// identity may submit these.
const (
	TxOracleCallback TxType = "oracle_callback"
	TxRewardDelivery TxType = "reward_delivery"
)

// Operator transactions. Only the configured operator identity may submit
// these; they bypass the pause switch.
const (
	TxSpawnSlot        TxType = "spawn_slot"
	TxExpandSlots      TxType = "expand_slots"
	TxSetRate          TxType = "set_rate"
	TxSetPaused        TxType = "set_paused"
	TxWithdrawTreasury TxType = "withdraw_treasury"
	TxRecoverReward    TxType = "recover_reward"
	TxRefundRequest    TxType = "refund_request"
)

// Privileged reports whether the transaction type bypasses the pause switch.
// Oracle callbacks and operator actions must keep working while the game is
// paused, otherwise stuck requests could never be drained.
func (t TxType) Privileged() bool {
	switch t {
	case TxTransfer, TxBuyBalls, TxThrowBall:
		return false
	}
	return true
}

// Transaction is the atomic unit of work on the chain. It doubles as the
// meta-transaction envelope: the player signs the body off-chain and anyone
// may submit it, so play can be fee-less. From holds the signer's full
// hex-encoded ed25519 public key. Signature covers all fields except
// Signature itself; ChainID is included so a payload signed for one network
// cannot be replayed on another.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"` // settlement-currency units
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves settlement tokens between accounts.
type TransferPayload struct {
	To       string `json:"to"`
	Currency string `json:"currency"`
	Amount   uint64 `json:"amount"`
}

// BuyBallsPayload purchases balls of one tier, paid in the given currency at
// the current exchange rate.
type BuyBallsPayload struct {
	Tier     string `json:"tier"`
	Quantity uint64 `json:"quantity"`
	Currency string `json:"currency"`
}

// ThrowBallPayload spends one ball of Tier against the creature in Slot.
type ThrowBallPayload struct {
	Slot uint32 `json:"slot"`
	Tier string `json:"tier"`
}

// OracleCallbackPayload delivers the randomness for a pending request.
type OracleCallbackPayload struct {
	RequestID string `json:"request_id"`
	Value     uint64 `json:"value"`
}

// RewardDeliveryPayload credits one pulled reward unit into the inventory.
type RewardDeliveryPayload struct {
	PullID   string `json:"pull_id"`
	RewardID string `json:"reward_id"`
}

// SpawnSlotPayload seeds a creature into an empty slot; its position comes
// from a reposition request resolved later by the oracle.
type SpawnSlotPayload struct {
	Slot       uint32 `json:"slot"`
	CreatureID string `json:"creature_id"`
}

// ExpandSlotsPayload grows the slot table. Capacity never shrinks.
type ExpandSlotsPayload struct {
	Capacity uint32 `json:"capacity"`
}

// SetRatePayload force-sets the exchange rate for a currency
// (base units per USD cent).
type SetRatePayload struct {
	Currency string `json:"currency"`
	Rate     uint64 `json:"rate"`
}

// SetPausedPayload toggles the global pause switch.
type SetPausedPayload struct {
	Paused bool `json:"paused"`
}

// WithdrawTreasuryPayload moves accrued treasury funds to an account.
type WithdrawTreasuryPayload struct {
	Currency string `json:"currency"`
	Amount   uint64 `json:"amount"`
	To       string `json:"to"`
}

// RecoverRewardPayload re-tracks a reward unit delivered outside the
// inventory.
type RecoverRewardPayload struct {
	RewardID string `json:"reward_id"`
}

// RefundRequestPayload is the operator escape hatch for a randomness request
// that will never resolve.
type RefundRequestPayload struct {
	RequestID string `json:"request_id"`
}
