// Package vm executes game transactions atomically against the chain state.
// Each transaction runs inside a state snapshot: a failing handler rolls the
// write buffer back, so no operation can leave a slot or ledger entry
// half-mutated.
package vm

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/params"
)

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	chainID string
	state   core.State
	emitter *events.Emitter
	params  *params.Params
	roles   Roles
	log     *zap.Logger
}

// NewExecutor creates an Executor. Execution is deterministic: handlers only
// read and write state and emit events, so the same Executor serves block
// production, replica sync and replay alike.
func NewExecutor(
	chainID string,
	state core.State,
	emitter *events.Emitter,
	p *params.Params,
	roles Roles,
	log *zap.Logger,
) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		chainID: chainID,
		state:   state,
		emitter: emitter,
		params:  p,
		roles:   roles,
		log:     log,
	}
}

// ExecuteBlock applies all transactions in block sequentially.
// A failing transaction causes the whole block to be rejected.
// EventBlockCommit is emitted by the caller (consensus) after signing so
// the event carries the correct block hash.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if tx.ChainID != e.chainID {
		return fmt.Errorf("chain id mismatch: got %q want %q", tx.ChainID, e.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.applyTx(block, tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Proposer:    block.Header.Proposer,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx is the authorization gateway: it checks the exact nonce, charges
// the fee, and increments the nonce BEFORE dispatching to the handler, so a
// duplicate of the same signed payload is rejected by the nonce check even
// while the first copy is still executing.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("expected %d got %d: %w", acc.Nonce, tx.Nonce, core.ErrNonceMismatch)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	settlement := e.params.SettlementCurrency
	if tx.Fee > 0 && !acc.Debit(settlement, tx.Fee) {
		return fmt.Errorf("fee %d in %s: %w", tx.Fee, settlement, core.ErrInsufficientPayment)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	if tx.Fee > 0 {
		// Fees accumulate in the treasury rather than being burned.
		treasury, err := e.state.GetPool(core.PoolTreasury)
		if err != nil {
			return err
		}
		treasury.Credit(settlement, tx.Fee)
		if err := e.state.SetPool(core.PoolTreasury, treasury); err != nil {
			return err
		}
	}

	if !tx.Type.Privileged() {
		paused, err := e.state.Paused()
		if err != nil {
			return err
		}
		if paused {
			return core.ErrPaused
		}
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: e.emitter,
		Params:  e.params,
		Roles:   e.roles,
		Log:     e.log,
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
