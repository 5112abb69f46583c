package vm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/params"
)

// Roles names the identities trusted for privileged entry points. Operator
// actions, oracle callbacks and reward deliveries are each gated on the
// transaction signer matching the corresponding pubkey hex. Request and
// pull ids themselves are untrusted input.
type Roles struct {
	Operator string
	Oracle   string
	Issuer   string
}

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, the event emitter and the
// game parameters. Handlers never reach outside the state machine: external
// submissions happen off-chain, driven by the events handlers emit, so every
// replica executing the same block computes the same state root.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter *events.Emitter
	Params  *params.Params
	Roles   Roles
	Log     *zap.Logger
}

// Emit publishes ev stamped with the triggering transaction and block.
func (ctx *Context) Emit(typ events.EventType, data map[string]any) {
	if ctx.Emitter == nil {
		return
	}
	ctx.Emitter.Emit(events.Event{
		Type:        typ,
		TxID:        ctx.Tx.ID,
		BlockHeight: ctx.Block.Header.Height,
		Proposer:    ctx.Block.Header.Proposer,
		Data:        data,
	})
}

// RequireOperator rejects the transaction unless it was signed by the
// operator identity.
func (ctx *Context) RequireOperator() error {
	if ctx.Tx.From != ctx.Roles.Operator {
		return fmt.Errorf("operator only: %w", core.ErrUnauthorized)
	}
	return nil
}

// RequireOracle rejects the transaction unless it was signed by the oracle
// identity, the only caller allowed to invoke the callback entry point.
func (ctx *Context) RequireOracle() error {
	if ctx.Tx.From != ctx.Roles.Oracle {
		return fmt.Errorf("oracle only: %w", core.ErrUnauthorized)
	}
	return nil
}

// RequireIssuer rejects the transaction unless it was signed by the
// reward-issuer identity.
func (ctx *Context) RequireIssuer() error {
	if ctx.Tx.From != ctx.Roles.Issuer {
		return fmt.Errorf("reward issuer only: %w", core.ErrUnauthorized)
	}
	return nil
}
