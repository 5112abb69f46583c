// Package token handles plain balance transfers between accounts.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount: %w", core.ErrInvalidQuantity)
	}
	if p.To == "" {
		return fmt.Errorf("transfer recipient must not be empty")
	}
	if p.Currency == "" {
		return fmt.Errorf("transfer currency must not be empty")
	}

	from, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return err
	}
	if !from.Debit(p.Currency, p.Amount) {
		return fmt.Errorf("%s has %d %s, need %d: %w",
			ctx.Tx.From, from.Balance(p.Currency), p.Currency, p.Amount, core.ErrInsufficientPayment)
	}
	if err := ctx.State.SetAccount(from); err != nil {
		return err
	}

	to, err := ctx.State.GetAccount(p.To)
	if err != nil {
		return err
	}
	to.Credit(p.Currency, p.Amount)
	if err := ctx.State.SetAccount(to); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":     ctx.Tx.From,
		"to":       p.To,
		"currency": p.Currency,
		"amount":   p.Amount,
	})
	return nil
}
