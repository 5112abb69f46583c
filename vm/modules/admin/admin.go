// Package admin holds the operator-only maintenance operations: slot
// capacity growth, exchange rates, the pause switch, treasury withdrawal,
// stuck-reward recovery and pending-request refunds.
package admin

import (
	"encoding/json"
	"fmt"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/vm"
)

func init() {
	vm.Register(core.TxExpandSlots, handleExpandSlots)
	vm.Register(core.TxSetRate, handleSetRate)
	vm.Register(core.TxSetPaused, handleSetPaused)
	vm.Register(core.TxWithdrawTreasury, handleWithdrawTreasury)
	vm.Register(core.TxRefundRequest, handleRefundRequest)
}

func handleExpandSlots(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.ExpandSlotsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode expand_slots payload: %w", err)
	}
	current, err := ctx.State.SlotCapacity()
	if err != nil {
		return err
	}
	// Capacity only grows. Shrinking would orphan active slots and any
	// requests pending against them.
	if p.Capacity <= current {
		return fmt.Errorf("capacity %d must exceed current %d", p.Capacity, current)
	}
	if err := ctx.State.SetSlotCapacity(p.Capacity); err != nil {
		return err
	}
	ctx.Emit(events.EventSlotsExpanded, map[string]any{
		"from": current,
		"to":   p.Capacity,
	})
	return nil
}

func handleSetRate(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.SetRatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_rate payload: %w", err)
	}
	if p.Currency == "" {
		return fmt.Errorf("rate currency must not be empty")
	}
	if p.Rate == 0 {
		return fmt.Errorf("rate for %q: %w", p.Currency, core.ErrInvalidQuantity)
	}
	if err := ctx.State.SetRate(p.Currency, p.Rate); err != nil {
		return err
	}
	ctx.Emit(events.EventRateSet, map[string]any{
		"currency": p.Currency,
		"rate":     p.Rate,
	})
	return nil
}

func handleSetPaused(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.SetPausedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_paused payload: %w", err)
	}
	if err := ctx.State.SetPaused(p.Paused); err != nil {
		return err
	}
	ctx.Emit(events.EventPausedSet, map[string]any{
		"paused": p.Paused,
	})
	return nil
}

func handleWithdrawTreasury(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.WithdrawTreasuryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode withdraw_treasury payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("withdrawal amount: %w", core.ErrInvalidQuantity)
	}
	to := p.To
	if to == "" {
		to = ctx.Tx.From
	}

	treasury, err := ctx.State.GetPool(core.PoolTreasury)
	if err != nil {
		return err
	}
	if !treasury.Debit(p.Currency, p.Amount) {
		return fmt.Errorf("treasury has %d %s, need %d: %w",
			treasury.Balance(p.Currency), p.Currency, p.Amount, core.ErrInsufficientPayment)
	}
	if err := ctx.State.SetPool(core.PoolTreasury, treasury); err != nil {
		return err
	}

	acct, err := ctx.State.GetAccount(to)
	if err != nil {
		return err
	}
	acct.Credit(p.Currency, p.Amount)
	if err := ctx.State.SetAccount(acct); err != nil {
		return err
	}

	ctx.Emit(events.EventTreasuryWithdrawn, map[string]any{
		"to":       to,
		"currency": p.Currency,
		"amount":   p.Amount,
	})
	return nil
}

// handleRefundRequest is the escape hatch for requests the oracle will never
// answer. It consumes the request's single resolution, so a late callback
// after a refund is rejected like any other duplicate.
func handleRefundRequest(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.RefundRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode refund_request payload: %w", err)
	}

	req, err := ctx.State.GetRequest(p.RequestID)
	if err != nil {
		if err == core.ErrNotFound {
			return fmt.Errorf("request %q: %w", p.RequestID, core.ErrUnknownRequest)
		}
		return err
	}
	if req.Resolved {
		return fmt.Errorf("request %q: %w", p.RequestID, core.ErrAlreadyResolved)
	}
	req.Resolved = true
	if err := ctx.State.SetRequest(req); err != nil {
		return err
	}

	switch req.Kind {
	case core.KindThrow:
		count, err := ctx.State.GetBallCount(req.Player, req.Tier)
		if err != nil {
			return err
		}
		if err := ctx.State.SetBallCount(req.Player, req.Tier, count+1); err != nil {
			return err
		}
	case core.KindReposition:
		slot, err := ctx.State.GetSlot(req.Slot)
		if err != nil {
			return err
		}
		if slot.PendingRequest == req.ID {
			slot.PendingRequest = ""
			if err := ctx.State.SetSlot(req.Slot, slot); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("request %q has unknown kind %q", req.ID, req.Kind)
	}

	ctx.Emit(events.EventRequestRefunded, map[string]any{
		"request_id": req.ID,
		"kind":       string(req.Kind),
		"player":     req.Player,
		"slot":       req.Slot,
		"tier":       req.Tier,
	})
	return nil
}
