// Package shop handles ball purchases: pricing at the current exchange
// rate, inventory credit, and the revenue split between the reward pool and
// the treasury.
package shop

import (
	"encoding/json"
	"fmt"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/params"
	"github.com/hollowdex/wildchain/vm"
	"github.com/hollowdex/wildchain/vm/modules/reward"
)

func init() {
	vm.Register(core.TxBuyBalls, handleBuyBalls)
}

// Price computes the total purchase price in currency base units:
// USD cents × quantity × rate, with overflow checks. The rate is read once
// by the caller and used for the whole purchase.
func Price(priceCents, quantity, rate uint64) (uint64, error) {
	cents := priceCents * quantity
	if quantity != 0 && cents/quantity != priceCents {
		return 0, fmt.Errorf("price overflow: %d cents x %d", priceCents, quantity)
	}
	total := cents * rate
	if rate != 0 && total/rate != cents {
		return 0, fmt.Errorf("price overflow: %d cents at rate %d", cents, rate)
	}
	return total, nil
}

// Split divides a purchase total between the revenue pool and the treasury.
// The pool share is floor(total × bps / 10000); the treasury receives the
// exact remainder, so the two always reconcile to the total.
func Split(total, bps uint64) (pool, treasury uint64) {
	// Exact floor without overflow: total = 10000q + r, so
	// floor(total·bps/10000) = q·bps + floor(r·bps/10000).
	q := total / params.SplitDenominator
	r := total % params.SplitDenominator
	pool = q*bps + r*bps/params.SplitDenominator
	return pool, total - pool
}

func handleBuyBalls(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyBallsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_balls payload: %w", err)
	}
	if p.Quantity == 0 {
		return core.ErrInvalidQuantity
	}
	tier, ok := ctx.Params.Tier(p.Tier)
	if !ok {
		return fmt.Errorf("tier %q: %w", p.Tier, core.ErrInvalidTier)
	}

	// Read the rate once; every number below derives from this one read.
	rate, err := ctx.State.GetRate(p.Currency)
	if err != nil {
		if err == core.ErrNotFound {
			return fmt.Errorf("currency %q: %w", p.Currency, core.ErrNoExchangeRate)
		}
		return err
	}
	total, err := Price(tier.PriceCents, p.Quantity, rate)
	if err != nil {
		return err
	}

	buyer, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return err
	}
	if !buyer.Debit(p.Currency, total) {
		return fmt.Errorf("need %d %s, have %d: %w",
			total, p.Currency, buyer.Balance(p.Currency), core.ErrInsufficientPayment)
	}
	if err := ctx.State.SetAccount(buyer); err != nil {
		return err
	}

	count, err := ctx.State.GetBallCount(ctx.Tx.From, p.Tier)
	if err != nil {
		return err
	}
	if err := ctx.State.SetBallCount(ctx.Tx.From, p.Tier, count+p.Quantity); err != nil {
		return err
	}

	poolShare, treasuryShare := Split(total, ctx.Params.RevenueSplitBps)
	pool, err := ctx.State.GetPool(core.PoolRevenue)
	if err != nil {
		return err
	}
	pool.Credit(p.Currency, poolShare)
	if err := ctx.State.SetPool(core.PoolRevenue, pool); err != nil {
		return err
	}
	treasury, err := ctx.State.GetPool(core.PoolTreasury)
	if err != nil {
		return err
	}
	treasury.Credit(p.Currency, treasuryShare)
	if err := ctx.State.SetPool(core.PoolTreasury, treasury); err != nil {
		return err
	}

	ctx.Emit(events.EventBallsPurchased, map[string]any{
		"player":   ctx.Tx.From,
		"tier":     p.Tier,
		"quantity": p.Quantity,
		"currency": p.Currency,
		"total":    total,
	})
	ctx.Emit(events.EventRevenueAccrued, map[string]any{
		"currency": p.Currency,
		"pool":     poolShare,
		"treasury": treasuryShare,
	})

	// Every purchase is a chance to replenish the reward inventory.
	return reward.TryAutoPull(ctx)
}
