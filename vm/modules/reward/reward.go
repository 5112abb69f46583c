// Package reward manages the capped reward inventory: assignment to
// winners, the revenue-threshold auto-pull, delivery callbacks from the
// issuing service, and operator recovery of stray units.
package reward

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/vm"
)

func init() {
	vm.Register(core.TxRewardDelivery, handleDelivery)
	vm.Register(core.TxRecoverReward, handleRecover)
}

// Assign pops one reward unit for winner. An empty inventory is not an
// error: the catch stands and the shortfall is emitted for monitoring.
func Assign(ctx *vm.Context, winner string) (string, error) {
	inv, err := ctx.State.GetRewardInventory()
	if err != nil {
		return "", err
	}
	if len(inv.IDs) == 0 {
		ctx.Log.Warn("reward shortfall", zap.String("winner", winner))
		ctx.Emit(events.EventRewardShortfall, map[string]any{"winner": winner})
		return "", nil
	}
	rewardID := inv.IDs[0]
	inv.IDs = inv.IDs[1:]
	if err := ctx.State.SetRewardInventory(inv); err != nil {
		return "", err
	}
	if err := ctx.State.SetRewardOwner(rewardID, winner); err != nil {
		return "", err
	}
	ctx.Emit(events.EventRewardAssigned, map[string]any{
		"reward_id": rewardID,
		"winner":    winner,
	})
	return rewardID, nil
}

// TryAutoPull issues one reward pull when the revenue pool has crossed the
// threshold and the inventory (plus in-flight pulls) has room. It is safe to
// call when the condition is false; it simply does nothing. Runs after
// every purchase and every successful catch.
func TryAutoPull(ctx *vm.Context) error {
	p := ctx.Params
	settlement := p.SettlementCurrency

	pool, err := ctx.State.GetPool(core.PoolRevenue)
	if err != nil {
		return err
	}
	if pool.Balance(settlement) < p.PullThreshold {
		return nil
	}
	inv, err := ctx.State.GetRewardInventory()
	if err != nil {
		return err
	}
	if uint32(len(inv.IDs))+inv.InFlight >= p.RewardCap {
		return nil
	}

	// The triggering tx (a purchase or a catch callback) opens at most one
	// pull, so its hash doubles as the pull id on every replica. The relay
	// picks the id up from the event and contacts the issuer off-chain.
	pullID := ctx.Tx.ID

	// Params validation guarantees PullPrice ≤ PullThreshold ≤ balance here.
	if !pool.Debit(settlement, p.PullPrice) {
		return fmt.Errorf("revenue pool below pull price %d after threshold check", p.PullPrice)
	}
	if err := ctx.State.SetPool(core.PoolRevenue, pool); err != nil {
		return err
	}
	inv.InFlight++
	if err := ctx.State.SetRewardInventory(inv); err != nil {
		return err
	}
	if err := ctx.State.SetPendingPull(&core.PendingPull{
		ID:        pullID,
		CreatedAt: ctx.Block.Header.Timestamp,
	}); err != nil {
		return err
	}
	ctx.Emit(events.EventPullRequested, map[string]any{
		"pull_id":  pullID,
		"price":    p.PullPrice,
		"currency": settlement,
	})
	return nil
}

func handleDelivery(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireIssuer(); err != nil {
		return err
	}
	var p core.RewardDeliveryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reward_delivery payload: %w", err)
	}
	if p.RewardID == "" {
		return errors.New("reward_id required")
	}

	if _, err := ctx.State.GetPendingPull(p.PullID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("pull %q: %w", p.PullID, core.ErrUnknownPull)
		}
		return err
	}
	if err := ctx.State.DeletePendingPull(p.PullID); err != nil {
		return err
	}

	inv, err := ctx.State.GetRewardInventory()
	if err != nil {
		return err
	}
	if inv.InFlight > 0 {
		inv.InFlight--
	}

	tracked := uint32(len(inv.IDs)) < ctx.Params.RewardCap
	if tracked {
		inv.IDs = append(inv.IDs, p.RewardID)
	} else {
		// Over-capacity delivery stays untracked; recover_reward can
		// re-track it once the inventory drains.
		ctx.Log.Warn("reward delivered over capacity",
			zap.String("reward_id", p.RewardID))
	}
	if err := ctx.State.SetRewardInventory(inv); err != nil {
		return err
	}
	ctx.Emit(events.EventRewardDelivered, map[string]any{
		"pull_id":   p.PullID,
		"reward_id": p.RewardID,
		"tracked":   tracked,
	})
	return nil
}

func handleRecover(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.RecoverRewardPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode recover_reward payload: %w", err)
	}
	if p.RewardID == "" {
		return errors.New("reward_id required")
	}

	if owner, err := ctx.State.GetRewardOwner(p.RewardID); err == nil {
		return fmt.Errorf("reward %q already assigned to %s", p.RewardID, owner)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	inv, err := ctx.State.GetRewardInventory()
	if err != nil {
		return err
	}
	for _, id := range inv.IDs {
		if id == p.RewardID {
			return fmt.Errorf("reward %q already tracked", p.RewardID)
		}
	}
	if uint32(len(inv.IDs)) >= ctx.Params.RewardCap {
		return core.ErrRewardCapacity
	}
	inv.IDs = append(inv.IDs, p.RewardID)
	if err := ctx.State.SetRewardInventory(inv); err != nil {
		return err
	}
	ctx.Emit(events.EventRewardRecovered, map[string]any{"reward_id": p.RewardID})
	return nil
}
