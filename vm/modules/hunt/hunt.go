// Package hunt is the spawn-slot state machine: operator spawns, player
// throws, and the oracle callbacks that resolve both. Request ids are the
// hash of the transaction that created them, so every replica records the
// same pending-request ledger; actually contacting the oracle is the
// relay's job, triggered by the events emitted here.
package hunt

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/odds"
	"github.com/hollowdex/wildchain/vm"
	"github.com/hollowdex/wildchain/vm/modules/reward"
)

func init() {
	vm.Register(core.TxThrowBall, handleThrowBall)
	vm.Register(core.TxSpawnSlot, handleSpawnSlot)
	vm.Register(core.TxOracleCallback, handleOracleCallback)
}

func handleThrowBall(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ThrowBallPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode throw_ball payload: %w", err)
	}
	capacity, err := ctx.State.SlotCapacity()
	if err != nil {
		return err
	}
	if p.Slot >= capacity {
		return fmt.Errorf("slot %d of %d: %w", p.Slot, capacity, core.ErrUnknownSlot)
	}
	if _, ok := ctx.Params.Tier(p.Tier); !ok {
		return fmt.Errorf("tier %q: %w", p.Tier, core.ErrInvalidTier)
	}

	slot, err := ctx.State.GetSlot(p.Slot)
	if err != nil {
		return err
	}
	if !slot.Active {
		return fmt.Errorf("slot %d: %w", p.Slot, core.ErrSlotInactive)
	}
	if slot.AttemptCount >= core.MaxAttempts {
		return fmt.Errorf("slot %d: %w", p.Slot, core.ErrSlotExhausted)
	}

	count, err := ctx.State.GetBallCount(ctx.Tx.From, p.Tier)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("tier %q: %w", p.Tier, core.ErrInsufficientBalls)
	}
	// The ball is spent the moment the throw is accepted; if the oracle
	// never answers, the operator refund path is the recourse.
	if err := ctx.State.SetBallCount(ctx.Tx.From, p.Tier, count-1); err != nil {
		return err
	}

	// Transaction hashes are unique per signed tx, so the tx id doubles as
	// the request id without any external call.
	requestID := ctx.Tx.ID
	if err := ctx.State.SetRequest(&core.PendingRequest{
		ID:        requestID,
		Kind:      core.KindThrow,
		Player:    ctx.Tx.From,
		Slot:      p.Slot,
		Tier:      p.Tier,
		CreatedAt: ctx.Block.Header.Timestamp,
	}); err != nil {
		return err
	}
	ctx.Emit(events.EventThrowRequested, map[string]any{
		"request_id": requestID,
		"player":     ctx.Tx.From,
		"slot":       p.Slot,
		"tier":       p.Tier,
	})
	return nil
}

func handleSpawnSlot(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOperator(); err != nil {
		return err
	}
	var p core.SpawnSlotPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode spawn_slot payload: %w", err)
	}
	capacity, err := ctx.State.SlotCapacity()
	if err != nil {
		return err
	}
	if p.Slot >= capacity {
		return fmt.Errorf("slot %d of %d: %w", p.Slot, capacity, core.ErrUnknownSlot)
	}
	if p.CreatureID == "" || !ctx.Params.Creature(p.CreatureID) {
		return fmt.Errorf("creature %q not eligible", p.CreatureID)
	}

	slot, err := ctx.State.GetSlot(p.Slot)
	if err != nil {
		return err
	}
	if slot.Active {
		return fmt.Errorf("slot %d: %w", p.Slot, core.ErrSlotOccupied)
	}
	if slot.PendingRequest != "" {
		return fmt.Errorf("slot %d: %w", p.Slot, core.ErrSlotPending)
	}

	// The slot stays inactive until the reposition callback resolves, so no
	// player ever observes a half-initialized creature.
	requestID := ctx.Tx.ID
	slot.CreatureID = p.CreatureID
	slot.AttemptCount = 0
	slot.PendingRequest = requestID
	if err := ctx.State.SetSlot(p.Slot, slot); err != nil {
		return err
	}
	if err := ctx.State.SetRequest(&core.PendingRequest{
		ID:        requestID,
		Kind:      core.KindReposition,
		Slot:      p.Slot,
		CreatedAt: ctx.Block.Header.Timestamp,
	}); err != nil {
		return err
	}
	ctx.Emit(events.EventSpawnRequested, map[string]any{
		"request_id": requestID,
		"slot":       p.Slot,
		"creature":   p.CreatureID,
	})
	return nil
}

func handleOracleCallback(ctx *vm.Context, payload json.RawMessage) error {
	if err := ctx.RequireOracle(); err != nil {
		return err
	}
	var p core.OracleCallbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode oracle_callback payload: %w", err)
	}

	req, err := ctx.State.GetRequest(p.RequestID)
	if err != nil {
		if err == core.ErrNotFound {
			return fmt.Errorf("request %q: %w", p.RequestID, core.ErrUnknownRequest)
		}
		return err
	}
	// Idempotence guard: each request resolves exactly once, no matter how
	// often or in what order the oracle calls back.
	if req.Resolved {
		return fmt.Errorf("request %q: %w", p.RequestID, core.ErrAlreadyResolved)
	}
	req.Resolved = true
	if err := ctx.State.SetRequest(req); err != nil {
		return err
	}

	switch req.Kind {
	case core.KindThrow:
		return resolveThrow(ctx, req, p.Value)
	case core.KindReposition:
		return resolveReposition(ctx, req, p.Value)
	default:
		return fmt.Errorf("request %q has unknown kind %q", req.ID, req.Kind)
	}
}

func resolveThrow(ctx *vm.Context, req *core.PendingRequest, value uint64) error {
	tier, ok := ctx.Params.Tier(req.Tier)
	if !ok {
		return fmt.Errorf("pending throw references removed tier %q", req.Tier)
	}
	slot, err := ctx.State.GetSlot(req.Slot)
	if err != nil {
		return err
	}
	roll := odds.Roll(value)

	if !slot.Active {
		// The creature left this slot (caught or relocated) while the
		// callback was in flight; neither outcome changes anything. In
		// particular a second catch against an emptied slot must not
		// hand out a second reward.
		ctx.Log.Debug("throw resolved against inactive slot",
			zap.Uint32("slot", req.Slot), zap.String("request_id", req.ID))
		return nil
	}

	if odds.Caught(tier.CatchThreshold, value) {
		creature := slot.CreatureID
		// Successful catch empties the slot entirely.
		if err := ctx.State.SetSlot(req.Slot, &core.SpawnSlot{}); err != nil {
			return err
		}
		ctx.Emit(events.EventCreatureCaught, map[string]any{
			"request_id": req.ID,
			"player":     req.Player,
			"slot":       req.Slot,
			"creature":   creature,
			"tier":       req.Tier,
			"roll":       roll,
		})
		if _, err := reward.Assign(ctx, req.Player); err != nil {
			return err
		}
		// A catch frees inventory room, so check the pull condition again.
		return reward.TryAutoPull(ctx)
	}

	slot.AttemptCount++
	ctx.Emit(events.EventCreatureMissed, map[string]any{
		"request_id": req.ID,
		"player":     req.Player,
		"slot":       req.Slot,
		"roll":       roll,
		"attempts":   slot.AttemptCount,
	})
	if slot.AttemptCount >= core.MaxAttempts {
		return relocate(ctx, req.Slot, slot)
	}
	return ctx.State.SetSlot(req.Slot, slot)
}

// relocate pulls the creature off the board and requests a fresh position.
// Identity is preserved; only position and the attempt counter reset, and
// the counter resets when the reposition resolves, not before.
func relocate(ctx *vm.Context, index uint32, slot *core.SpawnSlot) error {
	slot.Active = false
	ctx.Emit(events.EventSlotRelocating, map[string]any{
		"slot":     index,
		"creature": slot.CreatureID,
	})

	// The resolving callback tx funds at most one relocation, so its id is
	// free to serve as the reposition request id.
	requestID := ctx.Tx.ID
	slot.PendingRequest = requestID
	if err := ctx.State.SetSlot(index, slot); err != nil {
		return err
	}
	if err := ctx.State.SetRequest(&core.PendingRequest{
		ID:        requestID,
		Kind:      core.KindReposition,
		Slot:      index,
		CreatedAt: ctx.Block.Header.Timestamp,
	}); err != nil {
		return err
	}
	ctx.Emit(events.EventSpawnRequested, map[string]any{
		"request_id": requestID,
		"slot":       index,
		"creature":   slot.CreatureID,
	})
	return nil
}

func resolveReposition(ctx *vm.Context, req *core.PendingRequest, value uint64) error {
	slot, err := ctx.State.GetSlot(req.Slot)
	if err != nil {
		return err
	}
	if slot.Active {
		// First resolution wins; a late duplicate reposition is logged and
		// dropped, never an error that would revert the callback.
		ctx.Log.Info("reposition resolved against already-active slot",
			zap.Uint32("slot", req.Slot), zap.String("request_id", req.ID))
		if slot.PendingRequest == req.ID {
			slot.PendingRequest = ""
			return ctx.State.SetSlot(req.Slot, slot)
		}
		return nil
	}

	slot.X, slot.Y = odds.Position(value, ctx.Params.ArenaWidth, ctx.Params.ArenaHeight)
	slot.Active = true
	slot.AttemptCount = 0
	slot.SpawnedAt = ctx.Block.Header.Timestamp
	slot.PendingRequest = ""
	if err := ctx.State.SetSlot(req.Slot, slot); err != nil {
		return err
	}
	ctx.Emit(events.EventSlotSpawned, map[string]any{
		"request_id": req.ID,
		"slot":       req.Slot,
		"creature":   slot.CreatureID,
		"x":          slot.X,
		"y":          slot.Y,
	})
	return nil
}
