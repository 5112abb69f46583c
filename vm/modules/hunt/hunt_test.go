package hunt_test

import (
	"errors"
	"testing"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/internal/testutil"
	"github.com/hollowdex/wildchain/params"
	"github.com/hollowdex/wildchain/storage"
	"github.com/hollowdex/wildchain/vm"
	"github.com/hollowdex/wildchain/wallet"

	_ "github.com/hollowdex/wildchain/vm/modules/hunt"
)

const chainID = "wildchain-test"

type env struct {
	t        *testing.T
	state    *storage.StateDB
	exec     *vm.Executor
	emitter  *events.Emitter
	operator *wallet.Wallet
	oracle   *wallet.Wallet
	player   *wallet.Wallet
	block    *core.Block
	nonces   map[string]uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	state := testutil.NewStateDB()
	p := params.Default()
	if err := state.SetSlotCapacity(p.SlotCapacity); err != nil {
		t.Fatal(err)
	}

	operator, _ := wallet.Generate()
	oracleW, _ := wallet.Generate()
	player, _ := wallet.Generate()

	emitter := events.NewEmitter(nil)
	roles := vm.Roles{Operator: operator.PubKey(), Oracle: oracleW.PubKey()}
	exec := vm.NewExecutor(chainID, state, emitter, p, roles, nil)

	return &env{
		t:        t,
		state:    state,
		exec:     exec,
		emitter:  emitter,
		operator: operator,
		oracle:   oracleW,
		player:   player,
		block:    core.NewBlock(chainID, 1, "prev", operator.PubKey(), nil),
		nonces:   make(map[string]uint64),
	}
}

// send signs and executes a transaction, advancing the wallet's nonce only
// on success (a failed transaction is fully reverted, nonce included). The
// returned tx id is also the request id for anything the tx opened.
func (e *env) send(w *wallet.Wallet, typ core.TxType, payload any) (string, error) {
	e.t.Helper()
	tx, err := w.NewTx(chainID, typ, e.nonces[w.PubKey()], 0, payload)
	if err != nil {
		e.t.Fatal(err)
	}
	if err := e.exec.ExecuteTx(e.block, tx); err != nil {
		return tx.ID, err
	}
	e.nonces[w.PubKey()]++
	return tx.ID, nil
}

func (e *env) mustSend(w *wallet.Wallet, typ core.TxType, payload any) string {
	e.t.Helper()
	id, err := e.send(w, typ, payload)
	if err != nil {
		e.t.Fatalf("%s: %v", typ, err)
	}
	return id
}

func (e *env) resolve(requestID string, value uint64) {
	e.t.Helper()
	e.mustSend(e.oracle, core.TxOracleCallback, core.OracleCallbackPayload{RequestID: requestID, Value: value})
}

// spawnActive walks slot through the full spawn cycle so tests start from an
// active creature.
func (e *env) spawnActive(slot uint32, creature string, value uint64) {
	e.t.Helper()
	reqID := e.mustSend(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: slot, CreatureID: creature})
	e.resolve(reqID, value)
}

func (e *env) giveBalls(tier string, n uint64) {
	e.t.Helper()
	if err := e.state.SetBallCount(e.player.PubKey(), tier, n); err != nil {
		e.t.Fatal(err)
	}
}

func TestSpawnThenActivate(t *testing.T) {
	e := newEnv(t)

	reqID := e.mustSend(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 0, CreatureID: "glimmox"})

	slot, _ := e.state.GetSlot(0)
	if slot.Active {
		t.Fatal("slot must stay inactive until the reposition resolves")
	}
	if slot.PendingRequest != reqID {
		t.Errorf("pending request: got %q want %q", slot.PendingRequest, reqID)
	}

	// value encodes x=100 in the low window, y=200 in the next.
	e.resolve(reqID, 200<<16|100)

	slot, _ = e.state.GetSlot(0)
	if !slot.Active {
		t.Fatal("slot should be active after the reposition callback")
	}
	if slot.X != 100 || slot.Y != 200 {
		t.Errorf("position: got (%d,%d) want (100,200)", slot.X, slot.Y)
	}
	if slot.AttemptCount != 0 {
		t.Errorf("attempt count: got %d want 0", slot.AttemptCount)
	}
	if slot.PendingRequest != "" {
		t.Errorf("pending request should clear, got %q", slot.PendingRequest)
	}
	if slot.CreatureID != "glimmox" {
		t.Errorf("creature: got %q want glimmox", slot.CreatureID)
	}
}

// TestRequestIDIsTransactionHash pins the request id to the hash of the
// transaction that opened it, so every node replaying the block records an
// identical pending-request ledger.
func TestRequestIDIsTransactionHash(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("great", 1)

	txID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})

	req, err := e.state.GetRequest(txID)
	if err != nil {
		t.Fatalf("request not keyed by tx hash: %v", err)
	}
	if req.ID != txID {
		t.Errorf("request id: got %q want %q", req.ID, txID)
	}
}

func TestSpawnRequiresOperator(t *testing.T) {
	e := newEnv(t)
	_, err := e.send(e.player, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 0, CreatureID: "glimmox"})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("got %v want ErrUnauthorized", err)
	}
}

func TestSpawnRejectsOccupiedAndUnknown(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)

	_, err := e.send(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 0, CreatureID: "mossling"})
	if !errors.Is(err, core.ErrSlotOccupied) {
		t.Errorf("occupied slot: got %v want ErrSlotOccupied", err)
	}

	_, err = e.send(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 999, CreatureID: "mossling"})
	if !errors.Is(err, core.ErrUnknownSlot) {
		t.Errorf("out-of-range slot: got %v want ErrUnknownSlot", err)
	}

	_, err = e.send(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 1, CreatureID: "missingno"})
	if err == nil {
		t.Error("ineligible creature should be rejected")
	}
}

func TestThrowDebitsBallBeforeResolution(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("great", 2)

	reqID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})

	count, _ := e.state.GetBallCount(e.player.PubKey(), "great")
	if count != 1 {
		t.Errorf("ball count: got %d want 1", count)
	}
	req, err := e.state.GetRequest(reqID)
	if err != nil {
		t.Fatalf("request not recorded: %v", err)
	}
	if req.Kind != core.KindThrow || req.Player != e.player.PubKey() || req.Tier != "great" || req.Resolved {
		t.Errorf("request: %+v", req)
	}
}

func TestThrowRejections(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(1, "thornbuck", 0)

	// No balls at all.
	_, err := e.send(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 1, Tier: "great"})
	if !errors.Is(err, core.ErrInsufficientBalls) {
		t.Errorf("no balls: got %v want ErrInsufficientBalls", err)
	}
	if count, _ := e.state.GetBallCount(e.player.PubKey(), "great"); count != 0 {
		t.Errorf("failed throw must not change inventory: %d", count)
	}

	e.giveBalls("great", 1)

	_, err = e.send(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})
	if !errors.Is(err, core.ErrSlotInactive) {
		t.Errorf("inactive slot: got %v want ErrSlotInactive", err)
	}
	_, err = e.send(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 999, Tier: "great"})
	if !errors.Is(err, core.ErrUnknownSlot) {
		t.Errorf("unknown slot: got %v want ErrUnknownSlot", err)
	}
	_, err = e.send(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 1, Tier: "duskball"})
	if !errors.Is(err, core.ErrInvalidTier) {
		t.Errorf("unknown tier: got %v want ErrInvalidTier", err)
	}
	// All rejections reverted: the one ball is still there.
	if count, _ := e.state.GetBallCount(e.player.PubKey(), "great"); count != 1 {
		t.Errorf("inventory after rejections: got %d want 1", count)
	}
}

func TestCatchClearsSlotAndAssignsReward(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "pyrelisk", 0)
	e.giveBalls("master", 1)
	if err := e.state.SetRewardInventory(&core.RewardInventory{IDs: []string{"rw-1", "rw-2"}}); err != nil {
		t.Fatal(err)
	}

	reqID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})
	// Roll 0 against the master threshold 99: a catch.
	e.resolve(reqID, 0)

	slot, _ := e.state.GetSlot(0)
	if slot.Active || slot.CreatureID != "" {
		t.Errorf("slot should be emptied by the catch: %+v", slot)
	}
	owner, err := e.state.GetRewardOwner("rw-1")
	if err != nil || owner != e.player.PubKey() {
		t.Errorf("reward owner: got %q, %v", owner, err)
	}
	inv, _ := e.state.GetRewardInventory()
	if len(inv.IDs) != 1 || inv.IDs[0] != "rw-2" {
		t.Errorf("inventory after assignment: %v", inv.IDs)
	}
	req, _ := e.state.GetRequest(reqID)
	if !req.Resolved {
		t.Error("request should be marked resolved")
	}
}

func TestCatchWithEmptyInventoryStillStands(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "mossling", 0)
	e.giveBalls("master", 1)

	reqID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})
	e.resolve(reqID, 0)

	slot, _ := e.state.GetSlot(0)
	if slot.Active {
		t.Error("catch must stand even with no reward available")
	}
}

func TestMissIncrementsAttempts(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("great", 1)

	reqID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})
	// Roll 99 against the great threshold 20: a miss.
	e.resolve(reqID, 99)

	slot, _ := e.state.GetSlot(0)
	if !slot.Active {
		t.Fatal("slot should stay active after a first miss")
	}
	if slot.AttemptCount != 1 {
		t.Errorf("attempt count: got %d want 1", slot.AttemptCount)
	}
	if slot.CreatureID != "glimmox" {
		t.Errorf("creature should survive a miss: %q", slot.CreatureID)
	}
}

func TestThirdMissRelocates(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "thornbuck", 0)
	slot, _ := e.state.GetSlot(0)
	slot.AttemptCount = 2
	if err := e.state.SetSlot(0, slot); err != nil {
		t.Fatal(err)
	}
	e.giveBalls("great", 1)

	throwID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})
	// The resolving callback opens the reposition request, so the callback's
	// own tx id names it.
	relocID := e.mustSend(e.oracle, core.TxOracleCallback, core.OracleCallbackPayload{RequestID: throwID, Value: 99})

	slot, _ = e.state.GetSlot(0)
	if slot.Active {
		t.Fatal("third miss should pull the creature off the board")
	}
	if slot.CreatureID != "thornbuck" {
		t.Errorf("identity must survive relocation: %q", slot.CreatureID)
	}
	if slot.PendingRequest != relocID {
		t.Errorf("relocation request: got %q want %q", slot.PendingRequest, relocID)
	}
	req, err := e.state.GetRequest(relocID)
	if err != nil || req.Kind != core.KindReposition {
		t.Fatalf("reposition request: %+v, %v", req, err)
	}

	// Resolution reactivates with a fresh counter.
	e.resolve(relocID, 300<<16|400)
	slot, _ = e.state.GetSlot(0)
	if !slot.Active || slot.AttemptCount != 0 {
		t.Errorf("relocated slot: %+v", slot)
	}
	if slot.X != 400 || slot.Y != 300 {
		t.Errorf("relocated position: got (%d,%d) want (400,300)", slot.X, slot.Y)
	}
}

// TestThrowDuringInFlightThrow confirms attempts only advance at resolution
// time: two throws can be pending against the same slot, and both resolve.
func TestThrowDuringInFlightThrow(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("great", 2)

	reqA := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})
	reqB := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})

	e.resolve(reqA, 99)
	e.resolve(reqB, 99)

	slot, _ := e.state.GetSlot(0)
	if slot.AttemptCount != 2 {
		t.Errorf("attempt count: got %d want 2", slot.AttemptCount)
	}
}

// TestMissAfterCatchIsNoOp covers the race where a second throw's miss
// resolves after the creature was already caught.
func TestMissAfterCatchIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("master", 2)

	reqA := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})
	reqB := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})

	// First resolves as a catch, second as a miss against the now-empty slot.
	e.resolve(reqA, 0)
	e.resolve(reqB, 99)

	slot, _ := e.state.GetSlot(0)
	if slot.Active || slot.AttemptCount != 0 {
		t.Errorf("late miss must not disturb the empty slot: %+v", slot)
	}
}

// TestCatchAfterCatchAssignsOneReward covers the symmetric race: two throws
// pending against the same slot and both callbacks roll a catch. Only the
// first may empty the slot and take a reward; the second resolves as a no-op.
func TestCatchAfterCatchAssignsOneReward(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("master", 2)
	if err := e.state.SetRewardInventory(&core.RewardInventory{IDs: []string{"rw-1", "rw-2"}}); err != nil {
		t.Fatal(err)
	}

	var caught, assigned int
	e.emitter.Subscribe(events.EventCreatureCaught, func(events.Event) { caught++ })
	e.emitter.Subscribe(events.EventRewardAssigned, func(events.Event) { assigned++ })

	reqA := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})
	reqB := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "master"})

	e.resolve(reqA, 0)
	e.resolve(reqB, 0)

	inv, _ := e.state.GetRewardInventory()
	if len(inv.IDs) != 1 || inv.IDs[0] != "rw-2" {
		t.Errorf("one creature must cost exactly one reward, inventory: %v", inv.IDs)
	}
	if caught != 1 {
		t.Errorf("caught events: got %d want 1", caught)
	}
	if assigned != 1 {
		t.Errorf("assignment events: got %d want 1", assigned)
	}
	req, _ := e.state.GetRequest(reqB)
	if !req.Resolved {
		t.Error("second request must still be consumed")
	}
}

func TestCallbackResolvesExactlyOnce(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 0)
	e.giveBalls("great", 1)
	reqID := e.mustSend(e.player, core.TxThrowBall, core.ThrowBallPayload{Slot: 0, Tier: "great"})

	e.resolve(reqID, 99)

	_, err := e.send(e.oracle, core.TxOracleCallback, core.OracleCallbackPayload{RequestID: reqID, Value: 0})
	if !errors.Is(err, core.ErrAlreadyResolved) {
		t.Errorf("duplicate callback: got %v want ErrAlreadyResolved", err)
	}
	// The rejected duplicate must not have counted as another miss.
	slot, _ := e.state.GetSlot(0)
	if slot.AttemptCount != 1 {
		t.Errorf("attempt count after duplicate: got %d want 1", slot.AttemptCount)
	}

	_, err = e.send(e.oracle, core.TxOracleCallback, core.OracleCallbackPayload{RequestID: "req-nope", Value: 1})
	if !errors.Is(err, core.ErrUnknownRequest) {
		t.Errorf("unknown request: got %v want ErrUnknownRequest", err)
	}
}

func TestCallbackRequiresOracleRole(t *testing.T) {
	e := newEnv(t)
	reqID := e.mustSend(e.operator, core.TxSpawnSlot, core.SpawnSlotPayload{Slot: 0, CreatureID: "glimmox"})

	_, err := e.send(e.player, core.TxOracleCallback, core.OracleCallbackPayload{RequestID: reqID, Value: 7})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("got %v want ErrUnauthorized", err)
	}
}

func TestLateRepositionAgainstActiveSlot(t *testing.T) {
	e := newEnv(t)
	e.spawnActive(0, "glimmox", 200<<16|100)

	// A stray reposition request for the same, already-active slot.
	if err := e.state.SetRequest(&core.PendingRequest{
		ID:   "req-late",
		Kind: core.KindReposition,
		Slot: 0,
	}); err != nil {
		t.Fatal(err)
	}
	e.resolve("req-late", 1<<16|1)

	slot, _ := e.state.GetSlot(0)
	if !slot.Active || slot.X != 100 || slot.Y != 200 {
		t.Errorf("first resolution must win: %+v", slot)
	}
}
