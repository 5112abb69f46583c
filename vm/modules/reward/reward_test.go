package reward_test

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

	_ "github.com/hollowdex/wildchain/vm/modules/reward"
)

const chainID = "wildchain-test"

type rewardEnv struct {
	t        *testing.T
	state    *storage.StateDB
	exec     *vm.Executor
	operator *wallet.Wallet
	issuer   *wallet.Wallet
	block    *core.Block
	nonces   map[string]uint64
}

func newRewardEnv(t *testing.T) *rewardEnv {
	t.Helper()
	state := testutil.NewStateDB()
	operator, _ := wallet.Generate()
	issuer, _ := wallet.Generate()
	roles := vm.Roles{Operator: operator.PubKey(), Issuer: issuer.PubKey()}
	exec := vm.NewExecutor(chainID, state, events.NewEmitter(nil), params.Default(), roles, nil)
	return &rewardEnv{
		t:        t,
		state:    state,
		exec:     exec,
		operator: operator,
		issuer:   issuer,
		block:    core.NewBlock(chainID, 1, "prev", operator.PubKey(), nil),
		nonces:   make(map[string]uint64),
	}
}

func (e *rewardEnv) send(w *wallet.Wallet, typ core.TxType, payload any) error {
	e.t.Helper()
	tx, err := w.NewTx(chainID, typ, e.nonces[w.PubKey()], 0, payload)
	if err != nil {
		e.t.Fatal(err)
	}
	if err := e.exec.ExecuteTx(e.block, tx); err != nil {
		return err
	}
	e.nonces[w.PubKey()]++
	return nil
}

func (e *rewardEnv) seedPull(id string) {
	e.t.Helper()
	if err := e.state.SetPendingPull(&core.PendingPull{ID: id, CreatedAt: 1}); err != nil {
		e.t.Fatal(err)
	}
	inv, _ := e.state.GetRewardInventory()
	inv.InFlight++
	if err := e.state.SetRewardInventory(inv); err != nil {
		e.t.Fatal(err)
	}
}

func TestDeliveryTracksReward(t *testing.T) {
	e := newRewardEnv(t)
	e.seedPull("pull-1")

	err := e.send(e.issuer, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-1", RewardID: "rw-1"})
	if err != nil {
		t.Fatal(err)
	}

	inv, _ := e.state.GetRewardInventory()
	if inv.InFlight != 0 {
		t.Errorf("in-flight: got %d want 0", inv.InFlight)
	}
	if len(inv.IDs) != 1 || inv.IDs[0] != "rw-1" {
		t.Errorf("inventory: %v", inv.IDs)
	}
	if _, err := e.state.GetPendingPull("pull-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("pending pull should be consumed, got %v", err)
	}
}

func TestDeliveryRejections(t *testing.T) {
	e := newRewardEnv(t)
	e.seedPull("pull-1")

	err := e.send(e.operator, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-1", RewardID: "rw-1"})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("non-issuer: got %v want ErrUnauthorized", err)
	}
	err = e.send(e.issuer, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-nope", RewardID: "rw-1"})
	if !errors.Is(err, core.ErrUnknownPull) {
		t.Errorf("unknown pull: got %v want ErrUnknownPull", err)
	}

	// A delivery consumes its pull; replaying it is an unknown pull.
	if err := e.send(e.issuer, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-1", RewardID: "rw-1"}); err != nil {
		t.Fatal(err)
	}
	err = e.send(e.issuer, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-1", RewardID: "rw-2"})
	if !errors.Is(err, core.ErrUnknownPull) {
		t.Errorf("replayed pull: got %v want ErrUnknownPull", err)
	}
}

func TestDeliveryOverCapacityStaysUntracked(t *testing.T) {
	e := newRewardEnv(t)
	if err := e.state.SetRewardInventory(&core.RewardInventory{
		IDs: []string{"r1", "r2", "r3", "r4", "r5"},
	}); err != nil {
		t.Fatal(err)
	}
	e.seedPull("pull-1")

	err := e.send(e.issuer, core.TxRewardDelivery, core.RewardDeliveryPayload{PullID: "pull-1", RewardID: "rw-extra"})
	if err != nil {
		t.Fatal(err)
	}
	inv, _ := e.state.GetRewardInventory()
	if len(inv.IDs) != 5 {
		t.Errorf("over-capacity delivery must not be tracked: %v", inv.IDs)
	}
	if inv.InFlight != 0 {
		t.Errorf("in-flight still decrements: got %d", inv.InFlight)
	}
}

func TestRecoverReward(t *testing.T) {
	e := newRewardEnv(t)

	if err := e.send(e.operator, core.TxRecoverReward, core.RecoverRewardPayload{RewardID: "stray-1"}); err != nil {
		t.Fatal(err)
	}
	inv, _ := e.state.GetRewardInventory()
	if len(inv.IDs) != 1 || inv.IDs[0] != "stray-1" {
		t.Errorf("inventory: %v", inv.IDs)
	}

	// Already tracked.
	if err := e.send(e.operator, core.TxRecoverReward, core.RecoverRewardPayload{RewardID: "stray-1"}); err == nil {
		t.Error("re-tracking a tracked reward should fail")
	}

	// Already assigned to a player.
	if err := e.state.SetRewardOwner("owned-1", "somebody"); err != nil {
		t.Fatal(err)
	}
	if err := e.send(e.operator, core.TxRecoverReward, core.RecoverRewardPayload{RewardID: "owned-1"}); err == nil {
		t.Error("recovering an assigned reward should fail")
	}

	// Non-operator.
	err := e.send(e.issuer, core.TxRecoverReward, core.RecoverRewardPayload{RewardID: "stray-2"})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("non-operator: got %v want ErrUnauthorized", err)
	}
}

func TestRecoverRespectsCap(t *testing.T) {
	e := newRewardEnv(t)
	if err := e.state.SetRewardInventory(&core.RewardInventory{
		IDs: []string{"r1", "r2", "r3", "r4", "r5"},
	}); err != nil {
		t.Fatal(err)
	}
	err := e.send(e.operator, core.TxRecoverReward, core.RecoverRewardPayload{RewardID: "stray-1"})
	if !errors.Is(err, core.ErrRewardCapacity) {
		t.Errorf("got %v want ErrRewardCapacity", err)
	}
}
