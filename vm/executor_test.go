package vm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/internal/testutil"
	"github.com/hollowdex/wildchain/params"
	"github.com/hollowdex/wildchain/storage"
	"github.com/hollowdex/wildchain/vm"
	"github.com/hollowdex/wildchain/wallet"

	_ "github.com/hollowdex/wildchain/vm/modules/admin"
	_ "github.com/hollowdex/wildchain/vm/modules/token"
)

const chainID = "wildchain-test"

func newExecEnv(t *testing.T) (*storage.StateDB, *vm.Executor, *wallet.Wallet, *wallet.Wallet, *core.Block) {
	t.Helper()
	state := testutil.NewStateDB()
	operator, _ := wallet.Generate()
	sender, _ := wallet.Generate()
	roles := vm.Roles{Operator: operator.PubKey()}
	exec := vm.NewExecutor(chainID, state, events.NewEmitter(nil), params.Default(), roles, nil)
	block := core.NewBlock(chainID, 1, "prev", operator.PubKey(), nil)
	return state, exec, operator, sender, block
}

func fund(t *testing.T, state *storage.StateDB, addr, currency string, amount uint64) {
	t.Helper()
	acct, err := state.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	acct.Credit(currency, amount)
	if err := state.SetAccount(acct); err != nil {
		t.Fatal(err)
	}
}

func TestNonceReplayRejected(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	tx, err := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatal(err)
	}
	// Same signed transaction again: the nonce already moved on.
	err = exec.ExecuteTx(block, tx)
	if !errors.Is(err, core.ErrNonceMismatch) {
		t.Errorf("replay: got %v want ErrNonceMismatch", err)
	}
	acct, _ := state.GetAccount(other.PubKey())
	if got := acct.Balance("WILD"); got != 100 {
		t.Errorf("replay must not double-pay: got %d want 100", got)
	}

	// Skipping ahead is rejected too; nonces are strictly sequential.
	tx, _ = sender.Transfer(chainID, other.PubKey(), "WILD", 100, 5, 0)
	err = exec.ExecuteTx(block, tx)
	if !errors.Is(err, core.ErrNonceMismatch) {
		t.Errorf("nonce gap: got %v want ErrNonceMismatch", err)
	}
}

func TestChainIDMismatchRejected(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	tx, err := sender.Transfer("some-other-chain", other.PubKey(), "WILD", 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = exec.ExecuteTx(block, tx)
	if err == nil || !strings.Contains(err.Error(), "chain id mismatch") {
		t.Errorf("got %v want chain id mismatch", err)
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	tx, err := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	tx.Nonce = 1 // re-signs nothing, so the signature no longer covers the body
	if err := exec.ExecuteTx(block, tx); err == nil {
		t.Error("tampered transaction should fail verification")
	}
}

func TestFeeAccruesToTreasury(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	tx, err := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 0, 25)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatal(err)
	}

	acct, _ := state.GetAccount(sender.PubKey())
	if got := acct.Balance("WILD"); got != 875 {
		t.Errorf("sender balance: got %d want 875", got)
	}
	treasury, _ := state.GetPool(core.PoolTreasury)
	if got := treasury.Balance("WILD"); got != 25 {
		t.Errorf("treasury: got %d want 25", got)
	}
}

func TestFailedTxFullyReverted(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 50)
	other, _ := wallet.Generate()

	// The fee is charged, the nonce advanced, then the transfer itself fails
	// on funds; the snapshot revert must undo all of it.
	tx, err := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 0, 25)
	if err != nil {
		t.Fatal(err)
	}
	err = exec.ExecuteTx(block, tx)
	if !errors.Is(err, core.ErrInsufficientPayment) {
		t.Fatalf("got %v want ErrInsufficientPayment", err)
	}

	acct, _ := state.GetAccount(sender.PubKey())
	if got := acct.Balance("WILD"); got != 50 {
		t.Errorf("balance after revert: got %d want 50", got)
	}
	if acct.Nonce != 0 {
		t.Errorf("nonce after revert: got %d want 0", acct.Nonce)
	}
	treasury, _ := state.GetPool(core.PoolTreasury)
	if got := treasury.Balance("WILD"); got != 0 {
		t.Errorf("treasury after revert: got %d want 0", got)
	}
}

func TestTransferMovesFunds(t *testing.T) {
	state, exec, _, sender, block := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	tx, err := sender.Transfer(chainID, other.PubKey(), "WILD", 400, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatal(err)
	}
	from, _ := state.GetAccount(sender.PubKey())
	to, _ := state.GetAccount(other.PubKey())
	if from.Balance("WILD") != 600 || to.Balance("WILD") != 400 {
		t.Errorf("balances: %d / %d", from.Balance("WILD"), to.Balance("WILD"))
	}
}

func TestPauseDoesNotGateOperator(t *testing.T) {
	state, exec, operator, sender, block := newExecEnv(t)
	if err := state.SetPaused(true); err != nil {
		t.Fatal(err)
	}
	fund(t, state, sender.PubKey(), "WILD", 1000)

	tx, err := sender.Transfer(chainID, operator.PubKey(), "WILD", 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, tx); !errors.Is(err, core.ErrPaused) {
		t.Errorf("player transfer while paused: got %v want ErrPaused", err)
	}

	optx, err := operator.NewTx(chainID, core.TxSetRate, 0, 0, core.SetRatePayload{Currency: "WILD", Rate: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, optx); err != nil {
		t.Errorf("operator tx while paused: %v", err)
	}
}

func TestExecuteBlockStopsOnFailure(t *testing.T) {
	state, exec, operator, sender, _ := newExecEnv(t)
	fund(t, state, sender.PubKey(), "WILD", 1000)
	other, _ := wallet.Generate()

	good, _ := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 0, 0)
	bad, _ := sender.Transfer(chainID, other.PubKey(), "WILD", 100, 5, 0) // nonce gap
	block := core.NewBlock(chainID, 1, "prev", operator.PubKey(), []*core.Transaction{good, bad})

	if err := exec.ExecuteBlock(block); err == nil {
		t.Fatal("block with an invalid transaction must fail")
	}
}
