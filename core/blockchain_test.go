package core_test

import (
	"strings"
	"testing"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
	"github.com/hollowdex/wildchain/internal/testutil"
	"github.com/hollowdex/wildchain/wallet"
)

func signedBlock(t *testing.T, w *wallet.Wallet, height int64, prevHash string) *core.Block {
	t.Helper()
	b := core.NewBlock(chainID, height, prevHash, w.PubKey(), nil)
	b.Sign(w.PrivKey())
	return b
}

func TestBlockchainLinksBlocks(t *testing.T) {
	w, _ := wallet.Generate()
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}

	genesis := signedBlock(t, w, 0, "0000")
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}
	next := signedBlock(t, w, 1, genesis.Hash)
	if err := bc.AddBlock(next); err != nil {
		t.Fatal(err)
	}

	if bc.Height() != 1 {
		t.Errorf("height: got %d want 1", bc.Height())
	}
	if bc.Tip().Hash != next.Hash {
		t.Errorf("tip: got %s want %s", bc.Tip().Hash, next.Hash)
	}
	got, err := bc.GetBlockByHeight(0)
	if err != nil || got.Hash != genesis.Hash {
		t.Errorf("by height: %v, %v", got, err)
	}
	got, err = bc.GetBlock(next.Hash)
	if err != nil || got.Header.Height != 1 {
		t.Errorf("by hash: %v, %v", got, err)
	}
}

func TestBlockchainRejectsBrokenLinks(t *testing.T) {
	w, _ := wallet.Generate()
	bc := core.NewBlockchain(testutil.NewMemBlockStore())

	genesis := signedBlock(t, w, 0, "0000")
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	gap := signedBlock(t, w, 5, genesis.Hash)
	if err := bc.AddBlock(gap); err == nil || !strings.Contains(err.Error(), "does not follow tip") {
		t.Errorf("height gap: got %v", err)
	}

	fork := signedBlock(t, w, 1, "not-the-tip")
	if err := bc.AddBlock(fork); err == nil || !strings.Contains(err.Error(), "prev_hash mismatch") {
		t.Errorf("bad prev hash: got %v", err)
	}
}

func TestBlockchainInitRestoresTip(t *testing.T) {
	w, _ := wallet.Generate()
	store := testutil.NewMemBlockStore()

	bc := core.NewBlockchain(store)
	genesis := signedBlock(t, w, 0, "0000")
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}
	next := signedBlock(t, w, 1, genesis.Hash)
	if err := bc.AddBlock(next); err != nil {
		t.Fatal(err)
	}

	// A second instance over the same store picks up where the first left off.
	reopened := core.NewBlockchain(store)
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	if reopened.Height() != 1 || reopened.Tip().Hash != next.Hash {
		t.Errorf("restored tip: height %d hash %s", reopened.Height(), reopened.Tip().Hash)
	}
}

func TestBlockSignAndVerify(t *testing.T) {
	w, _ := wallet.Generate()
	b := signedBlock(t, w, 3, "prev")

	pub, err := crypto.PubKeyFromHex(w.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Verify(pub); err != nil {
		t.Errorf("signed block must verify: %v", err)
	}

	b.Header.Height = 4
	b.Hash = b.ComputeHash()
	if err := b.Verify(pub); err == nil {
		t.Error("tampered header must not verify")
	}
}
