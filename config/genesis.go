package config

import (
	"strings"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
	"github.com/hollowdex/wildchain/params"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0. It seeds state with the
// config's Alloc balances, the initial exchange rates and the game
// parameters' slot capacity, then commits.
func CreateGenesisBlock(cfg *Config, p *params.Params, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balances := range cfg.Genesis.Alloc {
		acc := &core.Account{Address: pubkeyHex, Nonce: 0}
		for currency, amount := range balances {
			acc.Credit(currency, amount)
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	for currency, rate := range cfg.Genesis.Rates {
		if err := state.SetRate(currency, rate); err != nil {
			return nil, err
		}
	}

	if err := state.SetSlotCapacity(p.SlotCapacity); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(cfg.Genesis.ChainID, 0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
