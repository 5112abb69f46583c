// Package params defines the tunable game economy parameters: ball tiers,
// slot capacity, the revenue split and reward-pull pricing. Parameters are
// loaded from a YAML file so operators can retune the economy without
// rebuilding the node.
package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SplitDenominator is the basis-point scale of the revenue split.
const SplitDenominator = 10_000

// Tier is one ball category: a fixed USD price and a fixed catch-rate
// threshold in [0,100]. A threshold of 99 catches 99% of the time, never
// 100%; a threshold of 0 never catches.
type Tier struct {
	Name           string `yaml:"name"`
	PriceCents     uint64 `yaml:"price_cents"`
	CatchThreshold int    `yaml:"catch_threshold"`
}

// Params holds the full economy configuration.
type Params struct {
	Tiers []Tier `yaml:"tiers"`

	// Spawn slot table
	SlotCapacity uint32 `yaml:"slot_capacity"`
	ArenaWidth   uint32 `yaml:"arena_width"`
	ArenaHeight  uint32 `yaml:"arena_height"`

	// Revenue accounting: RevenueSplitBps/10000 of every purchase accrues
	// to the revenue pool; the integer remainder goes to the treasury.
	RevenueSplitBps    uint64 `yaml:"revenue_split_bps"`
	SettlementCurrency string `yaml:"settlement_currency"`

	// Reward auto-replenishment
	PullThreshold uint64 `yaml:"pull_threshold"` // min pool balance before pulling
	PullPrice     uint64 `yaml:"pull_price"`     // debited per pull
	RewardCap     uint32 `yaml:"reward_cap"`     // max tracked reward units

	// Creatures eligible for spawning (operator picks one per spawn).
	Creatures []string `yaml:"creatures"`
}

// Default returns the canonical development parameters: four tiers with the
// 2/20/50/99 thresholds and a 97/3 revenue split.
func Default() *Params {
	return &Params{
		Tiers: []Tier{
			{Name: "basic", PriceCents: 100, CatchThreshold: 2},
			{Name: "great", PriceCents: 500, CatchThreshold: 20},
			{Name: "ultra", PriceCents: 1000, CatchThreshold: 50},
			{Name: "master", PriceCents: 5000, CatchThreshold: 99},
		},
		SlotCapacity:       12,
		ArenaWidth:         1024,
		ArenaHeight:        768,
		RevenueSplitBps:    9700,
		SettlementCurrency: "WILD",
		PullThreshold:      100_000,
		PullPrice:          80_000,
		RewardCap:          5,
		Creatures:          []string{"glimmox", "thornbuck", "pyrelisk", "mossling"},
	}
}

// Load reads a YAML parameter file and validates it.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse params %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("params %q: %w", path, err)
	}
	return p, nil
}

// Save writes the parameters to path as YAML.
func Save(p *Params, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks internal consistency of the parameter set.
func (p *Params) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("at least one tier required")
	}
	seen := make(map[string]bool, len(p.Tiers))
	for _, t := range p.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tier with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
		if t.PriceCents == 0 {
			return fmt.Errorf("tier %q: price must be > 0", t.Name)
		}
		if t.CatchThreshold < 0 || t.CatchThreshold > 100 {
			return fmt.Errorf("tier %q: catch threshold %d outside [0,100]", t.Name, t.CatchThreshold)
		}
	}
	if p.SlotCapacity == 0 {
		return fmt.Errorf("slot capacity must be > 0")
	}
	if p.ArenaWidth == 0 || p.ArenaHeight == 0 {
		return fmt.Errorf("arena dimensions must be > 0")
	}
	if p.RevenueSplitBps > SplitDenominator {
		return fmt.Errorf("revenue split %d exceeds %d bps", p.RevenueSplitBps, SplitDenominator)
	}
	if p.SettlementCurrency == "" {
		return fmt.Errorf("settlement currency required")
	}
	if p.PullPrice == 0 || p.PullPrice > p.PullThreshold {
		return fmt.Errorf("pull price must be in (0, pull threshold]")
	}
	if p.RewardCap == 0 {
		return fmt.Errorf("reward cap must be > 0")
	}
	return nil
}

// Tier looks up a tier by name.
func (p *Params) Tier(name string) (Tier, bool) {
	for _, t := range p.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Creature reports whether id is an eligible creature. An empty creature
// list disables the check.
func (p *Params) Creature(id string) bool {
	if len(p.Creatures) == 0 {
		return true
	}
	for _, c := range p.Creatures {
		if c == id {
			return true
		}
	}
	return false
}
