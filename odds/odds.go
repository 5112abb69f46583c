// Package odds holds the pure randomness-interpretation rules of the game:
// how an oracle value decides a catch and where a creature lands. Nothing in
// here touches chain state, so every rule is testable in isolation.
package odds

// Roll reduces an oracle value to a catch roll in [0,100).
func Roll(value uint64) int {
	return int(value % 100)
}

// Caught reports whether a throw with the given tier threshold succeeds for
// the oracle value. The comparison is strictly less-than: a threshold of 99
// yields a 99% catch rate, not 100%, and a threshold of 0 never catches.
func Caught(threshold int, value uint64) bool {
	return Roll(value) < threshold
}

// Position derives a spawn position from a single oracle value. X comes from
// the low 16 bits and Y from the next 16, so the two coordinates are
// statistically independent even though they share one sample. width and
// height must be positive.
func Position(value uint64, width, height uint32) (x, y uint32) {
	x = uint32(value&0xFFFF) % width
	y = uint32((value>>16)&0xFFFF) % height
	return x, y
}
