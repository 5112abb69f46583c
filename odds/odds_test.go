package odds

import "testing"

func TestRoll(t *testing.T) {
	cases := []struct {
		value uint64
		want  int
	}{
		{0, 0},
		{99, 99},
		{100, 0},
		{12345, 45},
		{^uint64(0), 15}, // 18446744073709551615 % 100
	}
	for _, c := range cases {
		if got := Roll(c.value); got != c.want {
			t.Errorf("Roll(%d): got %d want %d", c.value, got, c.want)
		}
	}
}

// TestCaughtBoundary verifies the strict comparison: a roll equal to the
// threshold is a miss, so threshold 99 can never catch on roll 99 and
// threshold 0 never catches at all.
func TestCaughtBoundary(t *testing.T) {
	cases := []struct {
		threshold int
		value     uint64
		want      bool
	}{
		{2, 0, true},
		{2, 1, true},
		{2, 2, false},
		{2, 101, true}, // roll 1
		{99, 98, true},
		{99, 99, false},
		{99, 199, false}, // roll 99
		{0, 0, false},
		{0, 50, false},
		{100, 99, true}, // degenerate always-catch config
	}
	for _, c := range cases {
		if got := Caught(c.threshold, c.value); got != c.want {
			t.Errorf("Caught(%d, %d): got %v want %v", c.threshold, c.value, got, c.want)
		}
	}
}

func TestPositionInBounds(t *testing.T) {
	const w, h = 1024, 768
	values := []uint64{0, 1, 0xFFFF, 0x10000, 0xFFFF_FFFF, ^uint64(0), 0xDEAD_BEEF_CAFE}
	for _, v := range values {
		x, y := Position(v, w, h)
		if x >= w {
			t.Errorf("Position(%#x): x %d out of bounds %d", v, x, w)
		}
		if y >= h {
			t.Errorf("Position(%#x): y %d out of bounds %d", v, y, h)
		}
	}
}

// TestPositionDisjointBits verifies that x and y are derived from different
// 16-bit windows of the value, so changing only the high window never moves x.
func TestPositionDisjointBits(t *testing.T) {
	const w, h = 1024, 768
	x1, y1 := Position(0x0001_0005, w, h)
	x2, y2 := Position(0x0002_0005, w, h)
	if x1 != x2 {
		t.Errorf("x changed with high window: %d vs %d", x1, x2)
	}
	if x1 != 5 {
		t.Errorf("x: got %d want 5", x1)
	}
	if y1 == y2 {
		t.Errorf("y should differ across high windows: both %d", y1)
	}
}
