package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(20, 0, 15); got != 15 {
		t.Fatalf("Clamp high = %d", got)
	}
	if got := Clamp(-1, 15, 0); got != 0 {
		t.Fatalf("Clamp swapped bounds = %d", got)
	}
	if got := Clamp(50*time.Millisecond, time.Second, time.Minute); got != time.Second {
		t.Fatalf("Clamp duration = %v", got)
	}
}

func TestBetween(t *testing.T) {
	if !Between(400, 400, 8192) || Between(8193, 8192, 400) {
		t.Fatal("Between bounds")
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{21.3456, 21.35},
		{-46.85, -46.85},
		{128.867, 128.87},
		{118.99, 118.99},
		{0.004, 0},
	}
	for _, c := range cases {
		if got := Round(c.in, 2); got != c.want {
			t.Fatalf("Round(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
