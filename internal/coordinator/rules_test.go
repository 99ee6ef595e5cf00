package coordinator

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

func TestShouldTrade(t *testing.T) {
	if ok, _ := ShouldTrade(NeutralScore); ok {
		t.Fatal("neutral score must not trade")
	}
	for _, score := range []int{0, 1, 4, 6, 9, 10} {
		if ok, _ := ShouldTrade(score); !ok {
			t.Errorf("score %d: expected trade", score)
		}
	}
}

func TestSideForScore(t *testing.T) {
	tests := []struct {
		score   int
		want    domain.Side
		wantErr bool
	}{
		{score: 0, want: domain.SideShort},
		{score: 4, want: domain.SideShort},
		{score: 5, wantErr: true},
		{score: 6, want: domain.SideLong},
		{score: 10, want: domain.SideLong},
		{score: -1, wantErr: true},
		{score: 11, wantErr: true},
	}
	for _, tt := range tests {
		got, err := SideForScore(tt.score)
		if tt.wantErr {
			if err == nil {
				t.Errorf("score %d: expected error, got %s", tt.score, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("score %d: %v", tt.score, err)
			continue
		}
		if got != tt.want {
			t.Errorf("score %d: got %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestLeverageForScore(t *testing.T) {
	tests := []struct {
		score int
		want  int
	}{
		{5, 0},
		{6, 3}, {4, 3},
		{7, 10}, {3, 10},
		{8, 15}, {2, 15},
		{9, 30}, {1, 30},
		{10, 50}, {0, 50},
	}
	for _, tt := range tests {
		got, err := LeverageForScore(tt.score)
		if err != nil {
			t.Fatalf("score %d: %v", tt.score, err)
		}
		if got != tt.want {
			t.Errorf("score %d: got %dx, want %dx", tt.score, got, tt.want)
		}
	}

	if _, err := LeverageForScore(11); err == nil {
		t.Error("score 11: expected error")
	}
	if _, err := LeverageForScore(-1); err == nil {
		t.Error("score -1: expected error")
	}
}

// Leverage must be symmetric about the neutral score and grow with distance
// from it.
func TestLeverageSymmetricAndMonotone(t *testing.T) {
	prev := 0
	for distance := 1; distance <= 5; distance++ {
		up, err := LeverageForScore(NeutralScore + distance)
		if err != nil {
			t.Fatal(err)
		}
		down, err := LeverageForScore(NeutralScore - distance)
		if err != nil {
			t.Fatal(err)
		}
		if up != down {
			t.Errorf("distance %d: asymmetric leverage %dx vs %dx", distance, up, down)
		}
		if up <= prev {
			t.Errorf("distance %d: leverage %dx not greater than %dx", distance, up, prev)
		}
		prev = up
	}
}

func TestCallbackRateForLeverage(t *testing.T) {
	tests := []struct {
		leverage int
		want     float64
	}{
		{50, 0.5},
		{30, 0.8},
		{15, 1.2},
		{10, 1.5},
		{3, 2.0},
		{7, 2.0}, // unmapped leverage falls back to the widest rate
	}
	for _, tt := range tests {
		if got := CallbackRateForLeverage(tt.leverage); got != tt.want {
			t.Errorf("leverage %dx: got %v, want %v", tt.leverage, got, tt.want)
		}
	}
}

// Every leverage the score table can produce must map to a callback rate
// within the exchange's accepted band.
func TestCallbackRateWithinBand(t *testing.T) {
	for score := 0; score <= 10; score++ {
		if score == NeutralScore {
			continue
		}
		lev, err := LeverageForScore(score)
		if err != nil {
			t.Fatal(err)
		}
		rate := CallbackRateForLeverage(lev)
		if rate <= 0 || rate > 2.0 {
			t.Errorf("score %d (leverage %dx): callback rate %v out of band", score, lev, rate)
		}
	}
}

func TestStopLossFor(t *testing.T) {
	long := stopLossFor(domain.SideLong, 50000, 1.0)
	if long != 49500 {
		t.Errorf("long stop: got %v, want 49500", long)
	}
	short := stopLossFor(domain.SideShort, 50000, 1.0)
	if short != 50500 {
		t.Errorf("short stop: got %v, want 50500", short)
	}
}

// The stop distance never exceeds 1% of entry regardless of configuration.
func TestStopLossCapped(t *testing.T) {
	f := func(price float64, pctSeed uint8, long bool) bool {
		price = math.Abs(price)
		if price < 1 || price > 1e7 || math.IsInf(price, 0) || math.IsNaN(price) {
			return true
		}
		// Seed values above the cap must be clamped, not honored.
		pct := float64(pctSeed) / 10
		side := domain.SideShort
		if long {
			side = domain.SideLong
		}
		stop := stopLossFor(side, price, pct)
		dist := math.Abs(stop-price) / price * 100
		return dist <= 1.0+1e-9
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestPnLPercent(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		exit  float64
		side  domain.Side
		want  float64
	}{
		{"long gain", 50000, 51000, domain.SideLong, 2.0},
		{"long loss", 50000, 49000, domain.SideLong, -2.0},
		{"short gain", 50000, 49000, domain.SideShort, 2.0},
		{"short loss", 50000, 51000, domain.SideShort, -2.0},
		{"flat", 50000, 50000, domain.SideLong, 0},
		{"zero entry", 0, 100, domain.SideLong, 0},
	}
	for _, tt := range tests {
		got := pnlPercent(tt.entry, tt.exit, tt.side)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
