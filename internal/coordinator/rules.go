package coordinator

import (
	"fmt"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// NeutralScore is the sentiment score that produces no position.
const NeutralScore = 5

// maxCallbackRate is the hard ceiling on the trailing-stop callback,
// regardless of leverage or configuration.
const maxCallbackRate = 2.0

// maxStopLossPct is the hard ceiling on the fixed stop-loss distance from
// entry, in percent. Enforced even if configuration is laxer.
const maxStopLossPct = 1.0

// leverageByDistance maps distance from the neutral score to leverage,
// symmetric in both directions: the further from neutral, the higher the
// conviction. Pinned production values; edits must keep the table
// monotonically increasing (verified in tests).
var leverageByDistance = map[int]int{
	1: 3,
	2: 10,
	3: 15,
	4: 30,
	5: 50,
}

// callbackByLeverage maps leverage to the trailing-stop callback rate in
// percent. Higher leverage gets a tighter callback: it tolerates less adverse
// movement before liquidation risk becomes material.
var callbackByLeverage = map[int]float64{
	50: 0.5,
	30: 0.8,
	15: 1.2,
	10: 1.5,
	3:  2.0,
}

// ShouldTrade is the pure trade/no-trade decision for a sentiment score.
func ShouldTrade(score int) (bool, string) {
	switch {
	case score == NeutralScore:
		return false, "neutral sentiment, no action"
	case score > NeutralScore:
		return true, fmt.Sprintf("bullish sentiment (score %d), go LONG", score)
	default:
		return true, fmt.Sprintf("bearish sentiment (score %d), go SHORT", score)
	}
}

// SideForScore maps a non-neutral score to a position side. The neutral
// score has no side; callers must not reach this path with it.
func SideForScore(score int) (domain.Side, error) {
	if score < 0 || score > 10 {
		return "", fmt.Errorf("score must be in [0,10], got %d", score)
	}
	switch {
	case score > NeutralScore:
		return domain.SideLong, nil
	case score < NeutralScore:
		return domain.SideShort, nil
	default:
		return "", fmt.Errorf("no side for neutral score %d", score)
	}
}

// LeverageForScore returns the leverage for a sentiment score. The neutral
// score returns 0: no trade.
func LeverageForScore(score int) (int, error) {
	if score < 0 || score > 10 {
		return 0, fmt.Errorf("score must be in [0,10], got %d", score)
	}
	distance := score - NeutralScore
	if distance < 0 {
		distance = -distance
	}
	return leverageByDistance[distance], nil
}

// CallbackRateForLeverage returns the trailing-stop callback rate in percent
// for the given leverage. Unknown leverages get the widest rate, and the
// result never exceeds the hard ceiling.
func CallbackRateForLeverage(leverage int) float64 {
	rate, ok := callbackByLeverage[leverage]
	if !ok {
		rate = maxCallbackRate
	}
	if rate > maxCallbackRate {
		rate = maxCallbackRate
	}
	return rate
}

// stopLossFor computes the fixed stop-loss price: at most maxPct percent
// adverse to entry, below entry for LONG and above for SHORT. The 1% hard
// cap applies even when the configured bound is laxer.
func stopLossFor(side domain.Side, entryPrice, maxPct float64) float64 {
	if maxPct <= 0 || maxPct > maxStopLossPct {
		maxPct = maxStopLossPct
	}
	if side == domain.SideLong {
		return entryPrice * (1 - maxPct/100)
	}
	return entryPrice * (1 + maxPct/100)
}

// pnlPercent is the price-delta PnL fallback, sign flipped for SHORT. It is
// a notional-relative figure; the exchange's realized accounting is
// preferred whenever available.
func pnlPercent(entryPrice, exitPrice float64, side domain.Side) float64 {
	if entryPrice == 0 {
		return 0
	}
	pct := (exitPrice - entryPrice) / entryPrice * 100
	if side == domain.SideShort {
		pct = -pct
	}
	return pct
}
