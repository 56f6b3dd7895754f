// risk/engine.go
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
	"github.com/sergeysmolkin-grodt/SilverBullet/utils"
)

// Every rejection below is an expected outcome, not an exceptional
// condition; the caller resets the pipeline and moves on.
var (
	// ErrInvalidGeometry means the entry does not clear the stop by the
	// minimum distance, or sits on the wrong side of the market price.
	ErrInvalidGeometry = errors.New("invalid risk geometry")
	// ErrNoValidTarget means no candidate level satisfies the configured
	// reward:risk bounds. There is never a synthetic fallback target.
	ErrNoValidTarget = errors.New("no candidate target within RR bounds")
	// ErrVolumeBelowMin means the sized position is below the venue
	// minimum.
	ErrVolumeBelowMin = errors.New("position size below venue minimum")
)

// Engine turns a confirmed setup into fully parameterized trade geometry.
type Engine struct {
	MinRR           float64
	MaxRR           float64
	RiskPercent     float64
	StopBufferTicks int
	MinStopTicks    int
}

// Plan is a fully parameterized trade: entry, stop, target and size.
type Plan struct {
	Side   broker.OrderSide
	Entry  float64
	Stop   float64
	Target float64
	Volume float64
	RR     float64
}

// Build computes the plan for a confirmed setup.
//
// rangeBars is the inclusive sweep..BOS bar range; the stop sits just beyond
// its most adverse extreme. The entry is the gap boundary contributed by the
// pre-gap bar (gap top for shorts, gap bottom for longs): the boundary
// nearest the pre-BOS price action, i.e. the deepest retracement entry.
func (e *Engine) Build(
	side broker.OrderSide,
	rangeBars []market.Bar,
	gap market.Gap,
	targets []liquidity.Level,
	bid, ask, equity float64,
	info broker.SymbolInfo,
) (Plan, error) {
	if len(rangeBars) == 0 {
		return Plan{}, fmt.Errorf("%w: empty sweep..BOS range", ErrInvalidGeometry)
	}
	tick := info.TickSize

	var entry, stop float64
	if side == broker.Sell {
		high := rangeBars[0].High
		for _, b := range rangeBars[1:] {
			if b.High > high {
				high = b.High
			}
		}
		stop = high + float64(e.StopBufferTicks)*tick
		entry = gap.High
	} else {
		low := rangeBars[0].Low
		for _, b := range rangeBars[1:] {
			if b.Low < low {
				low = b.Low
			}
		}
		stop = low - float64(e.StopBufferTicks)*tick
		entry = gap.Low
	}

	entry = utils.AdjustPriceToTickSize(entry, tick)
	stop = utils.AdjustPriceToTickSize(stop, tick)

	stopDist := math.Abs(stop - entry)
	if stopDist < float64(e.MinStopTicks)*tick {
		return Plan{}, fmt.Errorf("%w: stop distance %.5f below minimum", ErrInvalidGeometry, stopDist)
	}
	if side == broker.Sell && stop <= entry {
		return Plan{}, fmt.Errorf("%w: short stop %.5f not above entry %.5f", ErrInvalidGeometry, stop, entry)
	}
	if side == broker.Buy && stop >= entry {
		return Plan{}, fmt.Errorf("%w: long stop %.5f not below entry %.5f", ErrInvalidGeometry, stop, entry)
	}
	// A limit order on the wrong side of the book would fill as market.
	if side == broker.Sell && entry <= bid {
		return Plan{}, fmt.Errorf("%w: short entry %.5f already below market bid %.5f", ErrInvalidGeometry, entry, bid)
	}
	if side == broker.Buy && entry >= ask {
		return Plan{}, fmt.Errorf("%w: long entry %.5f already above market ask %.5f", ErrInvalidGeometry, entry, ask)
	}

	target, rr, ok := e.SearchTarget(side, entry, stopDist, targets)
	if !ok {
		return Plan{}, ErrNoValidTarget
	}

	volume, err := e.Size(equity, stopDist, info)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Side:   side,
		Entry:  entry,
		Stop:   stop,
		Target: utils.AdjustPriceToTickSize(target, tick),
		Volume: volume,
		RR:     rr,
	}, nil
}

// SearchTarget scans the opposite-side candidate levels for the one that
// maximizes distance from entry while keeping reward:risk within bounds.
// Levels not strictly beyond the entry in the trade direction are skipped.
func (e *Engine) SearchTarget(side broker.OrderSide, entry, stopDist float64, targets []liquidity.Level) (float64, float64, bool) {
	if stopDist <= 0 {
		return 0, 0, false
	}
	var (
		bestDist float64
		bestPx   float64
		bestRR   float64
		found    bool
	)
	for _, lvl := range targets {
		var dist float64
		if side == broker.Sell {
			dist = entry - lvl.Price
		} else {
			dist = lvl.Price - entry
		}
		if dist <= 0 {
			continue
		}
		rr := dist / stopDist
		if rr < e.MinRR || rr > e.MaxRR {
			continue
		}
		if dist > bestDist {
			bestDist, bestPx, bestRR, found = dist, lvl.Price, rr, true
		}
	}
	return bestPx, bestRR, found
}

// Size computes the position volume from the configured risk fraction of
// equity, floored to the venue's volume step. Sizes below the minimum are
// rejected; sizes above the maximum are clamped.
func (e *Engine) Size(equity, stopDist float64, info broker.SymbolInfo) (float64, error) {
	if info.TickSize <= 0 || info.TickValue <= 0 {
		return 0, fmt.Errorf("%w: instrument has no tick geometry", ErrInvalidGeometry)
	}
	stopTicks := stopDist / info.TickSize
	riskAmount := equity * e.RiskPercent / 100
	raw := riskAmount / (stopTicks * info.TickValue)

	volume := utils.FloorToStep(raw, info.VolumeStep)
	if volume < info.MinVolume {
		return 0, fmt.Errorf("%w: %.4f < %.4f", ErrVolumeBelowMin, volume, info.MinVolume)
	}
	if info.MaxVolume > 0 && volume > info.MaxVolume {
		volume = info.MaxVolume
	}
	return volume, nil
}
