// strategy/swing_test.go
package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

func lowBars(lows ...float64) []market.Bar {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(lows))
	for i, l := range lows {
		bars[i] = market.Bar{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     l + 0.0010,
			High:     l + 0.0020,
			Low:      l,
			Close:    l + 0.0005,
		}
	}
	return bars
}

func TestPivotLocatorNearestSwingLowWins(t *testing.T) {
	// Two qualifying swing lows below the sweep bar; the one closer to the
	// sweep must win even though the other is deeper.
	bars := lowBars(1.1050, 1.1020, 1.1035, 1.1025, 1.1045, 1.1050)
	loc := &PivotLocator{LookbackBars: 10, CandleCount: 1}

	ref, status := loc.Locate(bars, 5, liquidity.SideHigh)
	require.Equal(t, LocateFound, status)
	require.InDelta(t, 1.1025, ref.Price, 1e-9)
	require.Equal(t, bars[3].OpenTime, ref.BarTime)
}

func TestPivotLocatorWaitsForRightNeighbours(t *testing.T) {
	// With K=2 the candidates next to the sweep bar cannot be judged until
	// two more bars close.
	bars := lowBars(1.1050, 1.1020, 1.1035, 1.1045)
	loc := &PivotLocator{LookbackBars: 10, CandleCount: 2}

	_, status := loc.Locate(bars, 3, liquidity.SideHigh)
	require.Equal(t, LocateWait, status)
}

func TestPivotLocatorDiscardsMonotonicRun(t *testing.T) {
	bars := lowBars(1.1050, 1.1045, 1.1040, 1.1035, 1.1030, 1.1025, 1.1010)
	loc := &PivotLocator{LookbackBars: 10, CandleCount: 1}

	_, status := loc.Locate(bars, 6, liquidity.SideHigh)
	require.Equal(t, LocateDiscard, status)
}

func TestPivotLocatorFindsSwingHighAfterLowSweep(t *testing.T) {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	highs := []float64{1.1010, 1.1030, 1.1020, 1.1015, 1.1005}
	bars := make([]market.Bar, len(highs))
	for i, h := range highs {
		bars[i] = market.Bar{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     h - 0.0010,
			High:     h,
			Low:      h - 0.0020,
			Close:    h - 0.0005,
		}
	}
	loc := &PivotLocator{LookbackBars: 10, CandleCount: 1}

	ref, status := loc.Locate(bars, 4, liquidity.SideLow)
	require.Equal(t, LocateFound, status)
	require.InDelta(t, 1.1030, ref.Price, 1e-9)
}

func patternBars(specs ...[4]float64) []market.Bar {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(specs))
	for i, s := range specs {
		bars[i] = market.Bar{OpenTime: base.Add(time.Duration(i) * time.Minute), Open: s[0], High: s[1], Low: s[2], Close: s[3]}
	}
	return bars
}

func TestPatternLocatorTwoBarReversal(t *testing.T) {
	bars := patternBars(
		[4]float64{1.1040, 1.1055, 1.1038, 1.1042}, // sweep bar
		[4]float64{1.1042, 1.1045, 1.1022, 1.1025}, // down bar
		[4]float64{1.1025, 1.1032, 1.1020, 1.1030}, // up bar, lower low
	)
	loc := &PatternLocator{TimeoutBars: 15}

	ref, status := loc.Locate(bars, 0, liquidity.SideHigh)
	require.Equal(t, LocateFound, status)
	require.InDelta(t, 1.1020, ref.Price, 1e-9, "reference is the lower extreme of the pair")
	require.Equal(t, bars[2].OpenTime, ref.BarTime)
}

func TestPatternLocatorWaitsUntilPairCloses(t *testing.T) {
	bars := patternBars(
		[4]float64{1.1040, 1.1055, 1.1038, 1.1042},
		[4]float64{1.1042, 1.1045, 1.1022, 1.1025},
	)
	loc := &PatternLocator{TimeoutBars: 15}

	_, status := loc.Locate(bars, 0, liquidity.SideHigh)
	require.Equal(t, LocateWait, status)
}

func TestPatternLocatorTimesOut(t *testing.T) {
	// Four straight down bars after the sweep: no reversal pair inside the
	// two-bar window.
	bars := patternBars(
		[4]float64{1.1040, 1.1055, 1.1038, 1.1042},
		[4]float64{1.1042, 1.1043, 1.1030, 1.1032},
		[4]float64{1.1032, 1.1033, 1.1024, 1.1026},
		[4]float64{1.1026, 1.1027, 1.1018, 1.1020},
		[4]float64{1.1020, 1.1021, 1.1012, 1.1014},
	)
	loc := &PatternLocator{TimeoutBars: 2}

	_, status := loc.Locate(bars, 0, liquidity.SideHigh)
	require.Equal(t, LocateDiscard, status)
}

func TestPatternLocatorBullishPair(t *testing.T) {
	bars := patternBars(
		[4]float64{1.1000, 1.1005, 1.0985, 1.0995}, // sweep bar
		[4]float64{1.0995, 1.1012, 1.0993, 1.1010}, // up bar, higher high
		[4]float64{1.1010, 1.1011, 1.1000, 1.1002}, // down bar
	)
	loc := &PatternLocator{TimeoutBars: 15}

	ref, status := loc.Locate(bars, 0, liquidity.SideLow)
	require.Equal(t, LocateFound, status)
	require.InDelta(t, 1.1012, ref.Price, 1e-9)
	require.Equal(t, bars[1].OpenTime, ref.BarTime)
}
