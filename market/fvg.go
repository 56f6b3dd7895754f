// market/fvg.go
package market

import "time"

// Gap is a fair value gap: a three-bar imbalance where the first and third
// bars' ranges do not overlap. Low/High are the gap boundaries, First/Last
// the open times of the bounding bars.
type Gap struct {
	Low   float64
	High  float64
	First time.Time
	Last  time.Time
}

// BullishGapAt checks the triple centred on bars[m] for a bullish gap:
// the third bar's low prints above the first bar's high.
func BullishGapAt(bars []Bar, m int) (Gap, bool) {
	if m-1 < 0 || m+1 >= len(bars) {
		return Gap{}, false
	}
	first, last := bars[m-1], bars[m+1]
	if last.Low <= first.High {
		return Gap{}, false
	}
	return Gap{
		Low:   first.High,
		High:  last.Low,
		First: first.OpenTime,
		Last:  last.OpenTime,
	}, true
}

// BearishGapAt is the mirrored check: the third bar's high stays below the
// first bar's low.
func BearishGapAt(bars []Bar, m int) (Gap, bool) {
	if m-1 < 0 || m+1 >= len(bars) {
		return Gap{}, false
	}
	first, last := bars[m-1], bars[m+1]
	if last.High >= first.Low {
		return Gap{}, false
	}
	return Gap{
		Low:   last.High,
		High:  first.Low,
		First: first.OpenTime,
		Last:  last.OpenTime,
	}, true
}
