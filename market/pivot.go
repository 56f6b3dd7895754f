// market/pivot.go
package market

// IsSwingHigh reports whether bars[i] is a swing high: its high strictly
// exceeds the highs of k bars on each side. Indices without k full neighbours
// never qualify.
func IsSwingHigh(bars []Bar, i, k int) bool {
	if k < 1 || i-k < 0 || i+k >= len(bars) {
		return false
	}
	h := bars[i].High
	for j := i - k; j <= i+k; j++ {
		if j == i {
			continue
		}
		if bars[j].High >= h {
			return false
		}
	}
	return true
}

// IsSwingLow is the symmetric check on lows.
func IsSwingLow(bars []Bar, i, k int) bool {
	if k < 1 || i-k < 0 || i+k >= len(bars) {
		return false
	}
	l := bars[i].Low
	for j := i - k; j <= i+k; j++ {
		if j == i {
			continue
		}
		if bars[j].Low <= l {
			return false
		}
	}
	return true
}
