// utils/math.go
package utils

import "math"

const Epsilon = 1e-9

// RoundToPrecision rounds a float64 to a specified number of decimal places.
func RoundToPrecision(value float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(value*pow) / pow
}

// AdjustPriceToTickSize snaps a price to the nearest multiple of the
// instrument's price increment so the venue accepts it.
func AdjustPriceToTickSize(price float64, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Round(price/tickSize) * tickSize
}

// FloorToStep floors a volume to the nearest lower multiple of the venue's
// volume step. Epsilon guards against 0.49999999 artifacts flooring one step
// too low.
func FloorToStep(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	return math.Floor(volume/step+Epsilon) * step
}
