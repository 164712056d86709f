package utils

import "fmt"

var hashrateUnits = []string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s"}

// FormatHashrate scales a hashes-per-second value to the largest unit up to TH/s
// and renders it with two decimals, e.g. "1.50 MH/s".
func FormatHashrate(rate float64) string {
	unit := 0
	for rate >= 1000 && unit < len(hashrateUnits)-1 {
		rate /= 1000
		unit++
	}
	return fmt.Sprintf("%.2f %s", rate, hashrateUnits[unit])
}
