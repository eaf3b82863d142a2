package detector

import "math"

// updateMean folds x into an arithmetic mean over count prior samples.
func updateMean(avg float64, count int, x float64) float64 {
	if count == 0 {
		return x
	}
	return (avg*float64(count) + x) / float64(count+1)
}

func updateEMA(avg, x, alpha float64) float64 {
	return alpha*x + (1-alpha)*avg
}

// priceDeviation is the relative distance of price from its baseline.
// A non-positive baseline yields 0.
func priceDeviation(price, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return math.Abs(price-baseline) / baseline
}

// sizeRatio is size over its baseline. Baselines of 1 or less yield 0.
func sizeRatio(size int, baseline float64) float64 {
	if baseline <= 1 {
		return 0
	}
	return float64(size) / baseline
}
