package shipping

import "math"

// Dimensions describes the parcel a cart ships in, inches and pounds.
type Dimensions struct {
	Length   float64 `json:"length"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	WeightLb float64 `json:"weight"`
}

type boxTier struct {
	maxItems              int
	length, width, height float64
}

// Box tiers for the bakery's stock mailers, smallest first. Item counts past
// the largest tier still ship in the largest box.
var boxTiers = []boxTier{
	{maxItems: 2, length: 6, width: 6, height: 4},
	{maxItems: 6, length: 8, width: 8, height: 4},
	{maxItems: 12, length: 10, width: 10, height: 6},
	{maxItems: 24, length: 12, width: 12, height: 8},
}

// CalculateDimensions picks the smallest stock box that fits itemCount items
// and estimates the packed weight at half a pound per item, floored at the
// carrier's 0.1 lb minimum and rounded to two decimals.
func CalculateDimensions(itemCount int) Dimensions {
	tier := boxTiers[len(boxTiers)-1]
	for _, t := range boxTiers {
		if itemCount <= t.maxItems {
			tier = t
			break
		}
	}
	weight := float64(itemCount) * 0.5
	if weight < 0.1 {
		weight = 0.1
	}
	weight = math.Round(weight*100) / 100
	return Dimensions{
		Length:   tier.length,
		Width:    tier.width,
		Height:   tier.height,
		WeightLb: weight,
	}
}
