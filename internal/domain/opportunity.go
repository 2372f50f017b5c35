package domain

import (
	"math"
	"time"
)

// Opportunity is a fully-specified mispricing detected against one contract.
// It is created by the detector, consumed once by the execution path, and
// independently expired by the opportunity book.
type Opportunity struct {
	Contract Contract
	Sample   PriceSample // reference price the detection was based on

	Side            Side
	VenuePrice      float64 // quoted price of the chosen side
	TrueProbability float64 // model estimate, in (0,1)
	EdgePercent     float64
	ExpectedProfit  float64
	RecommendedSize float64 // currency units
	ExpiresAt       time.Time
	Confidence      float64 // in (0,1)
}

// EdgePercent is the relative gap between the estimated true probability and
// the quoted venue price, as a percent of the venue price.
func EdgePercent(trueProb, venuePrice float64) float64 {
	return (trueProb - venuePrice) / venuePrice * 100
}

// Score ranks opportunity quality: edge and confidence scale linearly, size
// contributes logarithmically so large positions do not dominate.
func (o Opportunity) Score() float64 {
	return o.EdgePercent * o.Confidence * math.Log(o.RecommendedSize+1)
}

// Expired reports whether the opportunity is stale at the given instant.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
