package models

import (
	"time"
)

type AlertKind int

const (
	AlertNone AlertKind = iota
	AlertPriceSpike
	AlertWhaleAccumulation
	AlertCombined
)

// String returns the display name of the alert kind.
func (k AlertKind) String() string {
	switch k {
	case AlertPriceSpike:
		return "Price Spike"
	case AlertWhaleAccumulation:
		return "Whale Accumulation"
	case AlertCombined:
		return "Combined Alert"
	default:
		return "None"
	}
}

// TrackSnapshot is a copy of one outcome track's running statistics.
type TrackSnapshot struct {
	PriceAvg float64
	SizeAvg  float64
	Count    int
}

type AlertEvent struct {
	ID    string
	Kind  AlertKind
	Title string
	Side  string

	Outcome      string
	OutcomeValue Outcome

	Price    float64
	AvgPrice float64
	Size     int
	AvgSize  float64

	Timestamp  string
	DetectedAt time.Time
}

// KeySummary holds the final averages of one market.
type KeySummary struct {
	Title  string
	Tracks [NumOutcomes]TrackSnapshot
}
