// Package models defines the core domain entities: trade records, alerts, and per-key summaries.
package models

import (
	"errors"
	"fmt"
	"strconv"
)

// Outcome identifies one side of a binary market.
type Outcome int

const (
	OutcomeFirst Outcome = iota
	OutcomeSecond
)

// NumOutcomes is the number of tracks kept per market.
const NumOutcomes = 2

// Valid reports whether o is one of the two binary sides.
func (o Outcome) Valid() bool {
	return o == OutcomeFirst || o == OutcomeSecond
}

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeFirst {
		return OutcomeSecond
	}
	return OutcomeFirst
}

func (o Outcome) String() string {
	return strconv.Itoa(int(o))
}

// Record is a single decoded trade. Title is the market key.
type Record struct {
	Title        string
	Name         string
	Outcome      string
	OutcomeValue Outcome
	Side         string
	Size         int
	Price        float64
	Timestamp    string
}

// Validate checks record field constraints.
func (r Record) Validate() error {
	if r.Title == "" {
		return errors.New("title must not be empty")
	}
	if !r.OutcomeValue.Valid() {
		return fmt.Errorf("outcome value must be 0 or 1, got %d", int(r.OutcomeValue))
	}
	if r.Size < 0 {
		return errors.New("size must not be negative")
	}
	return nil
}
