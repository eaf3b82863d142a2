// Package sink delivers pipeline output: alerts, heartbeats and the shutdown summary.
package sink

import (
	"github.com/rewired-gh/polysentinel/internal/logger"
	"github.com/rewired-gh/polysentinel/internal/models"
)

// Sink receives pipeline events. Alert is called concurrently from analysis workers.
type Sink interface {
	Alert(event models.AlertEvent)
	Heartbeat(elapsedSeconds int)
	Summary(summaries []models.KeySummary)
}

// Log writes every event through the leveled logger.
type Log struct{}

func (Log) Alert(e models.AlertEvent) {
	logger.Warn("[%s] :: %s | side=%s outcome=%s price=%.4f (avg %.4f) size=%d (avg %.2f) time=%s id=%s",
		e.Kind, e.Title, e.Side, e.Outcome, e.Price, e.AvgPrice, e.Size, e.AvgSize, e.Timestamp, e.ID)
}

func (Log) Heartbeat(elapsedSeconds int) {
	logger.Info("Run time: %ds", elapsedSeconds)
}

func (Log) Summary(summaries []models.KeySummary) {
	logger.Info("Final averages for %d markets", len(summaries))
	for _, s := range summaries {
		logger.Info("%s: outcome 0 avg %.4f, outcome 1 avg %.4f",
			s.Title,
			s.Tracks[models.OutcomeFirst].PriceAvg,
			s.Tracks[models.OutcomeSecond].PriceAvg)
	}
}

type multi []Sink

// Multi fans every event out to sinks in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Alert(e models.AlertEvent) {
	for _, s := range m {
		s.Alert(e)
	}
}

func (m multi) Heartbeat(elapsedSeconds int) {
	for _, s := range m {
		s.Heartbeat(elapsedSeconds)
	}
}

func (m multi) Summary(summaries []models.KeySummary) {
	for _, s := range m {
		s.Summary(summaries)
	}
}
