// Package detector keeps per-market EMA statistics and classifies trades as anomalous.
package detector

import (
	"sort"
	"sync"

	"github.com/rewired-gh/polysentinel/internal/models"
)

type Config struct {
	Alpha          float64
	WarmupLimit    int
	PriceThreshold float64
	SizeRatio      float64
	MinSize        int
}

func DefaultConfig() Config {
	return Config{
		Alpha:          0.01,
		WarmupLimit:    500,
		PriceThreshold: 0.5,
		SizeRatio:      5.0,
		MinSize:        100,
	}
}

type track struct {
	priceEMA float64
	sizeEMA  float64
	count    int
}

func (t track) snapshot() models.TrackSnapshot {
	return models.TrackSnapshot{PriceAvg: t.priceEMA, SizeAvg: t.sizeEMA, Count: t.count}
}

// State holds both outcome tracks of one market. Both tracks share mu.
type State struct {
	mu     sync.Mutex
	tracks [models.NumOutcomes]track
}

// Result is the outcome of one processed sample. Tracks are copies taken
// under the state lock after the sample was applied.
type Result struct {
	Kind   models.AlertKind
	Tracks [models.NumOutcomes]models.TrackSnapshot
}

// Snapshot returns a copy of both tracks.
func (s *State) Snapshot() [models.NumOutcomes]models.TrackSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() [models.NumOutcomes]models.TrackSnapshot {
	var out [models.NumOutcomes]models.TrackSnapshot
	for i, t := range s.tracks {
		out[i] = t.snapshot()
	}
	return out
}

func (s *State) process(cfg Config, price float64, size int, outcome models.Outcome) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.tracks[outcome]
	kind := models.AlertNone

	if t.count < cfg.WarmupLimit {
		t.priceEMA = updateMean(t.priceEMA, t.count, price)
		t.sizeEMA = updateMean(t.sizeEMA, t.count, float64(size))
		t.count++
	} else {
		kind = classify(cfg, *t, price, size)
		t.priceEMA = updateEMA(t.priceEMA, price, cfg.Alpha)
		t.sizeEMA = updateEMA(t.sizeEMA, float64(size), cfg.Alpha)
	}

	return Result{Kind: kind, Tracks: s.snapshotLocked()}
}

// classify compares a sample against a warmed-up track baseline.
func classify(cfg Config, t track, price float64, size int) models.AlertKind {
	highPrice := priceDeviation(price, t.priceEMA) > cfg.PriceThreshold
	highSize := sizeRatio(size, t.sizeEMA) > cfg.SizeRatio

	kind := models.AlertNone
	switch {
	case highPrice && highSize:
		kind = models.AlertCombined
	case highPrice:
		kind = models.AlertPriceSpike
	case highSize:
		kind = models.AlertWhaleAccumulation
	}

	// thin trades never alert
	if size < cfg.MinSize {
		kind = models.AlertNone
	}
	return kind
}

// Store maps market titles to their State. Entries are only ever added.
// mu guards the map; each State has its own lock for updates.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	config Config
}

func NewStore(config Config) *Store {
	return &Store{
		states: make(map[string]*State),
		config: config,
	}
}

func (s *Store) getOrCreateState(key string) *State {
	s.mu.RLock()
	state, exists := s.states[key]
	s.mu.RUnlock()
	if exists {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state, exists := s.states[key]; exists {
		return state
	}
	state = &State{}
	s.states[key] = state
	return state
}

// Process applies one sample to the key's outcome track and classifies it.
// Calls for the same key are serialized; other keys proceed in parallel.
// Samples with an outcome outside the binary range are ignored.
func (s *Store) Process(key string, price float64, size int, outcome models.Outcome) Result {
	if !outcome.Valid() {
		return Result{}
	}
	return s.getOrCreateState(key).process(s.config, price, size, outcome)
}

// Lookup returns a copy of the key's tracks.
func (s *Store) Lookup(key string) ([models.NumOutcomes]models.TrackSnapshot, bool) {
	s.mu.RLock()
	state, exists := s.states[key]
	s.mu.RUnlock()
	if !exists {
		return [models.NumOutcomes]models.TrackSnapshot{}, false
	}
	return state.Snapshot(), true
}

// Len returns the number of known keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Snapshot returns the current averages of every key, sorted by title.
func (s *Store) Snapshot() []models.KeySummary {
	s.mu.RLock()
	keys := make([]string, 0, len(s.states))
	states := make(map[string]*State, len(s.states))
	for k, st := range s.states {
		keys = append(keys, k)
		states[k] = st
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	result := make([]models.KeySummary, 0, len(keys))
	for _, k := range keys {
		result = append(result, models.KeySummary{Title: k, Tracks: states[k].Snapshot()})
	}
	return result
}
