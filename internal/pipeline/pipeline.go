// Package pipeline wires the decode and analysis stages around two blocking queues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/polysentinel/internal/decoder"
	"github.com/rewired-gh/polysentinel/internal/detector"
	"github.com/rewired-gh/polysentinel/internal/logger"
	"github.com/rewired-gh/polysentinel/internal/metrics"
	"github.com/rewired-gh/polysentinel/internal/models"
	"github.com/rewired-gh/polysentinel/internal/queue"
	"github.com/rewired-gh/polysentinel/internal/sink"
)

var (
	ErrInsufficientParallelism = errors.New("insufficient parallelism")
	ErrAlreadyStarted          = errors.New("pipeline already started")
)

type Config struct {
	DecodeWorkers int
	// AnalysisWorkers of 0 uses the parallelism left after decode workers.
	AnalysisWorkers int
	MinParallelism  int
	// Parallelism of 0 uses runtime.GOMAXPROCS.
	Parallelism       int
	HeartbeatInterval time.Duration
	EmitSummary       bool
}

func DefaultConfig() Config {
	return Config{
		DecodeWorkers:     2,
		MinParallelism:    4,
		HeartbeatInterval: time.Second,
		EmitSummary:       true,
	}
}

// Pipeline owns the queues, the worker pool and the shutdown sequence.
type Pipeline struct {
	config  Config
	store   *detector.Store
	sink    sink.Sink
	metrics *metrics.Metrics

	decodeQueue   *queue.Queue[string]
	analysisQueue *queue.Queue[models.Record]

	started atomic.Bool
	running atomic.Bool

	decoders   errgroup.Group
	analysers  errgroup.Group
	background errgroup.Group

	stopBackground context.CancelFunc
	startedAt      time.Time
	done           chan struct{}
}

// New creates a pipeline. m may be nil.
func New(config Config, store *detector.Store, s sink.Sink, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		config:        config,
		store:         store,
		sink:          s,
		metrics:       m,
		decodeQueue:   queue.New[string](),
		analysisQueue: queue.New[models.Record](),
		done:          make(chan struct{}),
	}
}

// workerCounts resolves decode and analysis worker counts against the
// available parallelism.
func (p *Pipeline) workerCounts() (int, int, error) {
	available := p.config.Parallelism
	if available <= 0 {
		available = runtime.GOMAXPROCS(0)
	}

	required := p.config.MinParallelism
	if required < p.config.DecodeWorkers+1 {
		required = p.config.DecodeWorkers + 1
	}
	if available < required {
		return 0, 0, fmt.Errorf("%w: minimum is %d and available is %d", ErrInsufficientParallelism, required, available)
	}

	analysis := p.config.AnalysisWorkers
	if analysis <= 0 {
		analysis = available - p.config.DecodeWorkers
	}
	return p.config.DecodeWorkers, analysis, nil
}

// Start launches the worker pool and the heartbeat. It fails without
// starting anything when parallelism is insufficient.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	decodeWorkers, analysisWorkers, err := p.workerCounts()
	if err != nil {
		p.started.Store(false)
		return err
	}

	p.startedAt = time.Now()
	p.running.Store(true)

	workerGroup{name: "decode", count: decodeWorkers, task: p.decodeWorker}.start(ctx, &p.decoders)
	workerGroup{name: "analysis", count: analysisWorkers, task: p.analysisWorker}.start(ctx, &p.analysers)

	bgCtx, cancel := context.WithCancel(ctx)
	p.stopBackground = cancel
	p.background.Go(func() error {
		p.heartbeat(bgCtx)
		return nil
	})

	logger.Info("Pipeline started (decode workers: %d, analysis workers: %d)", decodeWorkers, analysisWorkers)
	return nil
}

// Running reports whether the pipeline accepts input.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Done is closed once Shutdown has finished tearing down.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Submit queues a raw line for decoding. Blank lines are skipped.
// It returns false when the line was refused because the pipeline is not running.
func (p *Pipeline) Submit(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return true
	}
	if !p.running.Load() || !p.decodeQueue.Push(line) {
		p.metrics.LineDropped()
		return false
	}
	p.metrics.LineReceived()
	return true
}

// Reject records a line the reader dropped before submitting it.
func (p *Pipeline) Reject(reason string) {
	p.metrics.Rejected(reason)
}

// Shutdown stops intake, drains both stages, joins every worker and emits the
// summary. Only the first call does any work; later calls return at once.
func (p *Pipeline) Shutdown() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	logger.Info("Shutting down pipeline...")

	// drain decode first so nothing it produces is refused by a stopped analysis queue
	p.decodeQueue.Stop()
	_ = p.decoders.Wait()
	p.analysisQueue.Stop()
	_ = p.analysers.Wait()

	p.stopBackground()
	_ = p.background.Wait()
	logger.Info("All workers joined")

	if p.config.EmitSummary {
		p.sink.Summary(p.store.Snapshot())
	}
	close(p.done)
}

func (p *Pipeline) decodeWorker(_ context.Context, _ int) {
	for {
		line, ok := p.decodeQueue.Pop()
		if !ok {
			return
		}
		p.decodeLine(line)
	}
}

func (p *Pipeline) decodeLine(line string) {
	rec, err := decoder.Decode(line)
	if err != nil {
		reason := decoder.ReasonInvalid
		var rej *decoder.RejectError
		if errors.As(err, &rej) {
			reason = rej.Reason()
		}
		p.metrics.Rejected(reason)
		logger.Warn("Dropping line: %v", err)
		return
	}
	p.metrics.Decoded()
	p.analysisQueue.Push(rec)
}

func (p *Pipeline) analysisWorker(_ context.Context, _ int) {
	for {
		rec, ok := p.analysisQueue.Pop()
		if !ok {
			return
		}
		p.analyse(rec)
	}
}

func (p *Pipeline) analyse(rec models.Record) {
	res := p.store.Process(rec.Title, rec.Price, rec.Size, rec.OutcomeValue)
	p.metrics.Processed()
	if res.Kind == models.AlertNone {
		return
	}

	baseline := res.Tracks[rec.OutcomeValue.Opposite()]
	event := models.AlertEvent{
		ID:           uuid.NewString(),
		Kind:         res.Kind,
		Title:        rec.Title,
		Side:         rec.Side,
		Outcome:      rec.Outcome,
		OutcomeValue: rec.OutcomeValue,
		Price:        rec.Price,
		AvgPrice:     baseline.PriceAvg,
		Size:         rec.Size,
		AvgSize:      baseline.SizeAvg,
		Timestamp:    rec.Timestamp,
		DetectedAt:   time.Now(),
	}
	p.metrics.Alert(res.Kind.String())
	p.sink.Alert(event)
}

// heartbeat emits elapsed whole seconds on every tick and refreshes gauges.
func (p *Pipeline) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.metrics.SetQueueDepth("decode", p.decodeQueue.Len())
			p.metrics.SetQueueDepth("analysis", p.analysisQueue.Len())
			p.metrics.SetTrackedMarkets(p.store.Len())
			p.sink.Heartbeat(int(time.Since(p.startedAt) / time.Second))
		}
	}
}

// Status summarizes the pipeline in one line.
func (p *Pipeline) Status() string {
	state := "stopped"
	uptime := time.Duration(0)
	if p.running.Load() {
		state = "running"
		uptime = time.Since(p.startedAt).Truncate(time.Second)
	}
	return fmt.Sprintf("%s %v, %d markets tracked, queues: decode %d / analysis %d",
		state, uptime, p.store.Len(), p.decodeQueue.Len(), p.analysisQueue.Len())
}

// MarketStatus describes both outcome tracks of one market.
func (p *Pipeline) MarketStatus(title string) string {
	tracks, ok := p.store.Lookup(title)
	if !ok {
		return fmt.Sprintf("%s: not tracked", title)
	}
	var b strings.Builder
	b.WriteString(title)
	for i, t := range tracks {
		fmt.Fprintf(&b, "\noutcome %d: price %.3f, size %.1f, %d samples", i, t.PriceAvg, t.SizeAvg, t.Count)
	}
	return b.String()
}
