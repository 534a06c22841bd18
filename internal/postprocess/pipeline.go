// Package postprocess implements the PostProcessorPipeline capability
// (spec component G): a priority-ordered chain of plug-ins run after
// assembly, sync ones awaited and able to rewrite content, fire-and-forget
// ones dispatched through a swappable Pool (goroutine-per-call by default,
// or a bounded ants/workerpool/conc pool under load). Every submitted task
// recovers its own panics so one never takes down the pipeline regardless
// of which pool backs it.
package postprocess

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Mode distinguishes a processor awaited inline from one launched in the
// background.
type Mode string

const (
	Sync         Mode = "sync"
	FireAndForget Mode = "fire-and-forget"
)

// Context carries the immutable task facts plus a mutable Extra bag for
// inter-processor data (spec §4.G PostProcessorContext).
type Context struct {
	TaskID       string
	DocHash      string
	Title        string
	ChapterCount int
	IsUltraDeep  bool
	VideoURL     string
	TaskDir      string
	ArticlePath  string
	Extra        map[string]any
}

// Outcome is what a Processor returns (spec §4.G Result(content, message, changes[])).
type Outcome struct {
	Content string
	Message string
	Changes []string
}

// Processor is one plug-in. ShouldRun decides whether Process runs at all;
// Process does the work.
type Processor interface {
	Name() string
	Priority() int
	Mode() Mode
	ShouldRun(ctx context.Context, pctx *Context) bool
	Process(ctx context.Context, pctx *Context, content string) (Outcome, error)
}

// Summary aggregates what happened across a single pipeline run.
type Summary struct {
	Ran     []string
	Skipped []string
	Failed  []string
	Changes []string
}

// Pipeline runs registered Processors in priority order.
type Pipeline struct {
	mu         sync.Mutex
	processors []Processor
	stopOnErr  map[string]bool
	logger     *slog.Logger
	pool       Pool
}

// New builds an empty Pipeline whose fire-and-forget processors run one
// goroutine per call (PoolOfGoroutine). Use SetPool to bound that
// concurrency under an ants/workerpool/conc-backed pool instead.
func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stopOnErr: make(map[string]bool), logger: logger, pool: PoolOfGoroutine()}
}

// SetPool swaps the pool fire-and-forget processors are dispatched through.
func (pl *Pipeline) SetPool(pool Pool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.pool = pool
}

// Register adds p to the pipeline, sorted by ascending priority (spec
// §4.G: "sorts processors by priority ascending at registration time").
// stopOnError, when true, aborts the sync chain if p fails.
func (pl *Pipeline) Register(p Processor, stopOnError bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.processors = append(pl.processors, p)
	pl.stopOnErr[p.Name()] = stopOnError
	sort.SliceStable(pl.processors, func(i, j int) bool {
		return pl.processors[i].Priority() < pl.processors[j].Priority()
	})
}

// Run executes every registered processor against content, in priority
// order, and returns the final content plus an aggregate summary.
func (pl *Pipeline) Run(ctx context.Context, pctx *Context, content string) (string, Summary) {
	pl.mu.Lock()
	processors := append([]Processor(nil), pl.processors...)
	pl.mu.Unlock()

	if pctx.Extra == nil {
		pctx.Extra = make(map[string]any)
	}

	var summary Summary
	current := content

	for _, p := range processors {
		if !p.ShouldRun(ctx, pctx) {
			summary.Skipped = append(summary.Skipped, p.Name())
			continue
		}

		if p.Mode() == FireAndForget {
			pl.launchAsync(ctx, p, pctx, current)
			summary.Ran = append(summary.Ran, p.Name())
			continue
		}

		outcome, err := p.Process(ctx, pctx, current)
		if err != nil {
			pl.logger.Error("post-processor failed",
				slog.String("processor", p.Name()),
				slog.String("task_id", pctx.TaskID),
				slog.String("err", err.Error()),
			)
			summary.Failed = append(summary.Failed, p.Name())
			if pl.stopOnErr[p.Name()] {
				break
			}
			continue
		}
		current = outcome.Content
		summary.Ran = append(summary.Ran, p.Name())
		summary.Changes = append(summary.Changes, outcome.Changes...)
	}

	return current, summary
}

// launchAsync submits p to the pipeline's pool with its own panic recovery,
// per spec §4.G: "a failure is logged but never fails the pipeline; the
// pipeline does not wait." Recovery is wrapped around the task itself,
// rather than left to the pool, because an ants/workerpool/conc-backed pool
// must get the same guarantee regardless of its own panic handling.
func (pl *Pipeline) launchAsync(ctx context.Context, p Processor, pctx *Context, content string) {
	name := p.Name()
	taskID := pctx.TaskID
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				pl.logger.Error("fire-and-forget post-processor panicked",
					slog.String("processor", name),
					slog.String("task_id", taskID),
					slog.Any("panic", r),
				)
			}
		}()
		if _, err := p.Process(ctx, pctx, content); err != nil {
			pl.logger.Error("fire-and-forget post-processor failed",
				slog.String("processor", name),
				slog.String("task_id", taskID),
				slog.String("err", err.Error()),
			)
		}
	}

	pl.mu.Lock()
	pool := pl.pool
	pl.mu.Unlock()

	if err := pool.Submit(task); err != nil {
		pl.logger.Warn("background pool rejected a fire-and-forget processor, falling back to a bare goroutine",
			slog.String("processor", name), slog.String("task_id", taskID))
		go task()
	}
}
