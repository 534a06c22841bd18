// Package orchestrator wires config, task.Manager, pool.WorkerPool, store,
// and workflow into the entry points SPEC_FULL.md §6 names as the surface a
// transport adapter (HTTP/WebSocket layer, intentionally absent from this
// module) would call: SubmitVideo, SubmitDocument, ConfirmPreAnalysis,
// Subscribe, and Snapshot.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/reinvent-insight/orchestrator/internal/config"
	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	"github.com/reinvent-insight/orchestrator/internal/pool"
	"github.com/reinvent-insight/orchestrator/internal/store"
	"github.com/reinvent-insight/orchestrator/internal/task"
	"github.com/reinvent-insight/orchestrator/internal/workflow"
)

// SubmissionStatus is the outcome of a Submit call (spec §6 submit_video /
// submit_document).
type SubmissionStatus string

const (
	SubmissionCreated    SubmissionStatus = "created"
	SubmissionExists     SubmissionStatus = "exists"
	SubmissionInProgress SubmissionStatus = "in_progress"
)

// SubmitResult mirrors spec §6's {task_id, status, doc_hash?, filename?}.
type SubmitResult struct {
	TaskID   string
	Status   SubmissionStatus
	DocHash  string
	Filename string
}

// Orchestrator is the single place that owns the task table, the bounded
// worker pool, and the document store, and knows how to submit, confirm,
// subscribe, and snapshot against them.
type Orchestrator struct {
	cfg    *config.Config
	tasks  *task.Manager
	pool   *pool.WorkerPool
	store  *store.Registry
	logger *slog.Logger

	// submitMu is held from the dedup check through the enqueue.
	submitMu sync.Mutex
}

// Deps bundles what New needs, plus the Handlers a caller wants registered
// for each task kind it intends to submit (normally one workflow.Workflow
// per domain.TaskKind the deployment supports).
type Deps struct {
	Config   *config.Config
	Tasks    *task.Manager
	Pool     *pool.WorkerPool
	Store    *store.Registry
	Handlers map[domain.TaskKind]pool.Handler
	Logger   *slog.Logger
}

// New builds an Orchestrator and registers deps.Handlers on deps.Pool. The
// caller is still responsible for calling Pool.Start.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	for kind, h := range deps.Handlers {
		deps.Pool.Register(kind, h)
	}
	return &Orchestrator{
		cfg:    deps.Config,
		tasks:  deps.Tasks,
		pool:   deps.Pool,
		store:  deps.Store,
		logger: deps.Logger,
	}
}

// NewFromWorkflow is a convenience constructor that registers one Workflow
// against every domain.TaskKind a deployment normally drives through it
// (video, document, reprocess); visual_interpretation is explicitly out of
// scope (spec §1 non-goals) and is left unregistered.
func NewFromWorkflow(deps Deps, wf *workflow.Workflow) *Orchestrator {
	deps.Handlers = map[domain.TaskKind]pool.Handler{
		domain.KindDocument:  wf.Handler,
		domain.KindVideo:     wf.Handler,
		domain.KindReprocess: wf.Handler,
	}
	return New(deps)
}

// dedupeOrEnqueue is the single authoritative check spec §9 Open Question
// / REDESIGN FLAGS resolution (recorded in DESIGN.md) demands: one lock-held
// pass over the union of {store, queued, processing}, rather than scanning
// several data structures separately and racing between them. submitMu is
// held from the check through pool.Submit, so two identical submissions
// cannot both pass the check.
func (o *Orchestrator) dedupeOrEnqueue(kind domain.TaskKind, sourceIdentifier, sourceRef string, priority domain.Priority, mode domain.Mode, force bool) (SubmitResult, error) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	docHash := store.GenerateDocHash(sourceIdentifier)

	if !force {
		if existing, ok := o.pool.InProcessingOrQueue(sourceIdentifier, mode); ok {
			return SubmitResult{TaskID: existing.TaskID, Status: SubmissionInProgress, DocHash: docHash}, nil
		}
		if versions := o.store.GetVersions(docHash); len(versions) > 0 {
			filename, _ := o.store.GetDefault(docHash)
			return SubmitResult{Status: SubmissionExists, DocHash: docHash, Filename: filename}, nil
		}
	}

	taskID := uuid.New().String()
	t := domain.Task{
		TaskID:           taskID,
		Kind:             kind,
		SourceRef:        sourceRef,
		SourceIdentifier: sourceIdentifier,
		Mode:             mode,
		Priority:         priority,
	}
	o.tasks.Create(taskID)
	if err := o.pool.Submit(t); err != nil {
		_ = o.tasks.SetError(taskID, orcherrors.New(orcherrors.KindQueueFull, "task queue is full"))
		return SubmitResult{}, err
	}
	return SubmitResult{TaskID: taskID, Status: SubmissionCreated, DocHash: docHash}, nil
}

// SubmitVideo implements spec §6 submit_video. url is normalized before
// dedup so query-string noise never defeats it (source.go); an
// unrecognizable URL fails fast with KindInvalidInput.
func (o *Orchestrator) SubmitVideo(url string, priority domain.Priority, mode domain.Mode, force bool) (SubmitResult, error) {
	identifier, ok := normalizeVideoURL(url)
	if !ok {
		return SubmitResult{}, orcherrors.New(orcherrors.KindInvalidInput,
			fmt.Sprintf("could not extract a video id from %q", url))
	}
	return o.dedupeOrEnqueue(domain.KindVideo, identifier, url, priority, mode, force)
}

// SubmitDocument implements spec §6 submit_document. The document type is
// inferred from originalFilename's extension, which also selects the text
// vs. binary size cap (spec §6 configuration: "separate caps for text vs.
// binary formats").
func (o *Orchestrator) SubmitDocument(content []byte, originalFilename string, priority domain.Priority, mode domain.Mode) (SubmitResult, error) {
	dt := classifyDocument(originalFilename)
	sizeCap := o.cfg.MaxBinaryFileSize
	if dt.isText() {
		sizeCap = o.cfg.MaxTextFileSize
	}
	if int64(len(content)) > sizeCap {
		return SubmitResult{}, orcherrors.New(orcherrors.KindInvalidInput,
			fmt.Sprintf("%s file exceeds the %d byte size cap", dt, sizeCap))
	}

	identifier := documentSourceIdentifier(dt, content)
	// Documents have no meaningful (source_identifier, mode) force override
	// semantics distinct from videos (spec §6 submit_document does not take
	// `force`); content-hash identity already makes a duplicate upload a
	// true no-op re-use of the prior result.
	return o.dedupeOrEnqueue(domain.KindDocument, identifier, originalFilename, priority, mode, false)
}

// ConfirmPreAnalysis implements spec §6 confirm_pre_analysis.
func (o *Orchestrator) ConfirmPreAnalysis(taskID string, overrides map[string]any) error {
	return o.tasks.Confirm(taskID, overrides)
}

// Subscribe streams every event published for taskID, replaying full
// history first (spec §5 ordering guarantees), so a client that connects
// late or reconnects after a disconnect never misses progress.
func (o *Orchestrator) Subscribe(ctx context.Context, taskID string) (<-chan task.Event, error) {
	return o.tasks.Subscribe(ctx, taskID)
}

// Snapshot returns a one-shot copy of a task's current state.
func (o *Orchestrator) Snapshot(taskID string) (domain.TaskState, bool) {
	return o.tasks.Snapshot(taskID)
}

// Stats exposes the worker pool's spec §4.I stats(), for an operator
// surface built on top of this package.
func (o *Orchestrator) Stats() pool.Stats {
	return o.pool.Stats()
}

// List exposes the worker pool's spec §4.I list().
func (o *Orchestrator) List() []pool.ListEntry {
	return o.pool.List()
}
