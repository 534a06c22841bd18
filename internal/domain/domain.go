// Package domain holds the shared data model (spec §3) that every
// component operates on: tasks, their state, and the outline/chapter plan
// an LLM-produced outline is parsed into. Keeping these types in one
// dependency-free package lets OutlineParser, PromptBuilder, ReportAssembler
// and Workflow all speak the same shapes without importing each other.
package domain

import "time"

// Priority orders queued tasks; within one priority level, tasks are FIFO
// by EnqueueSeq rather than wall clock, so ordering is stable under clock
// skew.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return "UNKNOWN"
	}
}

// TaskKind selects which workflow a worker dispatches a task to.
type TaskKind string

const (
	KindVideo               TaskKind = "video"
	KindDocument            TaskKind = "document"
	KindReprocess           TaskKind = "reprocess"
	KindVisualInterpretation TaskKind = "visual_interpretation"
)

// Mode is the generation depth preset.
type Mode string

const (
	ModeDeep  Mode = "deep"
	ModeUltra Mode = "ultra"
)

// Task is the immutable record created at submission time.
type Task struct {
	TaskID    string
	Kind      TaskKind
	SourceRef string
	Mode      Mode
	Priority  Priority
	CreatedAt time.Time

	// SourceIdentifier paired with Mode is the canonical dedup key (spec §3
	// invariant 6: at most one in-flight task per (source_identifier, mode)
	// pair); SourceIdentifier alone is not unique across modes.
	// SourceRef is whatever the caller originally passed in, kept separately.
	SourceIdentifier string

	// EnqueueSeq breaks ties within one priority level, assigned by the
	// WorkerPool at submit time.
	EnqueueSeq uint64
}

// Status is a TaskState's lifecycle stage. Transitions are monotonic:
// queued -> processing -> (awaiting_confirmation -> processing)* -> (completed | failed).
type Status string

const (
	StatusQueued               Status = "queued"
	StatusProcessing           Status = "processing"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SurfacedError is the structured failure shape published to clients,
// mirroring internal/errors.Structured without importing it here (keeps
// domain dependency-free; task.Manager does the adaptation).
type SurfacedError struct {
	Kind        string
	Message     string
	Suggestions []string
}

// Result is the terminal success record.
type Result struct {
	Title    string
	Filename string
	DocHash  string
}

// TaskState is the mutable, manager-owned record for one task.
type TaskState struct {
	TaskID     string
	Status     Status
	Progress   int
	LogRing    []string
	ResultPath string
	DocHash    string
	Error      *SurfacedError
	Result     *Result

	PreAnalysisResult map[string]any
}

// Subsection is one named subsection within a chapter's guidance.
type Subsection struct {
	Subtitle  string
	KeyPoints []string
}

// ChapterPlan is one chapter's metadata, as parsed from the outline JSON.
type ChapterPlan struct {
	Index                int
	Title                string
	Subsections          []Subsection
	MustInclude          []string
	MustExclude          []string
	OpeningHook          string
	ClosingTransition    string
	PrevChapterLink      string
	NextChapterLink      string
	Rationale            string
	ContentGuidance      string
	DepthRecommendation  string
	EstimatedSourceLength int
	SourceCoveragePercent float64
}

// OutlinePlan is the parsed result of the outline stage.
type OutlinePlan struct {
	TitleCN            string
	TitleEN            string
	Introduction       string
	Chapters           []ChapterPlan
	TotalEstimatedWords int
	// ContentType and ContentTypeRationale are the best-effort
	// extract_content_type_info fields (spec §4.D); both may be empty.
	ContentType          string
	ContentTypeRationale string
}

// Document is the on-disk front-matter shape (spec §3, §6).
type Document struct {
	TitleCN          string
	TitleEN          string
	UploadDate       string
	CreatedAt        time.Time
	ChapterCount     int
	Version          int
	Hash             string
	VideoURL         string
	ContentIdentifier string
	IsReinvent       bool
	CourseCode       string
	Level            string
	IsUltraDeep      bool
	BaseVersion      int
	Proofread        bool
}
