// Package workflow implements the Workflow capability (spec component F):
// the per-task template method that drives one document from raw source
// content to a finished, post-processed Markdown report: outline ->
// parallel or sequential chapters -> conclusion -> assembly ->
// post-processing. The outer template method is plain Go control flow (the
// pre-analysis pause in the middle does not fit a linear chain); the
// chapter stage's sequential-vs-concurrent dispatch uses a flow.Branch, and
// concurrent chapter generation itself is a flow.Parallel fan-out.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reinvent-insight/orchestrator/flow"
	"github.com/reinvent-insight/orchestrator/internal/config"
	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	"github.com/reinvent-insight/orchestrator/internal/llmclient"
	"github.com/reinvent-insight/orchestrator/internal/outline"
	"github.com/reinvent-insight/orchestrator/internal/postprocess"
	"github.com/reinvent-insight/orchestrator/internal/promptbuilder"
	"github.com/reinvent-insight/orchestrator/internal/report"
	"github.com/reinvent-insight/orchestrator/internal/store"
	"github.com/reinvent-insight/orchestrator/internal/task"
)

// ContentLoader resolves a task's source content (and, for attachment-bearing
// tasks, the attachment to send alongside the outline prompt). Source
// acquisition is out of this module's scope (spec §1 non-goals); the loader
// is the seam a caller wires a real fetcher into.
type ContentLoader func(ctx context.Context, t domain.Task) (content string, attachment *llmclient.Attachment, err error)

// PreAnalyzer, if set, runs right after the outline stage and decides
// whether the task should pause at awaiting_confirmation (spec §4.F
// "pre-analysis / confirmation variant"). Returning ok=false skips the pause
// entirely.
type PreAnalyzer func(plan *domain.OutlinePlan, t domain.Task) (data map[string]any, ok bool)

// Deps bundles every collaborator the Workflow drives.
type Deps struct {
	LLM     *llmclient.Client
	Config  *config.Config
	Tasks   *task.Manager
	Store   *store.Registry
	Post    *postprocess.Pipeline
	Loader  ContentLoader
	PreScan PreAnalyzer
	Logger  *slog.Logger
}

// Workflow drives one task through outline, chapters, conclusion, assembly,
// and post-processing.
type Workflow struct {
	deps Deps
}

// New builds a Workflow. Deps.Logger defaults to slog.Default().
func New(deps Deps) *Workflow {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Workflow{deps: deps}
}

// Handler adapts Run to the pool.Handler signature the WorkerPool dispatches
// against; it is the only code path that must guarantee a task never ends
// up stuck in "processing" (spec §4.F, §7).
func (w *Workflow) Handler(ctx context.Context, t domain.Task) {
	w.Run(ctx, t)
}

// taskScratchDir returns tasks/<YYYYMMDD>/<HHMM>-<short_task_id>-<kind>/
// (spec §6 filesystem layout).
func taskScratchDir(tasksDir string, t domain.Task) string {
	when := t.CreatedAt
	if when.IsZero() {
		when = time.Now()
	}
	shortID := t.TaskID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	dirName := fmt.Sprintf("%s-%s-%s", when.Format("1504"), shortID, t.Kind)
	return filepath.Join(tasksDir, when.Format("20060102"), dirName)
}

// Run executes the full template method for t, recovering from any panic so
// a bug in one stage still surfaces as a failed task rather than hanging it
// in "processing" forever (spec §4.F: "never leaves a task stuck in
// processing").
func (w *Workflow) Run(ctx context.Context, t domain.Task) {
	defer func() {
		if r := recover(); r != nil {
			_ = w.deps.Tasks.SetError(t.TaskID, orcherrors.New(orcherrors.KindUnknown,
				fmt.Sprintf("workflow panicked: %v", r)))
		}
	}()

	if err := w.run(ctx, t); err != nil {
		var s *orcherrors.Structured
		if !orcherrors.As(err, &s) {
			s = orcherrors.Wrap(orcherrors.KindUnknown, "workflow failed", err)
		}
		_ = w.deps.Tasks.SetError(t.TaskID, s)
	}
}

func (w *Workflow) run(ctx context.Context, t domain.Task) error {
	taskDir := taskScratchDir(w.deps.Config.TasksDir, t)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return orcherrors.Wrap(orcherrors.KindConfigError, "could not create task scratch directory", err)
	}

	content, attachment, err := w.deps.Loader(ctx, t)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindSourceUnavailable, "could not load source content", err)
	}

	plan, err := w.runOutline(ctx, t, taskDir, content, attachment)
	if err != nil {
		return err
	}

	if w.deps.PreScan != nil {
		if data, ok := w.deps.PreScan(plan, t); ok {
			if err := w.deps.Tasks.PreAnalysisReady(t.TaskID, data); err != nil {
				return orcherrors.Wrap(orcherrors.KindUnknown, "could not publish pre-analysis result", err)
			}
			merged, err := w.deps.Tasks.AwaitConfirmation(ctx, t.TaskID)
			if err != nil {
				return orcherrors.Wrap(orcherrors.KindTimeout, "confirmation was never received", err)
			}
			applyConfirmationOverrides(plan, merged)
		}
	}

	chapters, err := w.runChapters(ctx, t, taskDir, content, plan)
	if err != nil {
		return err
	}

	conclusionText, err := w.runConclusion(ctx, t, taskDir, content, chapters)
	if err != nil {
		return err
	}

	docHash, filename, err := w.runAssembly(ctx, t, taskDir, plan, chapters, conclusionText)
	if err != nil {
		return err
	}

	title := firstNonEmpty(plan.TitleEN, plan.TitleCN)
	w.runPostProcess(ctx, t, taskDir, filename, docHash, title, len(plan.Chapters))

	return w.deps.Tasks.SendResult(t.TaskID, domain.Result{
		Title:    title,
		Filename: filename,
		DocHash:  docHash,
	})
}

// applyConfirmationOverrides shallow-merges string-valued overrides onto
// the fields a confirmation step is allowed to adjust (title and
// introduction only; chapter structure is fixed by the time confirmation
// happens).
func applyConfirmationOverrides(plan *domain.OutlinePlan, overrides map[string]any) {
	if v, ok := overrides["title_cn"].(string); ok && v != "" {
		plan.TitleCN = v
	}
	if v, ok := overrides["title_en"].(string); ok && v != "" {
		plan.TitleEN = v
	}
	if v, ok := overrides["introduction"].(string); ok {
		plan.Introduction = v
	}
}

func thinkingFor(level string) llmclient.ThinkingLevel {
	switch level {
	case "high":
		return llmclient.ThinkingHigh
	case "low":
		return llmclient.ThinkingLow
	default:
		return llmclient.ThinkingMedium
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// runOutline is progress 5 -> 25 (spec §4.F stage 1).
func (w *Workflow) runOutline(ctx context.Context, t domain.Task, taskDir, content string, attachment *llmclient.Attachment) (*domain.OutlinePlan, error) {
	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 5, "building outline")
	profile := w.deps.Config.ModeProfile(string(t.Mode))

	plan, err := w.generateOutline(ctx, content, t.Mode, profile, attachment)
	if err != nil {
		return nil, err
	}

	if t.Mode == domain.ModeUltra && outline.ChapterCount(plan) > 20 {
		w.deps.Logger.Warn("ultra outline exceeded 20 chapters, regenerating once",
			slog.String("task_id", t.TaskID), slog.Int("chapter_count", outline.ChapterCount(plan)))
		plan, err = w.generateOutline(ctx, content, t.Mode, profile, attachment)
		if err != nil {
			return nil, err
		}
		if outline.ChapterCount(plan) > 20 {
			return nil, orcherrors.New(orcherrors.KindChapterCountExceeded,
				fmt.Sprintf("ultra outline still has %d chapters after one regeneration", outline.ChapterCount(plan))).
				WithSuggestions("shorten the source material or switch to deep mode")
		}
	}

	if err := os.WriteFile(filepath.Join(taskDir, "outline.md"), []byte(renderOutlineMarkdown(plan)), 0o644); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindConfigError, "could not write outline.md", err)
	}

	contentTypeLine := ""
	if ct, rationale := outline.ExtractContentTypeInfo(plan); ct != "" {
		contentTypeLine = fmt.Sprintf(", content type: %s (%s)", ct, rationale)
	}
	_ = w.deps.Tasks.SendLog(t.TaskID, fmt.Sprintf("outline ready: %q, %d chapters%s",
		plan.TitleCN, len(plan.Chapters), contentTypeLine))
	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 25, "outline complete")

	return plan, nil
}

func (w *Workflow) generateOutline(ctx context.Context, content string, mode domain.Mode, profile config.ModeProfile, attachment *llmclient.Attachment) (*domain.OutlinePlan, error) {
	prompt, err := promptbuilder.BuildOutlinePrompt(content, mode, profile)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindUnknown, "could not build outline prompt", err)
	}
	raw, err := w.deps.LLM.Generate(ctx, llmclient.Request{
		Prompt:     prompt,
		JSONMode:   true,
		Thinking:   thinkingFor(profile.OutlineThinking),
		Attachment: attachment,
	})
	if err != nil {
		return nil, err
	}
	return outline.Parse(raw)
}

func renderOutlineMarkdown(plan *domain.OutlinePlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", plan.TitleCN)
	if plan.Introduction != "" {
		fmt.Fprintf(&b, "%s\n\n", plan.Introduction)
	}
	for _, c := range plan.Chapters {
		fmt.Fprintf(&b, "%d. %s\n", c.Index, c.Title)
	}
	return b.String()
}

// chapterJob is one chapter-stage unit of work; Index drives both ordering
// after a concurrent fan-out and the concurrent_delay stagger.
type chapterJob struct {
	index           int
	plan            domain.ChapterPlan
	fullContent     string
	fullOutline     string
	previousChapter string
	previousSummary []string
}

type chapterResult struct {
	index int
	text  string
}

// chaptersInput is the single argument a flow.Branch needs to dispatch the
// chapter stage to its sequential or concurrent implementation based on
// config.GenerationMode (spec §4.F "sequential vs. concurrent mode").
type chaptersInput struct {
	task        domain.Task
	taskDir     string
	content     string
	fullOutline string
	plan        *domain.OutlinePlan
}

// runChapters is progress 25 -> 75 (spec §4.F stage 2).
func (w *Workflow) runChapters(ctx context.Context, t domain.Task, taskDir, content string, plan *domain.OutlinePlan) ([]string, error) {
	fullOutline := renderOutlineMarkdown(plan)
	total := len(plan.Chapters)
	if total == 0 {
		return nil, orcherrors.New(orcherrors.KindOutlineParseError, "outline has no chapters to expand")
	}

	branch := flow.NewBranch[chaptersInput, []chapterResult](func(in chaptersInput) string {
		return string(w.deps.Config.GenerationMode)
	})
	branch.Route(string(config.GenerationSequential), flow.Processor[chaptersInput, []chapterResult](
		func(ctx context.Context, in chaptersInput) ([]chapterResult, error) {
			return w.runChaptersSequential(ctx, in.task, in.taskDir, in.content, in.fullOutline, in.plan)
		}))
	branch.Default(flow.Processor[chaptersInput, []chapterResult](
		func(ctx context.Context, in chaptersInput) ([]chapterResult, error) {
			return w.runChaptersConcurrent(ctx, in.task, in.taskDir, in.content, in.fullOutline, in.plan)
		}))

	results, err := branch.Run(ctx, chaptersInput{task: t, taskDir: taskDir, content: content, fullOutline: fullOutline, plan: plan})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.text
	}

	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 75, fmt.Sprintf("%d/%d chapters complete", total, total))
	return texts, nil
}

func (w *Workflow) runChaptersConcurrent(ctx context.Context, t domain.Task, taskDir, content, fullOutline string, plan *domain.OutlinePlan) ([]chapterResult, error) {
	profile := w.deps.Config.ModeProfile(string(t.Mode))
	jobs := make([]chapterJob, len(plan.Chapters))
	for i, c := range plan.Chapters {
		// Concurrent mode forbids passing previous-chapter context (spec
		// §9 open question, resolved in DESIGN.md): PreviousChapter and
		// PreviousSummaries stay empty here.
		jobs[i] = chapterJob{index: i, plan: c, fullContent: content, fullOutline: fullOutline}
	}

	delay := w.deps.Config.ConcurrentDelay
	node := flow.Processor[chapterJob, chapterResult](func(ctx context.Context, job chapterJob) (chapterResult, error) {
		if delay > 0 {
			select {
			case <-time.After(time.Duration(job.index) * delay):
			case <-ctx.Done():
				return chapterResult{}, ctx.Err()
			}
		}
		text, err := w.generateChapter(ctx, job, profile)
		if err != nil {
			return chapterResult{}, err
		}
		if err := writeChapterFile(taskDir, job.index+1, text); err != nil {
			return chapterResult{}, err
		}
		_ = w.deps.Tasks.SendLog(t.TaskID, fmt.Sprintf("chapter %d/%d generated", job.index+1, len(plan.Chapters)))
		return chapterResult{index: job.index, text: text}, nil
	})

	par := flow.NewParallel[chapterJob, chapterResult, []chapterResult](node, func(items []flow.ItemResult[chapterResult]) ([]chapterResult, error) {
		out := make([]chapterResult, len(items))
		for i, it := range items {
			out[i] = it.Value
		}
		return out, nil
	})

	results, err := par.Run(ctx, jobs)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindLLMFatal, "one or more chapters exhausted their retries", err)
	}
	return results, nil
}

func (w *Workflow) runChaptersSequential(ctx context.Context, t domain.Task, taskDir, content, fullOutline string, plan *domain.OutlinePlan) ([]chapterResult, error) {
	profile := w.deps.Config.ModeProfile(string(t.Mode))
	var summaries []string
	var previousChapter string
	results := make([]chapterResult, 0, len(plan.Chapters))

	for i, c := range plan.Chapters {
		job := chapterJob{
			index:           i,
			plan:            c,
			fullContent:     content,
			fullOutline:     fullOutline,
			previousChapter: previousChapter,
			previousSummary: append([]string(nil), summaries...),
		}
		text, err := w.generateChapter(ctx, job, profile)
		if err != nil {
			return nil, orcherrors.Wrap(orcherrors.KindLLMFatal,
				fmt.Sprintf("chapter %d exhausted its retries", i+1), err)
		}
		if err := writeChapterFile(taskDir, i+1, text); err != nil {
			return nil, err
		}
		_ = w.deps.Tasks.SendLog(t.TaskID, fmt.Sprintf("chapter %d/%d generated", i+1, len(plan.Chapters)))

		results = append(results, chapterResult{index: i, text: text})
		if i >= 1 {
			summaries = append(summaries, summarize(previousChapter, 500))
		}
		previousChapter = text
	}
	return results, nil
}

func summarize(text string, maxLen int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen])
}

func (w *Workflow) generateChapter(ctx context.Context, job chapterJob, profile config.ModeProfile) (string, error) {
	prompt, err := promptbuilder.BuildChapterPrompt(promptbuilder.ChapterPromptInput{
		FullContent:       job.fullContent,
		FullOutline:       job.fullOutline,
		Chapter:           job.plan,
		PreviousChapter:   job.previousChapter,
		PreviousSummaries: job.previousSummary,
	})
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindUnknown, "could not build chapter prompt", err)
	}
	raw, err := w.deps.LLM.Generate(ctx, llmclient.Request{
		Prompt:   prompt,
		Thinking: thinkingFor(profile.ChapterThinking),
	})
	if err != nil {
		return "", err
	}
	return normalizeChapterHeading(raw, job.index+1, job.plan.Title), nil
}

// normalizeChapterHeading forces the first line to be exactly
// "### <n>. <title>", inserting it if missing or replacing it if wrong
// (spec §4.F stage 2).
func normalizeChapterHeading(text string, n int, title string) string {
	want := fmt.Sprintf("### %d. %s", n, title)
	text = strings.TrimLeft(text, "\n")
	lines := strings.SplitN(text, "\n", 2)
	if report.ChapterHeadingRegex.MatchString(lines[0]) {
		rest := ""
		if len(lines) > 1 {
			rest = lines[1]
		}
		return want + "\n" + rest
	}
	return want + "\n" + text
}

func writeChapterFile(taskDir string, n int, text string) error {
	path := filepath.Join(taskDir, fmt.Sprintf("chapter_%d.md", n))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return orcherrors.Wrap(orcherrors.KindConfigError, fmt.Sprintf("could not write chapter_%d.md", n), err)
	}
	return nil
}

// runConclusion is progress 75 -> 90 (spec §4.F stage 3).
func (w *Workflow) runConclusion(ctx context.Context, t domain.Task, taskDir, content string, chapters []string) (string, error) {
	profile := w.deps.Config.ModeProfile(string(t.Mode))
	prompt, err := promptbuilder.BuildConclusionPrompt(content, chapters)
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindUnknown, "could not build conclusion prompt", err)
	}
	raw, err := w.deps.LLM.Generate(ctx, llmclient.Request{
		Prompt:   prompt,
		Thinking: thinkingFor(profile.ConclusionThinking),
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(taskDir, "conclusion.md"), []byte(raw), 0o644); err != nil {
		return "", orcherrors.Wrap(orcherrors.KindConfigError, "could not write conclusion.md", err)
	}
	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 90, "conclusion complete")
	return raw, nil
}

// runAssembly is progress 90 -> 95 (spec §4.F stage 4).
func (w *Workflow) runAssembly(ctx context.Context, t domain.Task, taskDir string, plan *domain.OutlinePlan, chapters []string, conclusionText string) (docHash, filename string, err error) {
	chapterTitles := make([]string, len(plan.Chapters))
	for i, c := range plan.Chapters {
		chapterTitles[i] = c.Title
	}

	docHash = store.GenerateDocHash(t.SourceIdentifier)
	version := w.deps.Store.NextVersion(docHash)

	doc := domain.Document{
		TitleCN:           plan.TitleCN,
		TitleEN:           plan.TitleEN,
		UploadDate:        time.Now().Format("2006-01-02"),
		CreatedAt:         time.Now(),
		ChapterCount:      len(plan.Chapters),
		Version:           version,
		Hash:              docHash,
		VideoURL:          videoURLIfApplicable(t),
		ContentIdentifier: contentIdentifierIfApplicable(t),
		IsUltraDeep:       t.Mode == domain.ModeUltra,
	}

	body, err := report.Assemble(report.Input{
		FrontMatter:     report.NewFrontMatter(doc),
		TitleCN:         plan.TitleCN,
		Introduction:    plan.Introduction,
		ChapterTitles:   chapterTitles,
		ChapterContents: chapters,
		ConclusionText:  conclusionText,
	})
	if err != nil {
		return "", "", orcherrors.Wrap(orcherrors.KindUnknown, "could not assemble the final document", err)
	}

	filename = report.Filename(plan.TitleEN, plan.TitleCN, version)
	if _, err := w.deps.Store.Write(filename, docHash, version, body); err != nil {
		return "", "", orcherrors.Wrap(orcherrors.KindConfigError, "could not write the final document", err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, "final_report.md"), []byte(body), 0o644); err != nil {
		w.deps.Logger.Warn("could not mirror final_report.md into the task scratch dir",
			slog.String("task_id", t.TaskID), slog.String("err", err.Error()))
	}

	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 95, "document assembled")
	return docHash, filename, nil
}

func videoURLIfApplicable(t domain.Task) string {
	if t.Kind == domain.KindVideo {
		return t.SourceRef
	}
	return ""
}

func contentIdentifierIfApplicable(t domain.Task) string {
	if t.Kind != domain.KindVideo {
		return t.SourceIdentifier
	}
	return ""
}

// runPostProcess is progress 95 -> 100 (spec §4.F stage 5). Its returned
// content is currently discarded once past post-processing (the stage may
// rewrite the in-memory copy, but not the already-written file, unless a
// processor itself rewrites it on disk, per spec).
func (w *Workflow) runPostProcess(ctx context.Context, t domain.Task, taskDir, filename, docHash, title string, chapterCount int) {
	if w.deps.Post == nil {
		_ = w.deps.Tasks.UpdateProgress(t.TaskID, 100, "complete")
		return
	}
	content, ok := w.deps.Store.Read(filename)
	if !ok {
		_ = w.deps.Tasks.UpdateProgress(t.TaskID, 100, "complete")
		return
	}
	pctx := &postprocess.Context{
		TaskID:       t.TaskID,
		DocHash:      docHash,
		Title:        title,
		ChapterCount: chapterCount,
		IsUltraDeep:  t.Mode == domain.ModeUltra,
		VideoURL:     videoURLIfApplicable(t),
		TaskDir:      taskDir,
		ArticlePath:  filepath.Join(w.deps.Config.DocumentsDir, filename),
	}
	_, summary := w.deps.Post.Run(ctx, pctx, content)
	_ = w.deps.Tasks.SendLog(t.TaskID, fmt.Sprintf("post-processing done: %d ran, %d skipped, %d failed",
		len(summary.Ran), len(summary.Skipped), len(summary.Failed)))
	_ = w.deps.Tasks.UpdateProgress(t.TaskID, 100, "complete")
}
