// Package outline implements the OutlineParser capability (spec component
// D): turning raw LLM outline output (a JSON block plus Markdown surface)
// into a typed domain.OutlinePlan. The JSON block is the source of truth
// (spec §9's "stringly-typed outline parsing" redesign note); Markdown
// parsing is a best-effort fallback for title/introduction only.
package outline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/reinvent-insight/orchestrator/internal/domain"
	orcherrors "github.com/reinvent-insight/orchestrator/internal/errors"
	pkgstrings "github.com/reinvent-insight/orchestrator/pkg/strings"
)

var (
	fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")
	titleLineRegex  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// jsonChapter mirrors the chapters[] schema PromptBuilder asks the model
// to emit; fields absent from the model's output default to their zero
// value, per spec §4.D ("missing fields default to empty").
type jsonChapter struct {
	Index             int              `json:"index"`
	Title             string           `json:"title"`
	Subsections       []jsonSubsection `json:"subsections"`
	MustInclude       []string         `json:"must_include"`
	MustExclude       []string         `json:"must_exclude"`
	OpeningHook       string           `json:"opening_hook"`
	ClosingTransition string           `json:"closing_transition"`
	Rationale         string           `json:"rationale"`
	ContentGuidance   string           `json:"content_guidance"`
}

type jsonSubsection struct {
	Subtitle  string   `json:"subtitle"`
	KeyPoints []string `json:"key_points"`
}

type jsonOutline struct {
	TitleCN             string        `json:"title_cn"`
	TitleEN              string        `json:"title_en"`
	Introduction         string        `json:"introduction"`
	Chapters             []jsonChapter `json:"chapters"`
	TotalEstimatedWords  int           `json:"total_estimated_words"`
	ContentType          string        `json:"content_type"`
	ContentTypeRationale string        `json:"content_type_rationale"`
}

// Parse turns raw model output into a domain.OutlinePlan. It fails with an
// *orcherrors.Structured of kind KindOutlineParseError if no title or zero
// chapters can be recovered (spec §4.D, §9 "outline with 0 chapters").
func Parse(raw string) (*domain.OutlinePlan, error) {
	jsonBlock, found := extractJSONBlock(raw)

	var parsed jsonOutline
	if found {
		if err := json.Unmarshal([]byte(jsonBlock), &parsed); err != nil {
			// Fall through to Markdown-only recovery of the title.
			// Chapters are read only from the JSON block, never from
			// the Markdown surface, so a malformed block ends in the
			// zero-chapters error below.
			found = false
		}
	}

	title := parsed.TitleCN
	if title == "" {
		title = extractTitleFromMarkdown(raw)
	}
	if title == "" {
		return nil, orcherrors.New(orcherrors.KindOutlineParseError, "could not recover a title from the outline").
			WithSuggestions("ask the model to restate the outline with a leading '# title' line or a title_cn JSON field")
	}

	if len(parsed.Chapters) == 0 {
		return nil, orcherrors.New(orcherrors.KindOutlineParseError, "outline declared zero chapters").
			WithSuggestions("regenerate the outline and require a non-empty chapters[] array")
	}

	plan := &domain.OutlinePlan{
		TitleCN:              title,
		TitleEN:              parsed.TitleEN,
		Introduction:         firstNonEmpty(parsed.Introduction, extractIntroductionFromMarkdown(raw)),
		TotalEstimatedWords:  parsed.TotalEstimatedWords,
		ContentType:          parsed.ContentType,
		ContentTypeRationale: parsed.ContentTypeRationale,
	}

	for _, jc := range parsed.Chapters {
		cp := domain.ChapterPlan{
			Index:             jc.Index,
			Title:             jc.Title,
			MustInclude:       jc.MustInclude,
			MustExclude:       jc.MustExclude,
			OpeningHook:       jc.OpeningHook,
			ClosingTransition: jc.ClosingTransition,
			Rationale:         jc.Rationale,
			ContentGuidance:   jc.ContentGuidance,
		}
		for _, js := range jc.Subsections {
			cp.Subsections = append(cp.Subsections, domain.Subsection{
				Subtitle:  js.Subtitle,
				KeyPoints: js.KeyPoints,
			})
		}
		if cp.Title == "" {
			return nil, orcherrors.New(orcherrors.KindOutlineParseError,
				fmt.Sprintf("chapter at index %d is missing a title", cp.Index))
		}
		plan.Chapters = append(plan.Chapters, cp)
	}

	return plan, nil
}

// ChapterCount is a convenience accessor used by the ultra-mode overflow
// check in the Workflow.
func ChapterCount(plan *domain.OutlinePlan) int {
	return len(plan.Chapters)
}

func extractJSONBlock(raw string) (string, bool) {
	if m := fencedJSONRegex.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	// Bare-JSON fallback: the first '{' to the matching last '}'.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], true
	}
	return "", false
}

func extractTitleFromMarkdown(raw string) string {
	m := titleLineRegex.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractIntroductionFromMarkdown takes the first paragraph after the title
// line and before the first code fence (the JSON block); a chapter list
// between the title and the fence is not recognized or cut off. The text is
// normalized with the same blank-line trimming the rest of this module's
// Markdown handling uses.
func extractIntroductionFromMarkdown(raw string) string {
	loc := titleLineRegex.FindStringIndex(raw)
	if loc == nil {
		return ""
	}
	rest := raw[loc[1]:]
	if idx := strings.Index(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	rest = pkgstrings.TrimAdjacentBlankLines(rest)
	paragraphs := strings.SplitN(strings.TrimSpace(rest), "\n\n", 2)
	if len(paragraphs) == 0 {
		return ""
	}
	return strings.TrimSpace(paragraphs[0])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExtractContentTypeInfo exposes the best-effort content-type/rationale
// fields on an already-parsed plan (spec §4.D
// extract_content_type_info(outline)).
func ExtractContentTypeInfo(plan *domain.OutlinePlan) (contentType, rationale string) {
	return plan.ContentType, plan.ContentTypeRationale
}
