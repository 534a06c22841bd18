// Package promptbuilder implements the PromptBuilder capability (spec
// component C): pure, deterministic construction of the outline, chapter,
// and conclusion prompts from structured inputs and mode config. Rendering
// goes through pkg/strings.TextTemplate, the same text/template wrapper the
// rest of this module's string-templating uses.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/reinvent-insight/orchestrator/internal/config"
	"github.com/reinvent-insight/orchestrator/internal/domain"
	pkgstrings "github.com/reinvent-insight/orchestrator/pkg/strings"
)

const outlineTemplate = `你将阅读以下完整资料，并为其撰写一份深度解读报告的大纲。

资料内容：
{{.Content}}

模式：{{.Mode}}
章节数量范围：{{.ChapterMin}} 到 {{.ChapterMax}} 章
每章目标字数：{{.WordsMin}} 到 {{.WordsMax}} 字

请先输出一段人类可读的大纲说明，然后输出一个 JSON 代码块，结构如下：
{
  "title_cn": "中文标题",
  "title_en": "English Title",
  "introduction": "引言",
  "chapters": [
    {
      "index": 1,
      "title": "章节标题",
      "subsections": [{"subtitle": "...", "key_points": ["..."]}],
      "must_include": ["..."],
      "must_exclude": ["..."],
      "opening_hook": "...",
      "closing_transition": "...",
      "rationale": "...",
      "content_guidance": "..."
    }
  ],
  "total_estimated_words": 0
}
`

const chapterTemplate = `你正在为一份深度解读报告撰写第 {{.Number}} 章，标题为《{{.Title}}》。

完整资料：
{{.FullContent}}

完整大纲：
{{.FullOutline}}

本章写作指引：
{{.ContentGuidance}}

必须包含的要点：{{.MustInclude}}
必须避免的内容：{{.MustExclude}}
开篇钩子：{{.OpeningHook}}
结尾过渡：{{.ClosingTransition}}
{{if .PreviousChapter}}
上一章全文（用于保持连贯、避免重复）：
{{.PreviousChapter}}
{{end}}{{if .PreviousSummaries}}
前面章节摘要：
{{range .PreviousSummaries}}- {{.}}
{{end}}{{end}}
请只输出本章正文，第一行必须严格为："### {{.Number}}. {{.Title}}"
`

const conclusionTemplate = `根据以下资料和已生成的全部章节，撰写两个部分：

资料：
{{.FullContent}}

已生成章节：
{{.Chapters}}

请按顺序输出两个以 "### " 开头的小节：
### 洞见延伸
（此处写洞见延伸内容）
### 金句摘录
（此处写原文引用或金句）
`

// BuildOutlinePrompt renders the outline-stage prompt for content under the
// given mode profile.
func BuildOutlinePrompt(content string, mode domain.Mode, profile config.ModeProfile) (string, error) {
	t := pkgstrings.NewTextTemplate()
	err := t.Execute(outlineTemplate, map[string]any{
		"Content":    content,
		"Mode":       string(mode),
		"ChapterMin": profile.ChapterCountMin,
		"ChapterMax": profile.ChapterCountMax,
		"WordsMin":   profile.TargetWordsMin,
		"WordsMax":   profile.TargetWordsMax,
	})
	if err != nil {
		return "", fmt.Errorf("promptbuilder: outline prompt: %w", err)
	}
	return t.Render(), nil
}

// ChapterPromptInput bundles a chapter's plan with the sequential-mode
// continuity context. PreviousChapter and PreviousSummaries must both be
// empty when the caller is running the concurrent chapter strategy (spec
// forbids summaries leaking into the concurrent path).
type ChapterPromptInput struct {
	FullContent       string
	FullOutline       string
	Chapter           domain.ChapterPlan
	PreviousChapter   string
	PreviousSummaries []string
}

// BuildChapterPrompt renders the chapter-stage prompt for one chapter.
func BuildChapterPrompt(in ChapterPromptInput) (string, error) {
	t := pkgstrings.NewTextTemplate()
	err := t.Execute(chapterTemplate, map[string]any{
		"Number":            in.Chapter.Index,
		"Title":             in.Chapter.Title,
		"FullContent":       in.FullContent,
		"FullOutline":       in.FullOutline,
		"ContentGuidance":   in.Chapter.ContentGuidance,
		"MustInclude":       strings.Join(in.Chapter.MustInclude, "、"),
		"MustExclude":       strings.Join(in.Chapter.MustExclude, "、"),
		"OpeningHook":       in.Chapter.OpeningHook,
		"ClosingTransition": in.Chapter.ClosingTransition,
		"PreviousChapter":   in.PreviousChapter,
		"PreviousSummaries": in.PreviousSummaries,
	})
	if err != nil {
		return "", fmt.Errorf("promptbuilder: chapter prompt: %w", err)
	}
	return t.Render(), nil
}

// BuildConclusionPrompt renders the conclusion-stage prompt from the full
// source content and every chapter's generated text, joined for context.
func BuildConclusionPrompt(fullContent string, generatedChapters []string) (string, error) {
	t := pkgstrings.NewTextTemplate()
	err := t.Execute(conclusionTemplate, map[string]any{
		"FullContent": fullContent,
		"Chapters":    strings.Join(generatedChapters, "\n\n---\n\n"),
	})
	if err != nil {
		return "", fmt.Errorf("promptbuilder: conclusion prompt: %w", err)
	}
	return t.Render(), nil
}
