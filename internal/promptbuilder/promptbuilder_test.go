package promptbuilder

import (
	"strings"
	"testing"

	"github.com/reinvent-insight/orchestrator/internal/config"
	"github.com/reinvent-insight/orchestrator/internal/domain"
)

func TestBuildOutlinePromptIsDeterministic(t *testing.T) {
	profile := config.ModeProfile{ChapterCountMin: 6, ChapterCountMax: 15, TargetWordsMin: 800, TargetWordsMax: 1500}

	p1, err := BuildOutlinePrompt("source text", domain.ModeDeep, profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := BuildOutlinePrompt("source text", domain.ModeDeep, profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != p2 {
		t.Fatal("BuildOutlinePrompt must be a pure function of its inputs")
	}
	if !strings.Contains(p1, "source text") {
		t.Fatal("expected the source content to appear in the prompt")
	}
	if !strings.Contains(p1, "6") || !strings.Contains(p1, "15") {
		t.Fatal("expected the chapter count bounds to appear in the prompt")
	}
}

func TestBuildChapterPromptOmitsSequentialContextWhenAbsent(t *testing.T) {
	chapter := domain.ChapterPlan{Index: 3, Title: "The Turning Point"}
	prompt, err := BuildChapterPrompt(ChapterPromptInput{
		FullContent: "full",
		FullOutline: "outline",
		Chapter:     chapter,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt, "上一章全文") {
		t.Fatal("concurrent-mode prompts must not include sequential continuity context")
	}
	if !strings.Contains(prompt, "### 3. The Turning Point") {
		t.Fatal("expected the required heading format to appear in the instructions")
	}
}

func TestBuildChapterPromptIncludesSequentialContextWhenPresent(t *testing.T) {
	chapter := domain.ChapterPlan{Index: 2, Title: "Rising Action"}
	prompt, err := BuildChapterPrompt(ChapterPromptInput{
		FullContent:       "full",
		FullOutline:       "outline",
		Chapter:           chapter,
		PreviousChapter:   "chapter one full text",
		PreviousSummaries: []string{"summary of chapter zero"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "chapter one full text") {
		t.Fatal("expected the previous chapter's text to appear for sequential mode")
	}
	if !strings.Contains(prompt, "summary of chapter zero") {
		t.Fatal("expected prior chapter summaries to appear for sequential mode")
	}
}

func TestBuildConclusionPromptJoinsChapters(t *testing.T) {
	prompt, err := BuildConclusionPrompt("source", []string{"chapter one", "chapter two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "chapter one") || !strings.Contains(prompt, "chapter two") {
		t.Fatal("expected both chapters to appear in the conclusion prompt")
	}
}
