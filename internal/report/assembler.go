// Package report implements the ReportAssembler capability (spec component
// E): a pure function from structured pieces (front matter, title,
// introduction, TOC, chapters, conclusion) to the final Markdown document,
// plus the deterministic TOC slug and filename rules it depends on.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reinvent-insight/orchestrator/internal/domain"
)

// FrontMatter mirrors the bit-exact schema in spec §6, YAML-tagged so
// omitempty drops null/zero optional fields exactly as the spec requires.
type FrontMatter struct {
	TitleCN           string `yaml:"title_cn"`
	TitleEN           string `yaml:"title_en,omitempty"`
	UploadDate        string `yaml:"upload_date"`
	CreatedAt         string `yaml:"created_at"`
	ChapterCount      int    `yaml:"chapter_count"`
	Version           int    `yaml:"version"`
	Hash              string `yaml:"hash"`
	VideoURL          string `yaml:"video_url,omitempty"`
	ContentIdentifier string `yaml:"content_identifier,omitempty"`
	IsReinvent        bool   `yaml:"is_reinvent,omitempty"`
	CourseCode        string `yaml:"course_code,omitempty"`
	Level             string `yaml:"level,omitempty"`
	IsUltraDeep       bool   `yaml:"is_ultra_deep,omitempty"`
	BaseVersion       int    `yaml:"base_version,omitempty"`
	Proofread         bool   `yaml:"proofread,omitempty"`
}

// Input bundles everything Assemble needs. Chapters must already be
// normalized (first line "### <n>. <title>") by the Workflow before
// assembly; Assemble does not rewrite chapter headings itself.
type Input struct {
	FrontMatter     FrontMatter
	TitleCN         string
	Introduction    string
	ChapterTitles   []string // used to regenerate the TOC, in chapter order
	ChapterContents []string // full chapter bodies, in chapter order
	ConclusionText  string   // raw LLM conclusion output, split on "\n### "
}

// Assemble merges Input into the final Markdown document (spec §4.E).
func Assemble(in Input) (string, error) {
	fmData, err := yaml.Marshal(in.FrontMatter)
	if err != nil {
		return "", fmt.Errorf("report: marshal front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fmData)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", in.TitleCN)

	if strings.TrimSpace(in.Introduction) != "" {
		fmt.Fprintf(&b, "### 引言\n\n%s\n\n", strings.TrimSpace(in.Introduction))
	}

	b.WriteString(BuildTOC(in.ChapterTitles))
	b.WriteString("\n\n")

	b.WriteString(strings.Join(in.ChapterContents, "\n\n---\n\n"))

	insights, quotes := splitConclusion(in.ConclusionText)
	if insights != "" || quotes != "" {
		b.WriteString("\n\n---\n\n")
		if insights != "" {
			fmt.Fprintf(&b, "### %s\n\n", insights)
		}
		if quotes != "" {
			fmt.Fprintf(&b, "### %s\n", quotes)
		}
	}

	return b.String(), nil
}

// splitConclusion breaks the raw two-section conclusion text on "\n### ",
// returning the "insights extension" and "quotes" sections verbatim,
// each starting with its own heading text but without the leading "### "
// marker, which Assemble writes back.
func splitConclusion(raw string) (insights, quotes string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	parts := strings.Split(raw, "\n### ")
	sections := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i > 0 {
			// strings.Split consumed the leading "### " marker; restore it
			// on every part after the first.
			p = "### " + p
		} else if !strings.HasPrefix(p, "###") {
			// Nothing before the first "### " marker is a section; skip it.
			continue
		}
		sections = append(sections, strings.TrimPrefix(p, "### "))
	}
	if len(sections) > 0 {
		insights = sections[0]
	}
	if len(sections) > 1 {
		quotes = sections[1]
	}
	return insights, quotes
}

var slugDisallowed = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
var slugWhitespace = regexp.MustCompile(`\s+`)

// Slug derives a TOC anchor from a chapter title: lower-case, punctuation
// stripped, spaces collapsed to a single hyphen, CJK and other Unicode
// letters/digits preserved (spec glossary "TOC slug").
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugDisallowed.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// BuildTOC regenerates the table of contents with anchor links derived from
// chapter titles via Slug (spec §4.E: "regenerates the TOC").
func BuildTOC(chapterTitles []string) string {
	var b strings.Builder
	b.WriteString("## 目录\n\n")
	for i, title := range chapterTitles {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+1, title, Slug(title))
	}
	return strings.TrimRight(b.String(), "\n")
}

var filesystemUnsafe = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeTitle strips filesystem-unsafe characters from a title for use in
// a filename (spec §4.E filename rule).
func SanitizeTitle(title string) string {
	s := filesystemUnsafe.ReplaceAllString(title, "")
	s = strings.TrimSpace(s)
	s = slugWhitespace.ReplaceAllString(s, "_")
	return s
}

// Filename picks the on-disk filename: <sanitized_title>_v<version>.md,
// preferring the English title when available, else the Chinese title.
func Filename(titleEN, titleCN string, version int) string {
	title := titleEN
	if title == "" {
		title = titleCN
	}
	return fmt.Sprintf("%s_v%d.md", SanitizeTitle(title), version)
}

// NewFrontMatter builds a FrontMatter from a domain.Document, the shape the
// Workflow assembles after writing the document to disk.
func NewFrontMatter(doc domain.Document) FrontMatter {
	return FrontMatter{
		TitleCN:           doc.TitleCN,
		TitleEN:           doc.TitleEN,
		UploadDate:        doc.UploadDate,
		CreatedAt:         doc.CreatedAt.Format(time.RFC3339),
		ChapterCount:      doc.ChapterCount,
		Version:           doc.Version,
		Hash:              doc.Hash,
		VideoURL:          doc.VideoURL,
		ContentIdentifier: doc.ContentIdentifier,
		IsReinvent:        doc.IsReinvent,
		CourseCode:        doc.CourseCode,
		Level:             doc.Level,
		IsUltraDeep:       doc.IsUltraDeep,
		BaseVersion:       doc.BaseVersion,
		Proofread:         doc.Proofread,
	}
}

// ChapterHeadingRegex matches a properly-formatted chapter heading,
// "### <n>. <title>", used both here and by Workflow to count/validate
// chapter sections (spec §8 property 2).
var ChapterHeadingRegex = regexp.MustCompile(`(?m)^### (\d+)\. `)

// CountChapterHeadings counts "^### \d+\. " headings in body (spec §8
// property 2: front-matter chapter_count must equal this).
func CountChapterHeadings(body string) int {
	return len(ChapterHeadingRegex.FindAllStringIndex(body, -1))
}
