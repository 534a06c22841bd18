// Package store implements the HashRegistry & DocumentStore capability
// (spec component J): the content-identifier → hash → file mapping, and
// the atomic read/write rules for the documents directory.
package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// docFrontMatter is the subset of the front-matter schema (spec §6) the
// registry needs to group and order files; unknown keys are ignored by
// yaml.v3 decoding.
type docFrontMatter struct {
	TitleCN           string `yaml:"title_cn"`
	Version           int    `yaml:"version"`
	Hash              string `yaml:"hash"`
	VideoURL          string `yaml:"video_url"`
	ContentIdentifier string `yaml:"content_identifier"`
}

// sourceIdentifier picks the one field that stands for "source" in the
// front matter: a video URL or a content identifier, whichever is set.
func (f docFrontMatter) sourceIdentifier() string {
	if f.VideoURL != "" {
		return f.VideoURL
	}
	return f.ContentIdentifier
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// entry is one on-disk document, as discovered by a scan.
type entry struct {
	filename string
	version  int
	hash     string
}

// Registry is the in-memory HashRegistry: hash -> default filename,
// hash -> versions (desc), filename -> hash (spec §4.J).
type Registry struct {
	mu   sync.RWMutex
	docs []entry // every successfully parsed document

	documentsDir string
	logger       *slog.Logger
}

// New builds a Registry rooted at documentsDir. Call Init to populate it.
func New(documentsDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{documentsDir: documentsDir, logger: logger}
}

// Init scans the documents directory and populates the registry. A file
// whose front matter fails to parse, or whose hash fails the 8-hex-char
// validation, is logged and skipped without aborting the scan (spec §8
// property: "A document whose YAML front matter fails to parse is skipped
// by HashRegistry init without aborting the scan").
func (r *Registry) Init() error {
	docs, err := scanDir(r.documentsDir, r.logger)
	if err != nil {
		return fmt.Errorf("store: init: %w", err)
	}
	r.mu.Lock()
	r.docs = docs
	r.mu.Unlock()
	return nil
}

// Refresh re-scans the documents directory and replaces the whole map set.
// The spec describes refresh as scoped to one source_identifier, but since
// the registry holds no reverse source->hash index (only hash->files), a
// full re-scan is the simplest operation that preserves the documented
// idempotence property (spec §8 property 8) without adding a fourth map.
func (r *Registry) Refresh() error {
	return r.Init()
}

func scanDir(dir string, logger *slog.Logger) ([]entry, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		fm, err := readFrontMatter(filepath.Join(dir, f.Name()))
		if err != nil {
			logger.Warn("store: skipping unparsable document",
				slog.String("file", f.Name()), slog.String("err", err.Error()))
			continue
		}
		if !hashPattern.MatchString(fm.Hash) {
			logger.Warn("store: skipping document with invalid hash",
				slog.String("file", f.Name()), slog.String("hash", fm.Hash))
			continue
		}
		docs = append(docs, entry{filename: f.Name(), version: fm.Version, hash: fm.Hash})
	}
	return docs, nil
}

func readFrontMatter(path string) (docFrontMatter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return docFrontMatter{}, err
	}
	block, err := extractFrontMatterBlock(raw)
	if err != nil {
		return docFrontMatter{}, err
	}
	var fm docFrontMatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return docFrontMatter{}, err
	}
	if fm.TitleCN == "" {
		return docFrontMatter{}, fmt.Errorf("missing required title_cn")
	}
	return fm, nil
}

var frontMatterDelim = []byte("---")

func extractFrontMatterBlock(raw []byte) ([]byte, error) {
	raw = bytes.TrimLeft(raw, "﻿ \t\r\n")
	if !bytes.HasPrefix(raw, frontMatterDelim) {
		return nil, fmt.Errorf("missing front matter delimiter")
	}
	rest := raw[len(frontMatterDelim):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter block")
	}
	return rest[:end], nil
}

// GetDefault returns the latest-version filename for hash (spec §4.J
// get_default).
func (r *Registry) GetDefault(hash string) (string, bool) {
	versions := r.GetVersions(hash)
	if len(versions) == 0 {
		return "", false
	}
	return versions[0], true
}

// GetVersions returns every filename under hash, sorted by version
// descending (spec §4.J get_versions).
func (r *Registry) GetVersions(hash string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entry
	for _, d := range r.docs {
		if d.hash == hash {
			matched = append(matched, d)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].version > matched[j].version })

	names := make([]string, len(matched))
	for i, d := range matched {
		names[i] = d.filename
	}
	return names
}

// GetHash returns the hash recorded for filename (spec §4.J get_hash).
func (r *Registry) GetHash(filename string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.docs {
		if d.filename == filename {
			return d.hash, true
		}
	}
	return "", false
}

// NextVersion returns the version a new document under hash should use:
// one past the current maximum, or 1 if hash has no documents yet.
func (r *Registry) NextVersion(hash string) int {
	versions := r.GetVersions(hash)
	if len(versions) == 0 {
		return 1
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, d := range r.docs {
		if d.hash == hash && d.version > max {
			max = d.version
		}
	}
	return max + 1
}

// record adds a freshly written document to the in-memory index without a
// full re-scan, so Write's caller sees it immediately via GetDefault.
func (r *Registry) record(filename string, version int, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, entry{filename: filename, version: version, hash: hash})
}

// Write atomically writes content to <documents_dir>/<filename>: write to a
// sibling ".tmp" file, then rename into place (spec §4.J: "write to a
// sibling *.tmp ... then rename into place"). On success the registry's
// in-memory index is updated so a concurrent GetDefault observes it.
func (r *Registry) Write(filename, hash string, version int, content string) (string, error) {
	if err := os.MkdirAll(r.documentsDir, 0o755); err != nil {
		return "", fmt.Errorf("store: write: mkdir: %w", err)
	}
	finalPath := filepath.Join(r.documentsDir, filename)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("store: write: %w", err)
	}
	if f, err := os.Open(tmpPath); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("store: write: rename: %w", err)
	}

	r.record(filename, version, hash)
	return finalPath, nil
}

// Read returns a document's content, tolerating a missing file by
// returning ok=false rather than an error (spec §4.J: "Reads tolerate
// missing files by returning not found — never raise across the registry
// boundary").
func (r *Registry) Read(filename string) (content string, ok bool) {
	data, err := os.ReadFile(filepath.Join(r.documentsDir, filename))
	if err != nil {
		return "", false
	}
	return string(data), true
}
