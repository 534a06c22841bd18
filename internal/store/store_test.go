package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, dir, filename, titleCN string, version int, hash string) {
	t.Helper()
	content := "---\ntitle_cn: " + titleCN + "\nversion: " + itoa(version) + "\nhash: " + hash + "\n---\n\n# body\n"
	if err := writeFile(filepath.Join(dir, filename), content); err != nil {
		t.Fatalf("writeDoc: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestGenerateDocHashDeterministicAnd8Hex(t *testing.T) {
	h1 := GenerateDocHash("https://example.com/video/1")
	h2 := GenerateDocHash("https://example.com/video/1")
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %q vs %q", h1, h2)
	}
	if len(h1) != 8 {
		t.Fatalf("expected 8 hex chars, got %q (len %d)", h1, len(h1))
	}
}

func TestGenerateDocHashDiffersByInput(t *testing.T) {
	if GenerateDocHash("a") == GenerateDocHash("b") {
		t.Fatal("expected different sources to (almost certainly) hash differently")
	}
}

func TestInitSkipsUnparsableAndInvalidHashDocuments(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good_v1.md", "Good Title", 1, "abcdef12")
	if err := writeFile(filepath.Join(dir, "bad-hash_v1.md"), "---\ntitle_cn: Bad\nversion: 1\nhash: nothex\n---\n\nbody\n"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "no-frontmatter.md"), "just a body, no front matter\n"); err != nil {
		t.Fatal(err)
	}

	reg := New(dir, nil)
	if err := reg.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, ok := reg.GetHash("good_v1.md"); !ok {
		t.Fatal("expected good_v1.md to be indexed")
	}
	if _, ok := reg.GetHash("bad-hash_v1.md"); ok {
		t.Fatal("expected bad-hash_v1.md to be skipped")
	}
	if _, ok := reg.GetHash("no-frontmatter.md"); ok {
		t.Fatal("expected no-frontmatter.md to be skipped")
	}
}

func TestGetDefaultPicksMaxVersion(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "t_v1.md", "T", 1, "aaaaaaaa")
	writeDoc(t, dir, "t_v2.md", "T", 2, "aaaaaaaa")
	writeDoc(t, dir, "t_v3.md", "T", 3, "aaaaaaaa")

	reg := New(dir, nil)
	if err := reg.Init(); err != nil {
		t.Fatal(err)
	}

	def, ok := reg.GetDefault("aaaaaaaa")
	if !ok || def != "t_v3.md" {
		t.Fatalf("expected t_v3.md as default, got %q (ok=%v)", def, ok)
	}
	versions := reg.GetVersions("aaaaaaaa")
	want := []string{"t_v3.md", "t_v2.md", "t_v1.md"}
	if len(versions) != len(want) {
		t.Fatalf("expected %v, got %v", want, versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, versions)
		}
	}
}

func TestWriteIsAtomicAndUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir, nil)
	if err := reg.Init(); err != nil {
		t.Fatal(err)
	}

	path, err := reg.Write("new_v1.md", "12345678", 1, "---\ntitle_cn: New\n---\n\nbody\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "new_v1.md" {
		t.Fatalf("unexpected path %q", path)
	}

	content, ok := reg.Read("new_v1.md")
	if !ok || content == "" {
		t.Fatal("expected to read back the written content")
	}

	def, ok := reg.GetDefault("12345678")
	if !ok || def != "new_v1.md" {
		t.Fatalf("expected new_v1.md registered as default, got %q (ok=%v)", def, ok)
	}
}

func TestReadMissingFileReturnsNotFoundNotError(t *testing.T) {
	reg := New(t.TempDir(), nil)
	if _, ok := reg.Read("does-not-exist.md"); ok {
		t.Fatal("expected ok=false for a missing file")
	}
}

func TestNextVersionIncrementsFromMax(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "t_v1.md", "T", 1, "bbbbbbbb")
	writeDoc(t, dir, "t_v2.md", "T", 2, "bbbbbbbb")

	reg := New(dir, nil)
	if err := reg.Init(); err != nil {
		t.Fatal(err)
	}
	if got := reg.NextVersion("bbbbbbbb"); got != 3 {
		t.Fatalf("expected next version 3, got %d", got)
	}
	if got := reg.NextVersion("unseen-hash"); got != 1 {
		t.Fatalf("expected next version 1 for an unseen hash, got %d", got)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "t_v1.md", "T", 1, "cccccccc")

	reg := New(dir, nil)
	if err := reg.Init(); err != nil {
		t.Fatal(err)
	}
	first := reg.GetVersions("cccccccc")
	if err := reg.Refresh(); err != nil {
		t.Fatal(err)
	}
	if err := reg.Refresh(); err != nil {
		t.Fatal(err)
	}
	second := reg.GetVersions("cccccccc")
	if len(first) != len(second) || len(second) != 1 {
		t.Fatalf("expected idempotent refresh, got %v then %v", first, second)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
