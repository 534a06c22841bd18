package orchestrator

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reinvent-insight/orchestrator/internal/store"
)

// videoIDPattern pulls an 11-character YouTube-style video ID out of either
// a watch?v= query string or a youtu.be/<id> short link.
var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/|/shorts/)([A-Za-z0-9_-]{11})`)

// normalizeVideoURL canonicalizes a submitted video URL to
// "https://www.youtube.com/watch?v=<id>" (spec §3: "source_identifier ...
// for videos, https://<host>/watch?v=<11-char-id> after URL normalization"),
// so that query-string noise (playlist position, timestamp, referrer) never
// defeats deduplication. Returns ok=false if no recognizable video ID is
// present.
func normalizeVideoURL(raw string) (identifier string, ok bool) {
	m := videoIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return "https://www.youtube.com/watch?v=" + m[1], true
}

// docType classifies an uploaded document by filename extension into the
// coarse category the size caps and the "<type>://<hash>" source identifier
// (spec §3) use. Anything unrecognized is classified as office, a binary
// type, so it gets the binary size cap rather than the text one.
type docType string

const (
	docTypeText     docType = "text"
	docTypeMarkdown docType = "markdown"
	docTypePDF      docType = "pdf"
	docTypeOffice   docType = "office"
)

func (d docType) isText() bool {
	return d == docTypeText || d == docTypeMarkdown
}

func classifyDocument(filename string) docType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return docTypeMarkdown
	case ".txt":
		return docTypeText
	case ".pdf":
		return docTypePDF
	case ".doc", ".docx":
		return docTypeOffice
	default:
		return docTypeOffice
	}
}

// documentSourceIdentifier builds the "<type>://<content-hash>" identifier
// spec §3 defines for uploaded documents, reusing store.GenerateDocHash so
// the same truncated xxhash scheme backs both the dedup key and doc_hash.
func documentSourceIdentifier(dt docType, content []byte) string {
	return string(dt) + "://" + store.GenerateDocHash(string(content))
}
