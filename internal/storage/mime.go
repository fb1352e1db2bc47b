package storage

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimeText   = "text/plain"
	mimeBinary = "application/octet-stream"
)

// Source files are sent as plain text whatever the detector guesses for
// their extension; the analysis model only accepts a fixed set of types.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cs": true, ".go": true,
	".h": true, ".hpp": true, ".java": true, ".js": true, ".jsx": true,
	".kt": true, ".php": true, ".py": true, ".rb": true, ".rs": true,
	".scala": true, ".sh": true, ".sql": true, ".swift": true, ".ts": true,
	".tsx": true, ".vb": true,
}

// DetectMIMEType returns the content type to tag an upload with.
func DetectMIMEType(path string) string {
	if sourceExtensions[strings.ToLower(filepath.Ext(path))] {
		return mimeText
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return mimeBinary
	}
	if mt.Is(mimeText) {
		return mimeText
	}
	for p := mt.Parent(); p != nil; p = p.Parent() {
		if p.Is(mimeText) {
			return mimeText
		}
	}

	// strip parameters such as "; charset=utf-8"
	ct, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(ct)
}
