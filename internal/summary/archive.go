package summary

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	logSuffix     = ".log.txt"
	summarySuffix = ".summary.md"

	unvalidatedNotice = "*Note: This summary has not been validated by the attendants.*\n\n"
)

// ArchivePath derives the archive file path, relative to the archive root,
// from the meeting log URL: "/meetings/x.log.txt" becomes "meetings/x.summary.md".
// The path is kept percent-encoded, as it appears in the URL.
func ArchivePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse meeting log url: %w", err)
	}

	path := strings.TrimSuffix(u.EscapedPath(), logSuffix) + summarySuffix
	return strings.TrimLeft(path, "/"), nil
}

// Archiver writes summaries under a root directory.
// Existing files are overwritten with the latest summary.
type Archiver struct {
	root   string
	logger zerolog.Logger
}

// NewArchiver creates a new archiver. An empty root disables archiving.
func NewArchiver(root string, logger zerolog.Logger) *Archiver {
	return &Archiver{
		root:   root,
		logger: logger.With().Str("component", "archiver").Logger(),
	}
}

// Enabled reports whether an archive root is configured
func (a *Archiver) Enabled() bool {
	return a.root != ""
}

// Save writes text to relPath under the archive root and returns the full path.
// Unvalidated summaries are prefixed with a notice. Save is a no-op returning
// an empty path when archiving is disabled.
func (a *Archiver) Save(text, relPath string, validated bool) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	if !filepath.IsLocal(filepath.FromSlash(relPath)) {
		return "", fmt.Errorf("archive path %q escapes the meetings directory", relPath)
	}

	if !validated {
		text = unvalidatedNotice + text
	}

	filePath := filepath.Join(a.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Always overwrite: the unvalidated summary is stored first
	if err := os.WriteFile(filePath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	a.logger.Info().
		Str("path", filePath).
		Bool("validated", validated).
		Msg("Saved summary")

	return filePath, nil
}
