package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogEntry contains metadata for creating a run log file.
type LogEntry struct {
	RunID     string
	RepoOwner string
	RepoName  string
	Version   string
	Trigger   string
	Timestamp time.Time
}

// Writer manages run log files organized by repository and version.
type Writer struct {
	baseDir string
}

// NewWriter creates a new Writer with the specified base directory.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Create creates a new log file for the given entry and returns the path.
// Directory structure: baseDir/owner/repo/version/timestamp-trigger-runID.log
func (w *Writer) Create(entry LogEntry) (string, error) {
	dir := filepath.Join(
		w.baseDir,
		pathSafe(entry.RepoOwner),
		pathSafe(entry.RepoName),
		pathSafe(entry.Version),
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.log",
		entry.Timestamp.UTC().Format("2006-01-02T15-04-05"),
		pathSafe(entry.Trigger),
		entry.RunID,
	)

	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating log file: %w", err)
	}
	f.Close()

	return path, nil
}

// Append writes data to the specified log file.
func (w *Writer) Append(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Write creates the log file for entry and fills it with data.
func (w *Writer) Write(entry LogEntry, data []byte) (string, error) {
	path, err := w.Create(entry)
	if err != nil {
		return "", err
	}
	if err := w.Append(path, data); err != nil {
		return "", fmt.Errorf("writing log file: %w", err)
	}
	return path, nil
}

// pathSafe turns free-form text such as a version label into a single path
// element that cannot climb out of the log directory.
func pathSafe(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return "unknown"
	case ".", "..":
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':', r == ' ', r < 0x20:
			return '_'
		}
		return r
	}, s)
}
