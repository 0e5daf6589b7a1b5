package logging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Cleaner removes run logs older than a retention period.
type Cleaner struct {
	baseDir       string
	retentionDays int
	now           func() time.Time
}

// NewCleaner creates a new Cleaner with the specified base directory and retention period.
// A retention of zero or less keeps logs forever.
func NewCleaner(baseDir string, retentionDays int) *Cleaner {
	return &Cleaner{baseDir: baseDir, retentionDays: retentionDays, now: time.Now}
}

// Cleanup removes expired .log files, then the owner, repo and version
// directories they leave empty. It returns the number of files removed.
func (c *Cleaner) Cleanup() (int, error) {
	if c.retentionDays <= 0 {
		return 0, nil
	}
	threshold := c.now().AddDate(0, 0, -c.retentionDays)

	var deleted int
	var dirs []string
	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != c.baseDir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if filepath.Ext(d.Name()) != ".log" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) && os.Remove(path) == nil {
			deleted++
		}
		return nil
	})

	// Deepest first so a version directory is gone before its repo is checked
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		if entries, rerr := os.ReadDir(dir); rerr == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}

	return deleted, err
}
