// Package audit writes the terminal artifact of every run.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
)

const (
	dirPerm   = 0o755
	filePerm  = 0o644
	stampForm = "20060102150405"
	prefix    = "run_"
	suffix    = ".json"
)

// ErrNoRuns is returned by Latest when dir holds no artifact.
var ErrNoRuns = errors.New("no run artifacts")

// Writer stores run summaries as JSON files under a directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// FileName returns run_<timestamp>_<runid>.json for summary.
func FileName(summary execution.Summary) string {
	return prefix + summary.StartedAt.UTC().Format(stampForm) + "_" + summary.RunID + suffix
}

// Write stores summary and returns the artifact path. The file appears
// atomically through a rename of a temporary file in the same directory.
func (w *Writer) Write(summary execution.Summary) (string, error) {
	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create audit dir %s: %w", w.dir, err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run summary: %w", err)
	}

	path := filepath.Join(w.dir, FileName(summary))
	tmp, err := os.CreateTemp(w.dir, ".run-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create audit file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(append(data, '\n')); err == nil {
		err = tmp.Chmod(filePerm)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write audit file %s: %w", path, err)
	}
	return path, nil
}

// Read loads a previously written artifact.
func Read(path string) (execution.Summary, error) {
	var summary execution.Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("failed to read audit file: %w", err)
	}
	if err = json.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("failed to parse audit file %s: %w", path, err)
	}
	return summary, nil
}

// Latest returns the path of the newest artifact in dir. File names start
// with the run timestamp, so the newest sorts last.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", dir, ErrNoRuns)
		}
		return "", fmt.Errorf("failed to list audit dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%s: %w", dir, ErrNoRuns)
	}
	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
