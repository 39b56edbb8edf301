package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the docqa home directory.
	DefaultDirName = ".docqa"

	// DataDirName is the subdirectory for the chunk store and vector index.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// ChunkStoreFileName is the JSONL chunk store expected under DataDirName.
	ChunkStoreFileName = "chunks.jsonl"

	// BM25ArtifactFileName is the gob-encoded BM25 index expected under DataDirName.
	BM25ArtifactFileName = "bm25.idx"

	// TraceDirName is the subdirectory where agent run traces are written.
	TraceDirName = "traces"

	// ReportsDirName is the subdirectory where eval reports are written.
	ReportsDirName = "reports"
)

// Dir represents the docqa home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docqa).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ChunkStorePath returns the path to the JSONL chunk store.
func (d *Dir) ChunkStorePath() string {
	return filepath.Join(d.DataPath(), ChunkStoreFileName)
}

// BM25ArtifactPath returns the path to the persisted BM25 index.
func (d *Dir) BM25ArtifactPath() string {
	return filepath.Join(d.DataPath(), BM25ArtifactFileName)
}

// TraceDir returns the directory where agent run traces are written.
func (d *Dir) TraceDir() string {
	return filepath.Join(d.path, TraceDirName)
}

// TracePath returns the path to a specific agent run trace file.
func (d *Dir) TracePath(fileName string) string {
	return filepath.Join(d.TraceDir(), fileName)
}

// ReportsDir returns the directory where eval reports are written.
func (d *Dir) ReportsDir() string {
	return filepath.Join(d.path, ReportsDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create data directory (this also creates the parent)
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// EnsureTraceDir creates the trace directory if it doesn't exist.
func (d *Dir) EnsureTraceDir() error {
	return os.MkdirAll(d.TraceDir(), 0o755)
}

// EnsureReportsDir creates the reports directory if it doesn't exist.
func (d *Dir) EnsureReportsDir() error {
	return os.MkdirAll(d.ReportsDir(), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
