// Package archive appends ingested match summaries to rotating JSONL files.
// Files move hot -> warm when they fill up or age out, and warm files can be
// gzipped into cold storage.
package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// Rotation triggers
	DefaultMaxEntries = 1000
	DefaultMaxAge     = time.Hour
)

// Rotator writes entries to the current hot file and rotates it.
type Rotator struct {
	mu sync.Mutex

	hotDir  string // active writes
	warmDir string // closed files
	coldDir string // gzip archives

	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
	log        *zap.SugaredLogger

	currentFile   *os.File
	currentWriter *bufio.Writer
	currentPath   string
	entryCount    int
	fileOpenedAt  time.Time
	seq           int
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithMaxEntries sets how many entries a file holds before rotating.
func WithMaxEntries(n int) Option {
	return func(r *Rotator) { r.maxEntries = n }
}

// WithMaxAge sets how long a file stays open before rotating.
func WithMaxAge(d time.Duration) Option {
	return func(r *Rotator) { r.maxAge = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Rotator) { r.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// NewRotator creates the hot/warm/cold layout under baseDir and opens the
// first hot file.
func NewRotator(baseDir string, opts ...Option) (*Rotator, error) {
	r := &Rotator{
		hotDir:     filepath.Join(baseDir, "hot"),
		warmDir:    filepath.Join(baseDir, "warm"),
		coldDir:    filepath.Join(baseDir, "cold"),
		maxEntries: DefaultMaxEntries,
		maxAge:     DefaultMaxAge,
		now:        time.Now,
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, dir := range []string{r.hotDir, r.warmDir, r.coldDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Append writes one entry as a JSON line, flushes, and rotates if needed.
func (r *Rotator) Append(entry any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return fmt.Errorf("archive closed")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := r.currentWriter.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	r.entryCount++
	if r.shouldRotate() {
		return r.rotate()
	}
	return nil
}

func (r *Rotator) shouldRotate() bool {
	if r.currentFile == nil {
		return true
	}
	if r.entryCount >= r.maxEntries {
		return true
	}
	return r.now().Sub(r.fileOpenedAt) >= r.maxAge
}

// rotate moves the current file to warm (when it holds data) and opens a
// new hot file.
func (r *Rotator) rotate() error {
	if err := r.closeCurrent(); err != nil {
		return err
	}

	r.seq++
	filename := fmt.Sprintf("matches_%s_%03d.jsonl", r.now().UTC().Format("2006-01-02_15-04-05"), r.seq)
	r.currentPath = filepath.Join(r.hotDir, filename)

	file, err := os.Create(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	r.currentFile = file
	r.currentWriter = bufio.NewWriterSize(file, 64*1024)
	r.entryCount = 0
	r.fileOpenedAt = r.now()

	r.log.Debugw("opened archive file", "file", filename)
	return nil
}

func (r *Rotator) closeCurrent() error {
	if r.currentFile == nil {
		return nil
	}

	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := r.currentFile.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	r.currentFile = nil

	if r.entryCount == 0 {
		_ = os.Remove(r.currentPath)
		return nil
	}

	warmPath := filepath.Join(r.warmDir, filepath.Base(r.currentPath))
	if err := os.Rename(r.currentPath, warmPath); err != nil {
		return fmt.Errorf("failed to move to warm storage: %w", err)
	}
	r.log.Infow("moved archive file to warm", "file", filepath.Base(r.currentPath), "entries", r.entryCount)
	return nil
}

// Close flushes the hot file and moves it to warm if it has data.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCurrent()
}

// Stats returns the current file's entry count and name.
func (r *Rotator) Stats() (entriesInCurrentFile int, currentFileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryCount, filepath.Base(r.currentPath)
}

// WarmDir returns the directory holding closed files.
func (r *Rotator) WarmDir() string { return r.warmDir }

// CompressWarm gzips every warm file into cold storage and returns how many
// were moved.
func (r *Rotator) CompressWarm() (int, error) {
	paths, err := filepath.Glob(filepath.Join(r.warmDir, "*.jsonl"))
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := CompressToCold(p, r.coldDir); err != nil {
			return i, err
		}
		r.log.Infow("compressed archive file", "file", filepath.Base(p))
	}
	return len(paths), nil
}

// CompressToCold compresses a warm file into coldDir and removes the original.
func CompressToCold(warmPath, coldDir string) error {
	src, err := os.Open(warmPath)
	if err != nil {
		return err
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(warmPath)+".gz")
	dst, err := os.Create(coldPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	return os.Remove(warmPath)
}
