package timesource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Common errors for file-backed time sources.
var (
	ErrNotFound  = errors.New("no time source file matches pattern")
	ErrMalformed = errors.New("malformed time source content")
)

// DefaultPattern matches the well-known naming scheme of externally
// maintained time files.
const DefaultPattern = "pulse-time-*"

// maxTimeFileSize bounds each poll read; a valid file holds one ASCII
// decimal line.
const maxTimeFileSize = 64

// File is a Source that polls an externally maintained time file,
// re-reading and re-parsing the full contents on every call.
//
// The file handle stays open for the life of the source; Close releases it.
// Not thread-safe on its own; the owning Heartbeat serializes calls under
// its mutex.
type File struct {
	path string
	f    *os.File
	buf  [maxTimeFileSize]byte
}

// Compile-time assertion that File implements Source.
var _ Source = (*File)(nil)

// Discover locates a time file by glob pattern under dir and opens it.
//
// Parameters:
//   - dir: Directory to search (defaults to os.TempDir() if empty)
//   - pattern: Glob pattern for the file name (defaults to DefaultPattern if empty)
//
// Returns:
//   - *File: Source polling the first matching file
//   - error: ErrNotFound if nothing matches
func Discover(dir, pattern string) (*File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for time source file: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(dir, pattern))
	}

	return Open(matches[0])
}

// Open opens the time file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open time source file: %w", err)
	}

	return &File{path: path, f: f}, nil
}

// Path returns the path of the polled file.
func (s *File) Path() string {
	return s.path
}

// Now re-reads the file and parses its single ASCII decimal line.
//
// Unreadable or non-numeric content returns 0 together with an error
// wrapping ErrMalformed; callers degrade to the zero value instead of
// failing the beat.
func (s *File) Now() (int64, error) {
	n, err := s.f.ReadAt(s.buf[:], 0)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read time source file: %w", err)
	}

	text := bytes.TrimSpace(s.buf[:n])
	value, perr := strconv.ParseInt(string(text), 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, text)
	}

	return value, nil
}

// Close releases the file handle. Safe to call more than once.
func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil

	return f.Close()
}
