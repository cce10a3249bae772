// Package staging manages short-lived files in a scratch directory. Payloads
// are staged before they touch the network and destination buffers are staged
// before a download is verified, so a crashed or cancelled transfer never
// leaves partial data outside the staging directory.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"lukechampine.com/frand"
)

type (
	// A Stager creates uniquely named files in a scratch directory.
	Stager struct {
		dir string
		log *zap.Logger

		counter atomic.Uint64
	}

	// A Handle is a staged file. Release removes the file from disk and may
	// be called any number of times; only the first call has an effect.
	Handle struct {
		path string
		log  *zap.Logger
		once sync.Once
	}
)

// New returns a Stager rooted at dir, creating the directory if necessary.
func New(dir string, log *zap.Logger) (*Stager, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir, log: log}, nil
}

// sanitize strips a name down to a safe filename fragment.
func sanitize(name string) string {
	name = filepath.Base(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	s := sb.String()
	if len(s) > 64 {
		s = s[len(s)-64:]
	}
	if s == "" || s == "." || s == ".." {
		s = "payload"
	}
	return s
}

func (s *Stager) newHandle(name string) *Handle {
	// the counter and random suffix make the path unique for the lifetime of
	// the process, so concurrent stages of the same name never collide
	filename := fmt.Sprintf("%d-%x-%s", s.counter.Add(1), frand.Bytes(4), sanitize(name))
	return &Handle{
		path: filepath.Join(s.dir, filename),
		log:  s.log,
	}
}

// Stage writes data to a new staged file and returns its handle.
func (s *Stager) Stage(name string, data []byte) (*Handle, error) {
	h := s.newHandle(name)
	if err := os.WriteFile(h.path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}
	return h, nil
}

// Create returns a handle to a new empty staged file, for use as a download
// destination.
func (s *Stager) Create(name string) (*Handle, error) {
	h := s.newHandle(name)
	f, err := os.Create(h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	} else if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close staged file: %w", err)
	}
	return h, nil
}

// Path returns the staged file's location on disk.
func (h *Handle) Path() string {
	return h.path
}

// Open opens the staged file for reading. Callers may open the file any
// number of times before Release.
func (h *Handle) Open() (*os.File, error) {
	return os.Open(h.path)
}

// Release removes the staged file. Failure to remove is logged, not
// returned; the staging directory is scratch space and a leftover file must
// not fail the operation that staged it.
func (h *Handle) Release() {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.log.Warn("failed to remove staged file", zap.String("path", h.path), zap.Error(err))
		}
	})
}
