package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ResultSuffix is appended to the source name to form the side view file
const ResultSuffix = ".result.json"

// ResultPath returns the side view file for source: "deploy.azcli" → "deploy.result.json"
func ResultPath(source string) string {
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + ResultSuffix
}

// FileHost keeps the side view for one source file next to it on disk
type FileHost struct {
	source string
}

// NewFileHost creates a host for the given source file
func NewFileHost(source string) *FileHost {
	return &FileHost{source: source}
}

// OpenSideView creates (or truncates) the result file
func (h *FileHost) OpenSideView(ctx context.Context) (SideView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := &FileView{id: uuid.NewString(), path: ResultPath(h.source)}
	if err := v.write(""); err != nil {
		return nil, err
	}
	return v, nil
}

// FileView is a side view backed by a file. Deleting the file closes the view.
type FileView struct {
	id     string
	path   string
	mu     sync.Mutex
	closed bool
}

// ID returns the view identity
func (v *FileView) ID() string {
	return v.id
}

// Path returns the result file path
func (v *FileView) Path() string {
	return v.path
}

// Replace atomically rewrites the result file
func (v *FileView) Replace(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.Closed() {
		return ErrViewClosed
	}
	return v.write(content)
}

func (v *FileView) write(content string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(v.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", v.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, v.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", v.path, err)
	}
	return nil
}

// Close removes the result file
func (v *FileView) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Closed reports whether Close was called or the file was deleted externally
func (v *FileView) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return true
	}
	if _, err := os.Stat(v.path); os.IsNotExist(err) {
		v.closed = true
	}
	return v.closed
}
