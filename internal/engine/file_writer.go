package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter owns the open .part handles. Each path belongs to exactly one
// task at a time.
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		handles: make(map[string]*fileHandle),
	}
}

// Open prepares path for writing from offset. Anything on disk past offset
// is cut off, and a file shorter than offset is reported so the caller can
// restart. The returned value is the offset writing will continue from.
func (fw *FileWriter) Open(path string, offset int64) (int64, error) {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := h.file.Stat()
	if err != nil {
		return 0, err
	}

	if info.Size() < offset {
		offset = 0
	}

	if err := h.file.Truncate(offset); err != nil {
		return 0, fmt.Errorf("failed to truncate %s: %w", path, err)
	}

	return offset, nil
}

// WriteAt finds the handle and performs a thread-safe write
func (fw *FileWriter) WriteAt(path string, data []byte, offset int64) error {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if !ok {
		return fmt.Errorf("write to %s: %w", path, os.ErrClosed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.file.WriteAt(data, offset)
	return err
}

func (fw *FileWriter) getOrCreateFile(path string) (*fileHandle, error) {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if ok {
		return h, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok = fw.handles[path]
	if ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open part file: %w", err)
	}

	h = &fileHandle{file: f}
	fw.handles[path] = h

	return h, nil
}

// CloseFile syncs and closes path. Closing an unknown path is a no-op.
func (fw *FileWriter) CloseFile(path string) error {
	fw.mu.Lock()
	h, ok := fw.handles[path]
	if !ok {
		fw.mu.Unlock()
		return nil
	}
	delete(fw.handles, path)
	fw.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.file.Sync()
	return h.file.Close()
}

// Discard closes path and deletes it from disk.
func (fw *FileWriter) Discard(path string) error {
	if path == "" {
		return nil
	}
	if err := fw.CloseFile(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	// Collect keys first because CloseFile modifies the map
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.RUnlock()

	for _, path := range paths {
		_ = fw.CloseFile(path) // Ignore error on global cleanup
	}
}
