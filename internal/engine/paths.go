package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// pathBook hands out final paths so that no two live tasks share a .part or
// final file. A path already on disk is never handed to a fresh task.
type pathBook struct {
	mu     sync.Mutex
	owners map[string]string // final path -> task id
}

func newPathBook() *pathBook {
	return &pathBook{owners: make(map[string]string)}
}

// reserve picks a free final path for name in dir, adding " (n)" before the
// extension when the plain name is taken.
func (b *pathBook) reserve(id, dir, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; b.takenLocked(id, candidate); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}

	b.owners[candidate] = id
	return candidate
}

// claim records a path restored from a snapshot. The files on disk are the
// task's own, so only other tasks' claims count.
func (b *pathBook) claim(id, path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, ok := b.owners[path]; ok && owner != id {
		return false
	}
	b.owners[path] = id
	return true
}

func (b *pathBook) release(id, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.owners[path] == id {
		delete(b.owners, path)
	}
}

func (b *pathBook) takenLocked(id, final string) bool {
	if owner, ok := b.owners[final]; ok {
		return owner != id
	}
	return exists(final) || exists(final+partSuffix)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
