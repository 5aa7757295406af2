package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// File keeps one JSON document per key inside Dir. Writes go through a temp file and a
// rename so a reader never observes a partially written state.
type File struct {
	Dir string
}

// NewFile returns a File backend rooted at dir, creating the directory when missing.
func NewFile(dir string) (*File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: file directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &File{Dir: dir}, nil
}

// Path returns the file that holds key.
func (f *File) Path(key string) (string, error) {
	name := fileName(key)
	if name == "" {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.Dir, name), nil
}

// Load reads the document stored for key.
func (f *File) Load(_ context.Context, key string) ([]byte, error) {
	path, err := f.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Save atomically replaces the document for key.
func (f *File) Save(_ context.Context, key string, data []byte) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Delete removes the document for key.
func (f *File) Delete(_ context.Context, key string) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Ping verifies the directory is still reachable.
func (f *File) Ping(_ context.Context) error {
	info, err := os.Stat(f.Dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: %s is not a directory", f.Dir)
	}
	return nil
}

// Watch calls fn with the new contents whenever the document for key changes on disk, and
// with nil when it is removed. It blocks until ctx is cancelled.
func (f *File) Watch(ctx context.Context, key string, fn func([]byte)) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: new watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: Save replaces the file through a rename.
	if err := watcher.Add(f.Dir); err != nil {
		return fmt.Errorf("storage: watch dir: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("storage: watch: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove):
				fn(nil)
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write), ev.Has(fsnotify.Rename):
				data, err := os.ReadFile(path)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						fn(nil)
					}
					continue
				}
				fn(data)
			}
		}
	}
}

func fileName(key string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || strings.Trim(name, ".") == "" {
		return ""
	}
	return name + ".json"
}
