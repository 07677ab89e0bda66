package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	fileWatchBuffer = 16
	fileOrigin      = "file"
)

// File keeps token keys in a JSON object on disk, shared by every process that opens
// the same path. Writes are atomic (temp file + rename) and the file is mode 0600.
type File struct {
	path string

	mu   sync.Mutex
	last map[string]string
}

// NewFile returns a file-backed storage context for path. The file and its parent
// directory are created on first write.
func NewFile(path string) *File {
	return &File{
		path: filepath.Clean(path),
		last: map[string]string{},
	}
}

// Path returns the token file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	if err := f.write(values); err != nil {
		return err
	}
	f.last = values
	return nil
}

func (f *File) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := values[key]; ok {
			delete(values, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := f.write(values); err != nil {
		return err
	}
	f.last = values
	return nil
}

// RemoveIf checks and removes under the same lock as every other call on f. Another
// process writing the file in between is not excluded; the rename keeps the file whole
// but the later writer wins.
func (f *File) RemoveIf(_ context.Context, key, expected string, also ...string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return false, err
	}
	if v, ok := values[key]; ok && v != expected {
		return false, nil
	}
	changed := false
	for _, k := range append([]string{key}, also...) {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return true, nil
	}
	if err := f.write(values); err != nil {
		return false, err
	}
	f.last = values
	return true, nil
}

// Watch reports keys changed by other processes. Changes are found by diffing the file
// against the last content this value observed or wrote, so its own writes never show up.
func (f *File) Watch(ctx context.Context) (<-chan Change, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	f.mu.Lock()
	if values, err := f.read(); err == nil {
		f.last = values
	}
	f.mu.Unlock()

	out := make(chan Change, fileWatchBuffer)
	go func() {
		defer close(out)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				for _, key := range f.diff() {
					select {
					case out <- Change{Key: key, Origin: fileOrigin}:
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

func (f *File) diff() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		// Likely a torn read; the rename that completes the write fires another event.
		return nil
	}

	var changed []string
	for k, v := range current {
		if old, ok := f.last[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range f.last {
		if _, ok := current[k]; !ok {
			changed = append(changed, k)
		}
	}
	f.last = current
	sort.Strings(changed)
	return changed
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendUnavailable, f.path, err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
