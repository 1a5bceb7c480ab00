/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per key under a directory.
type FileStore struct {
	dir  string
	logf func(format string, args ...any)
}

func NewFileStore(dir string, logf func(string, ...any)) (*FileStore, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &FileStore{dir: dir, logf: logf}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid session key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *FileStore) Save(_ context.Context, key string, snap Snapshot) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	data, err := snap.marshal()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	f.logf("STORE: wrote %s (%s)", path, humanReadableSize(int64(len(data))))

	return nil
}

func (f *FileStore) Load(_ context.Context, key string) (Snapshot, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return Snapshot{}, false, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Snapshot{}, false, nil
	case err != nil:
		return Snapshot{}, false, err
	}

	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (f *FileStore) Clear(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	f.logf("STORE: cleared %s", path)

	return nil
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
