// All files related functions
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/1F47E/go-tilereel/internal/logger"
)

var ErrMissingFile = errors.New("file not found")

const framePrefix = "frame_"

// FramePath returns <dir>/frame_<id:05d>.<ext>.
func FramePath(dir string, id uint64, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%05d.%s", framePrefix, id, ext))
}

func CreateFramesDir(dir string) error {
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return fmt.Errorf("error creating frames dir %s: %w", dir, err)
	}
	return nil
}

// ScanFrames lists frame files in dir, sorted by name.
func ScanFrames(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	filesList := make([]string, 0, len(files))
	for _, file := range files {
		if file.Type().IsRegular() && strings.HasPrefix(file.Name(), framePrefix) {
			filesList = append(filesList, filepath.Join(dir, file.Name()))
		}
	}
	sort.Strings(filesList)
	return filesList, nil
}

// Exists reports whether path exists. Errors other than not-exist are returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Open wraps os.Open, mapping a missing path to ErrMissingFile.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	return f, err
}

// Clean removes every path (files or whole directories) that exists.
func Clean(paths ...string) error {
	log := logger.Log.WithField("scope", "storage clean")
	for _, p := range paths {
		ok, err := Exists(p)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("cannot remove %s: %w", p, err)
		}
		log.Debugf("removed %s", p)
	}
	return nil
}

// WriteAtomic writes data to a temp file next to path and renames it over path,
// so readers see either the old content or the new one.
func WriteAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
