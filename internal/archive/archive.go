package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/storage"
)

// Archive packs every regular file directly inside srcDir into a flat zip at
// dest. Subdirectories are skipped. Returns the number of files written.
func Archive(srcDir, dest string) (int, error) {
	log := logger.Log.WithField("scope", "archive")
	start := time.Now()
	log.Infof("Compressing %s into %s", srcDir, dest)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return 0, fmt.Errorf("cannot read frames dir %s: %w", srcDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	err = storage.WriteAtomic(dest, func(f *os.File) error {
		zw := zip.NewWriter(f)
		for _, name := range names {
			if err := addFile(zw, filepath.Join(srcDir, name), name); err != nil {
				zw.Close()
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("cannot write archive %s: %w", dest, err)
	}

	log.Infof("Compression of %d files completed in %s", len(names), time.Since(start).Round(time.Millisecond))
	return len(names), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
