package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/storage"
)

// serial + parallel generation + compare.
// Both runs write next to the configured outputs and are removed afterwards.
func Compare(ctx context.Context, cfg config.Config) (bool, error) {
	serialCfg := withSuffix(cfg, "_serial")
	parallelCfg := withSuffix(cfg, "_parallel")
	defer func() {
		_ = storage.Clean(serialCfg.FramesDir, serialCfg.ArchivePath, parallelCfg.FramesDir, parallelCfg.ArchivePath)
	}()

	if _, err := NewSerialEngine(serialCfg).GeneratePhysical(ctx); err != nil {
		return false, fmt.Errorf("serial run: %w", err)
	}
	if _, err := NewParallelEngine(parallelCfg).GeneratePhysical(ctx); err != nil {
		return false, fmt.Errorf("parallel run: %w", err)
	}
	return compareDirs(serialCfg.FramesDir, parallelCfg.FramesDir)
}

func withSuffix(cfg config.Config, suffix string) config.Config {
	c := cfg
	c.Clean = true
	c.FramesDir = cfg.FramesDir + suffix
	ext := filepath.Ext(cfg.ArchivePath)
	c.ArchivePath = strings.TrimSuffix(cfg.ArchivePath, ext) + suffix + ext
	return c
}

// Compare frame files of two dirs by name and content
func compareDirs(dir1, dir2 string) (bool, error) {
	files1, err := storage.ScanFrames(dir1)
	if err != nil {
		return false, err
	}
	files2, err := storage.ScanFrames(dir2)
	if err != nil {
		return false, err
	}
	if len(files1) != len(files2) {
		return false, fmt.Errorf("frame count differs: %d vs %d", len(files1), len(files2))
	}
	for i := range files1 {
		if filepath.Base(files1[i]) != filepath.Base(files2[i]) {
			return false, fmt.Errorf("frame names differ: %s vs %s", files1[i], files2[i])
		}
		same, err := compareFiles(files1[i], files2[i])
		if err != nil || !same {
			return false, err
		}
	}
	return true, nil
}

// Compare two files byte by byte
func compareFiles(file1, file2 string) (bool, error) {
	b1, err := os.ReadFile(file1)
	if err != nil {
		return false, err
	}
	b2, err := os.ReadFile(file2)
	if err != nil {
		return false, err
	}
	if len(b1) != len(b2) {
		return false, fmt.Errorf("files %s and %s are not the same size", file1, file2)
	}
	for i := 0; i < len(b1); i++ {
		if b1[i] != b2[i] {
			return false, fmt.Errorf("files %s and %s differ at position %d", file1, file2, i)
		}
	}
	return true, nil
}
