package core

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/encoder"
	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/meta"
	"github.com/1F47E/go-tilereel/internal/storage"
)

// testConfig returns a 16x12 image split into 8x8 frames: 9 per row, 45 total.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.ImagePath = filepath.Join(dir, "main.png")
	c.ImageHeight, c.ImageWidth = 12, 16
	c.TileHeight, c.TileWidth = 8, 8
	c.FramesDir = filepath.Join(dir, "frames")
	c.ArchivePath = filepath.Join(dir, "frames.zip")
	c.MetadataPath = filepath.Join(dir, "meta.json")
	c.Workers = 4
	c.Delay = 0
	c.PollInterval = 10 * time.Millisecond
	c.GenerateGrace = 5 * time.Second
	c.ReproduceGrace = 5 * time.Second
	_, err := encoder.CreateSample(c.ImagePath, c.ImageWidth, c.ImageHeight)
	require.NoError(t, err)
	return c
}

func countZipEntries(t *testing.T, path string) int {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	return len(zr.File)
}

func TestNewGenerator(t *testing.T) {
	c := config.Default()
	assert.IsType(t, &SerialEngine{}, NewGenerator(c, false))
	assert.IsType(t, &ParallelEngine{}, NewGenerator(c, true))
}

func TestGeneratePhysical(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "serial"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			c := testConfig(t)
			rep, err := NewGenerator(c, parallel).GeneratePhysical(context.Background())
			require.NoError(t, err)

			assert.Equal(t, uint64(45), rep.Total)
			assert.Equal(t, uint64(45), rep.Succeeded)
			assert.Zero(t, rep.Failed)
			assert.Equal(t, 45, rep.Archived)
			assert.False(t, rep.ShutdownTimedOut)

			files, err := storage.ScanFrames(c.FramesDir)
			require.NoError(t, err)
			require.Len(t, files, 45)
			assert.Equal(t, "frame_00000.png", filepath.Base(files[0]))
			assert.Equal(t, "frame_00044.png", filepath.Base(files[44]))
			assert.Equal(t, 45, countZipEntries(t, c.ArchivePath))
		})
	}
}

func TestSerialAndParallelProduceIdenticalFrames(t *testing.T) {
	c := testConfig(t)
	same, err := Compare(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, same)

	for _, dir := range []string{c.FramesDir + "_serial", c.FramesDir + "_parallel"} {
		ok, err := storage.Exists(dir)
		require.NoError(t, err)
		assert.False(t, ok, "%s is cleaned up", dir)
	}
}

func TestCompareDetectsDifference(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(a, "frame_00000.png"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "frame_00000.png"), []byte("abd"), 0o644))

	same, err := compareDirs(a, b)
	assert.False(t, same)
	assert.ErrorContains(t, err, "position 2")
}

func TestSerialGenerateMissingImage(t *testing.T) {
	c := testConfig(t)
	c.ImagePath = filepath.Join(t.TempDir(), "missing.png")

	_, err := NewSerialEngine(c).GeneratePhysical(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrMissingFile))

	files, err := storage.ScanFrames(c.FramesDir)
	require.NoError(t, err)
	assert.Empty(t, files, "no frame is written")
}

func TestSerialGenerateInvalidRegionAborts(t *testing.T) {
	c := testConfig(t)
	c.ImageWidth = 20 // the image is only 16 wide

	rep, err := NewSerialEngine(c).GeneratePhysical(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, encoder.ErrInvalidRegion))
	assert.Equal(t, uint64(9), rep.Succeeded, "aborts at the first frame past the edge")

	ok, err := storage.Exists(c.ArchivePath)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParallelGenerateIsolatesFailures(t *testing.T) {
	c := testConfig(t)
	c.ImageWidth = 20 // 13 frames per row, only x <= 8 fit in the image

	rep, err := NewParallelEngine(c).GeneratePhysical(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(65), rep.Total)
	assert.Equal(t, uint64(45), rep.Succeeded)
	assert.Equal(t, uint64(20), rep.Failed)
	assert.Equal(t, 45, rep.Archived)
}

func TestParallelGenerateResultWindowWraps(t *testing.T) {
	c := testConfig(t)
	c.Workers = 1 // 4 result slots for 65 frames
	c.ImageWidth = 20

	rep, err := NewParallelEngine(c).GeneratePhysical(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(45), rep.Succeeded)
	assert.Equal(t, uint64(20), rep.Failed)

	grid := c.Grid()
	for i := uint64(0); i < grid.Total(); i++ {
		x, _, err := grid.Coordinates(i)
		require.NoError(t, err)
		ok, err := storage.Exists(storage.FramePath(c.FramesDir, i, "png"))
		require.NoError(t, err)
		assert.Equal(t, x <= 8, ok, "frame %d", i)
	}
}

func TestParallelGenerateLogsEachFailureOnce(t *testing.T) {
	old := logger.Log.ReplaceHooks(make(logrus.LevelHooks))
	defer logger.Log.ReplaceHooks(old)
	hook := logtest.NewLocal(logger.Log)

	c := testConfig(t)
	c.ImageWidth = 20
	rep, err := NewParallelEngine(c).GeneratePhysical(context.Background())
	require.NoError(t, err)

	warned := map[interface{}]int{}
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			if id, ok := e.Data["frame"]; ok {
				warned[id]++
			}
		}
	}
	assert.Len(t, warned, int(rep.Failed))
	for id, n := range warned {
		assert.Equal(t, 1, n, "frame %v", id)
	}
}

func TestParallelGenerateMissingImage(t *testing.T) {
	c := testConfig(t)
	c.ImagePath = filepath.Join(t.TempDir(), "missing.png")

	rep, err := NewParallelEngine(c).GeneratePhysical(context.Background())
	require.NoError(t, err, "task failures never fail the engine")
	assert.Equal(t, uint64(45), rep.Failed)
	assert.Zero(t, rep.Succeeded)
	assert.Zero(t, rep.Archived)
}

func TestParallelGenerateSingleWorker(t *testing.T) {
	c := testConfig(t)
	c.Workers = 1
	rep, err := NewParallelEngine(c).GeneratePhysical(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(45), rep.Succeeded)
}

func TestParallelGenerateCancelled(t *testing.T) {
	c := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParallelEngine(c).GeneratePhysical(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateMetadata(t *testing.T) {
	c := testConfig(t)
	e := NewSerialEngine(c)
	require.NoError(t, e.GenerateMetadata(context.Background()))

	records, err := meta.Load(c.MetadataPath)
	require.NoError(t, err)
	require.Len(t, records, 45)
	assert.Equal(t, meta.FrameMetadata{ID: 10, X: 1, Y: 1, Width: 8, Height: 8, SourcePath: c.ImagePath}, records[10])
}

func TestGenerateMetadataWriteFailure(t *testing.T) {
	c := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	c.MetadataPath = filepath.Join(blocker, "meta.json")

	assert.Error(t, NewSerialEngine(c).GenerateMetadata(context.Background()))
}

func TestEnsureMetadata(t *testing.T) {
	c := testConfig(t)
	e := NewSerialEngine(c)

	require.NoError(t, e.EnsureMetadata(context.Background()))
	records, err := meta.Load(c.MetadataPath)
	require.NoError(t, err)
	assert.Len(t, records, 45)

	require.NoError(t, meta.Save(c.MetadataPath, records[:3]))
	require.NoError(t, e.EnsureMetadata(context.Background()))
	records, err = meta.Load(c.MetadataPath)
	require.NoError(t, err)
	assert.Len(t, records, 3, "existing file is kept")
}

func TestReproduceFrame(t *testing.T) {
	c := testConfig(t)
	c.ImageHeight, c.ImageWidth = 64, 64
	c.TileHeight, c.TileWidth = 32, 32
	require.NoError(t, os.Remove(c.ImagePath))
	_, err := encoder.CreateSample(c.ImagePath, 64, 64)
	require.NoError(t, err)

	e := NewSerialEngine(c)
	require.NoError(t, e.GenerateMetadata(context.Background()))

	testCases := []struct {
		id   uint64
		x, y int
	}{
		{id: 10, x: 10, y: 0},
		{id: 100, x: 1, y: 3},
	}
	for _, tc := range testCases {
		img, err := e.ReproduceFrame(context.Background(), tc.id)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(tc.x, tc.y, tc.x+32, tc.y+32), img.Bounds())
	}

	_, err = e.ReproduceFrame(context.Background(), 1089)
	assert.True(t, errors.Is(err, frames.ErrOutOfRange))
}

func TestReproduceFrameAfterImageShrunk(t *testing.T) {
	c := testConfig(t)
	e := NewSerialEngine(c)
	require.NoError(t, e.GenerateMetadata(context.Background()))

	require.NoError(t, os.Remove(c.ImagePath))
	_, err := encoder.CreateSample(c.ImagePath, 10, 10)
	require.NoError(t, err)

	_, err = e.ReproduceFrame(context.Background(), 0)
	require.NoError(t, err)
	_, err = e.ReproduceFrame(context.Background(), 44)
	assert.True(t, errors.Is(err, encoder.ErrInvalidRegion))
}

func TestReproduceFrameMetadataMissing(t *testing.T) {
	c := testConfig(t)
	_, err := NewSerialEngine(c).ReproduceFrame(context.Background(), 0)
	assert.True(t, errors.Is(err, meta.ErrLoad))
}
