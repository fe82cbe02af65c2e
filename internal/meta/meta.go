package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/1F47E/go-tilereel/internal/frames"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/storage"
)

var ErrLoad = errors.New("cannot load frame metadata")

// FrameMetadata describes one virtual frame: the region of the source image
// it is cropped from.
type FrameMetadata struct {
	ID         uint64 `json:"id"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SourcePath string `json:"mainImagePath"`
}

func (m *FrameMetadata) Print() string {
	return fmt.Sprintf("Frame %d: x=%d y=%d %dx%d from %s", m.ID, m.X, m.Y, m.Width, m.Height, m.SourcePath)
}

// Build returns one record per frame of grid, ordered by id.
func Build(grid frames.Grid, source string) []FrameMetadata {
	total := grid.Total()
	records := make([]FrameMetadata, 0, total)
	for i := uint64(0); i < total; i++ {
		// i < total, coordinates can not fail
		x, y, _ := grid.Coordinates(i)
		records = append(records, FrameMetadata{
			ID:         i,
			X:          x,
			Y:          y,
			Width:      grid.TileWidth,
			Height:     grid.TileHeight,
			SourcePath: source,
		})
	}
	return records
}

// Save writes records as pretty-printed JSON. The file at path is replaced
// as a whole or left untouched.
func Save(path string, records []FrameMetadata) error {
	if records == nil {
		records = []FrameMetadata{}
	}
	err := storage.WriteAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	})
	if err != nil {
		return fmt.Errorf("cannot write frame metadata %s: %w", path, err)
	}
	return nil
}

// Load reads the full record list. Any failure, including records out of id
// order, wraps ErrLoad.
func Load(path string) ([]FrameMetadata, error) {
	log := logger.Log.WithField("scope", "meta loader")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %s", ErrLoad, storage.ErrMissingFile, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	var records []FrameMetadata
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	for i := range records {
		if records[i].ID != uint64(i) {
			return nil, fmt.Errorf("%w: %s: record %d has id %d", ErrLoad, path, i, records[i].ID)
		}
	}
	log.Debugf("Loaded %d records from %s", len(records), path)
	return records, nil
}
