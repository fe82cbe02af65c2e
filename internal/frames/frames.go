// Package frames maps dense frame ids to tile origins.
//
// Frames are every placement of an m x n tile inside an M x N image, ranked in
// row-major order: id 0 is the top-left tile, ids grow along x first, then y.
package frames

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("frame id out of range")

// OutOfRangeError carries the offending id and the number of valid ids.
type OutOfRangeError struct {
	ID    uint64
	Total uint64
}

func (e *OutOfRangeError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("frame id %d out of range: no frames available", e.ID)
	}
	return fmt.Sprintf("frame id %d out of range [0, %d)", e.ID, e.Total)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Total returns the number of frames for a main image of height M, width N
// and tiles of height m, width n.
func Total(M, N, m, n int) uint64 {
	if M < m || N < n || m < 0 || n < 0 {
		return 0
	}
	return (uint64(M-m) + 1) * (uint64(N-n) + 1)
}

// Coordinates returns the top-left corner (x, y) of frame idx.
func Coordinates(idx uint64, M, N, m, n int) (x, y int, err error) {
	total := Total(M, N, m, n)
	if idx >= total {
		return 0, 0, &OutOfRangeError{ID: idx, Total: total}
	}
	perRow := uint64(N-n) + 1
	return int(idx % perRow), int(idx / perRow), nil
}

// Grid bundles the four dimensions of a run.
type Grid struct {
	Height     int // M
	Width      int // N
	TileHeight int // m
	TileWidth  int // n
}

func (g Grid) Total() uint64 {
	return Total(g.Height, g.Width, g.TileHeight, g.TileWidth)
}

// PerRow is the number of frames sharing one y, 0 when the tile does not fit.
func (g Grid) PerRow() int {
	if g.Total() == 0 {
		return 0
	}
	return g.Width - g.TileWidth + 1
}

func (g Grid) Coordinates(idx uint64) (x, y int, err error) {
	return Coordinates(idx, g.Height, g.Width, g.TileHeight, g.TileWidth)
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d image, %dx%d tiles", g.Width, g.Height, g.TileWidth, g.TileHeight)
}
