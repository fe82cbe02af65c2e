package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, uint64(1089), c.Grid().Total())
	assert.GreaterOrEqual(t, c.Workers, 1)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "empty image path", mutate: func(c *Config) { c.ImagePath = "" }},
		{name: "zero height", mutate: func(c *Config) { c.ImageHeight = 0 }},
		{name: "negative tile", mutate: func(c *Config) { c.TileWidth = -1 }},
		{name: "bad format", mutate: func(c *Config) { c.FrameFormat = "gif" }},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "negative K", mutate: func(c *Config) { c.Reproductions = -1 }},
		{name: "negative delay", mutate: func(c *Config) { c.Delay = -time.Second }},
		{name: "zero poll", mutate: func(c *Config) { c.PollInterval = 0 }},
		{name: "no metadata path", mutate: func(c *Config) { c.MetadataPath = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParse(t *testing.T) {
	src := []byte(`
image {
  path   = "big.jpg"
  height = 480
  width  = 640
}
tile {
  width  = 16
  format = "jpg"
}
output {
  metadata = "meta.json"
}
pool {
  workers       = 3
  reproductions = 50
  delay         = "5ms"
  clean         = true
}
`)
	c, err := Parse(src, "test.hcl", Default())
	require.NoError(t, err)

	assert.Equal(t, "big.jpg", c.ImagePath)
	assert.Equal(t, 480, c.ImageHeight)
	assert.Equal(t, 640, c.ImageWidth)
	assert.Equal(t, 32, c.TileHeight, "unset attribute keeps base value")
	assert.Equal(t, 16, c.TileWidth)
	assert.Equal(t, FormatJPEG, c.FrameFormat)
	assert.Equal(t, "physical_frames", c.FramesDir)
	assert.Equal(t, "meta.json", c.MetadataPath)
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, 50, c.Reproductions)
	assert.Equal(t, 5*time.Millisecond, c.Delay)
	assert.Equal(t, 500*time.Millisecond, c.PollInterval)
	assert.True(t, c.Clean)
	require.NoError(t, c.Validate())
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "syntax", src: `image {`},
		{name: "unknown block", src: `camera { }`},
		{name: "wrong type", src: `tile { width = "wide" }`},
		{name: "bad duration", src: `pool { delay = "soon" }`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "bad.hcl", Default())
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilereel.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`pool { workers = 2 }`), 0o644))

	c, err := LoadFile(path, Default())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Workers)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"), Default())
	assert.Error(t, err)
}
