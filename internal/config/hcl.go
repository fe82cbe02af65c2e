package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclFile is the layout of a tilereel.hcl file. Every attribute is optional,
// unset ones keep the value they had before the file was applied.
//
//	image {
//	  path   = "main_image.png"
//	  height = 64
//	  width  = 64
//	}
//	tile {
//	  height = 32
//	  width  = 32
//	  format = "png"
//	}
//	output {
//	  frames_dir = "physical_frames"
//	  archive    = "physical_frames.zip"
//	  metadata   = "virtual_frames_metadata.json"
//	}
//	pool {
//	  workers         = 8
//	  reproductions   = 10
//	  delay           = "1ms"
//	  poll_interval   = "500ms"
//	  generate_grace  = "60m"
//	  reproduce_grace = "5m"
//	  progress_every  = 100
//	}
type hclFile struct {
	Image  *hclImage  `hcl:"image,block"`
	Tile   *hclTile   `hcl:"tile,block"`
	Output *hclOutput `hcl:"output,block"`
	Pool   *hclPool   `hcl:"pool,block"`
}

type hclImage struct {
	Path   *string `hcl:"path,optional"`
	Height *int    `hcl:"height,optional"`
	Width  *int    `hcl:"width,optional"`
}

type hclTile struct {
	Height *int    `hcl:"height,optional"`
	Width  *int    `hcl:"width,optional"`
	Format *string `hcl:"format,optional"`
}

type hclOutput struct {
	FramesDir *string `hcl:"frames_dir,optional"`
	Archive   *string `hcl:"archive,optional"`
	Metadata  *string `hcl:"metadata,optional"`
}

type hclPool struct {
	Workers        *int    `hcl:"workers,optional"`
	Reproductions  *int    `hcl:"reproductions,optional"`
	Delay          *string `hcl:"delay,optional"`
	PollInterval   *string `hcl:"poll_interval,optional"`
	GenerateGrace  *string `hcl:"generate_grace,optional"`
	ReproduceGrace *string `hcl:"reproduce_grace,optional"`
	ProgressEvery  *int    `hcl:"progress_every,optional"`
	Clean          *bool   `hcl:"clean,optional"`
}

// LoadFile applies the HCL file at path on top of base.
func LoadFile(path string, base Config) (Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}
	return decode(f, path, base)
}

// Parse applies HCL source on top of base. filename is only used in diagnostics.
func Parse(src []byte, filename string, base Config) (Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}
	return decode(f, filename, base)
}

func decode(f *hcl.File, filename string, base Config) (Config, error) {
	var parsed hclFile
	diags := gohcl.DecodeBody(f.Body, nil, &parsed)
	if diags.HasErrors() {
		return base, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}

	c := base
	if img := parsed.Image; img != nil {
		setString(&c.ImagePath, img.Path)
		setInt(&c.ImageHeight, img.Height)
		setInt(&c.ImageWidth, img.Width)
	}
	if tile := parsed.Tile; tile != nil {
		setInt(&c.TileHeight, tile.Height)
		setInt(&c.TileWidth, tile.Width)
		setString(&c.FrameFormat, tile.Format)
	}
	if out := parsed.Output; out != nil {
		setString(&c.FramesDir, out.FramesDir)
		setString(&c.ArchivePath, out.Archive)
		setString(&c.MetadataPath, out.Metadata)
	}
	if pool := parsed.Pool; pool != nil {
		setInt(&c.Workers, pool.Workers)
		setInt(&c.Reproductions, pool.Reproductions)
		setInt(&c.ProgressEvery, pool.ProgressEvery)
		if pool.Clean != nil {
			c.Clean = *pool.Clean
		}
		durations := []struct {
			name string
			src  *string
			dst  *time.Duration
		}{
			{"delay", pool.Delay, &c.Delay},
			{"poll_interval", pool.PollInterval, &c.PollInterval},
			{"generate_grace", pool.GenerateGrace, &c.GenerateGrace},
			{"reproduce_grace", pool.ReproduceGrace, &c.ReproduceGrace},
		}
		for _, d := range durations {
			if d.src == nil {
				continue
			}
			v, err := time.ParseDuration(*d.src)
			if err != nil {
				return base, fmt.Errorf("config %s: pool.%s: %w", filename, d.name, err)
			}
			*d.dst = v
		}
	}
	return c, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
