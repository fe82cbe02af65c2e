package encoder

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/1F47E/go-tilereel/internal/config"
	"github.com/1F47E/go-tilereel/internal/logger"
	"github.com/1F47E/go-tilereel/internal/storage"
)

var (
	ErrDecode        = errors.New("cannot decode image")
	ErrInvalidRegion = errors.New("invalid crop region")
)

const jpegQuality = 95

// Decode reads the image at path. Every call decodes from disk, nothing is cached.
func Decode(path string) (image.Image, error) {
	file, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrDecode, path, err)
	}
	return img, nil
}

// Size decodes only the header of the image at path.
func Size(path string) (width, height int, err error) {
	file, err := storage.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("%w %s: %v", ErrDecode, path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Crop returns the w x h region of img whose top-left corner is (x, y),
// relative to the image origin. The result keeps the source coordinates,
// so its Bounds().Min is (x, y) for images anchored at (0, 0).
func Crop(img image.Image, x, y, w, h int) (image.Image, error) {
	b := img.Bounds()
	r := image.Rect(x, y, x+w, y+h).Add(b.Min)
	if w <= 0 || h <= 0 || !r.In(b) {
		return nil, fmt.Errorf("%w: x=%d y=%d w=%d h=%d outside %dx%d image",
			ErrInvalidRegion, x, y, w, h, b.Dx(), b.Dy())
	}
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r), nil
	}
	dst := image.NewNRGBA(r)
	draw.Draw(dst, r, img, r.Min, draw.Src)
	return dst, nil
}

type FrameEncoder struct {
	format string
}

func NewFrameEncoder(format string) *FrameEncoder {
	return &FrameEncoder{format: format}
}

func (f *FrameEncoder) Ext() string {
	return f.format
}

// Save encodes img into path using the encoder format.
func (f *FrameEncoder) Save(path string, img image.Image) error {
	imgFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create file %s: %w", path, err)
	}
	if err := f.encode(imgFile, img); err != nil {
		imgFile.Close()
		return fmt.Errorf("cannot encode to file %s: %w", path, err)
	}
	return imgFile.Close()
}

func (f *FrameEncoder) encode(file *os.File, img image.Image) error {
	switch f.format {
	case config.FormatJPEG:
		return jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return png.Encode(file, img)
	}
}

// FormatFromPath picks the frame format matching the file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return config.FormatJPEG
	default:
		return config.FormatPNG
	}
}

// CreateSample writes a test main image of the given size to path unless
// a file is already there. Reports whether a file was created.
func CreateSample(path string, width, height int) (bool, error) {
	log := logger.Log.WithField("scope", "sample image")
	ok, err := storage.Exists(path)
	if err != nil {
		return false, err
	}
	if ok {
		log.Infof("Main image already exists at %s", path)
		return false, nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// red background with a gradient so neighbouring frames differ
			img.Set(x, y, color.NRGBA{
				R: 255,
				G: uint8(x * 255 / max(width-1, 1)),
				B: uint8(y * 255 / max(height-1, 1)),
				A: 255,
			})
		}
	}

	label := "tilereel"
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{0, 0, 255, 255}),
		Face: face,
	}
	textWidth := d.MeasureString(label).Round()
	d.Dot = fixed.P((width-textWidth)/2, (height+face.Ascent)/2)
	d.DrawString(label)

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return false, err
	}
	log.Infof("Creating main image %s (%dx%d)", path, width, height)
	if err := NewFrameEncoder(FormatFromPath(path)).Save(path, img); err != nil {
		return false, err
	}
	return true, nil
}
