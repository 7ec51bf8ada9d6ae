// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"github.com/Brownie44l1/qualitycast/internal/model"
)

var ErrDecode = errors.New("invalid image")

// SupportedFormats are the upload formats accepted by Decode.
var SupportedFormats = []string{"jpeg", "png"}

type Preprocessor struct {
	size      int
	colorMode string
	layout    string
	inputSize int
}

func New(meta model.Metadata) (*Preprocessor, error) {
	meta = meta.WithDefaults()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{
		size:      meta.ImageSize,
		colorMode: meta.ColorMode,
		layout:    meta.Layout,
		inputSize: meta.InputSize(),
	}, nil
}

// DefaultMaxPixels bounds the declared width*height of an upload when no
// limit is configured.
const DefaultMaxPixels = 40_000_000

// Inspect reads only the image header. It reports the format and rejects
// unsupported formats and images larger than maxPixels.
func Inspect(data []byte, maxPixels int) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrDecode)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !isSupported(format) {
		return format, fmt.Errorf("%w: unsupported format %q", ErrDecode, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return format, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}
	return format, nil
}

// Decode decodes a JPEG or PNG upload of at most maxPixels, applying its
// EXIF orientation.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	format, err := Inspect(data, maxPixels)
	if err != nil {
		return nil, format, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

func isSupported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Tensor converts img to the model's color mode, resizes it to the model's
// square input size and scales every channel to [0,1].
func (p *Preprocessor) Tensor(img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	var src image.Image
	if p.colorMode == model.ColorGrayscale {
		src = imaging.Grayscale(img)
	} else {
		src = imaging.Clone(img)
	}

	target := uint(p.size)
	resized := resize.Resize(target, target, src, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width != p.size || height != p.size {
		return nil, fmt.Errorf("%w: resized to %dx%d, expected %dx%d", model.ErrShapeMismatch, width, height, p.size, p.size)
	}

	channels := 1
	if p.colorMode == model.ColorRGB {
		channels = 3
	}

	inputData := make([]float32, channels*width*height)
	plane := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			values := [3]uint8{c.R, c.G, c.B}

			pixelIndex := y*width + x
			for ch := 0; ch < channels; ch++ {
				v := float32(values[ch]) / 255.0
				if p.layout == model.LayoutNCHW {
					inputData[ch*plane+pixelIndex] = v
				} else {
					inputData[pixelIndex*channels+ch] = v
				}
			}
		}
	}

	if len(inputData) != p.inputSize {
		return nil, fmt.Errorf("%w: produced %d values, expected %d", model.ErrShapeMismatch, len(inputData), p.inputSize)
	}
	return inputData, nil
}
