package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrShapeMismatch = errors.New("shape mismatch")

const (
	ColorGrayscale = "grayscale"
	ColorRGB       = "rgb"

	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

type Metadata struct {
	InputShape   []int64  `json:"input_shape"`
	OutputShape  []int64  `json:"output_shape"`
	Classes      []string `json:"classes,omitempty"`
	ImageSize    int      `json:"image_size"`
	ColorMode    string   `json:"color_mode"`
	Layout       string   `json:"layout"`
	InputName    string   `json:"input_name"`
	OutputName   string   `json:"output_name"`
	ApplySoftmax bool     `json:"apply_softmax"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type ClassScore struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Percent    string  `json:"percent"`
}

type PredictionResponse struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename,omitempty"`
	Class       string             `json:"class"`
	Confidence  float64            `json:"confidence"`
	Complement  *float64           `json:"complement,omitempty"`
	Predictions []ClassScore       `json:"predictions"`
	Percentages map[string]float64 `json:"percentages"`
	Cached      bool               `json:"cached"`
}

// LoadMetadata reads the model metadata file and fills in defaults for the
// optional fields.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	meta = meta.WithDefaults()
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// WithDefaults returns a copy with the optional fields filled in.
func (m Metadata) WithDefaults() Metadata {
	if m.ImageSize == 0 {
		m.ImageSize = 300
	}
	m.ColorMode = strings.ToLower(m.ColorMode)
	if m.ColorMode == "" {
		m.ColorMode = ColorGrayscale
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	return m
}

// Validate checks that the declared input shape matches the image size,
// color mode and layout.
func (m Metadata) Validate() error {
	switch m.ColorMode {
	case ColorGrayscale, ColorRGB:
	default:
		return fmt.Errorf("unknown color mode %q", m.ColorMode)
	}

	if len(m.InputShape) != 4 {
		return fmt.Errorf("%w: input shape %v must have 4 dimensions", ErrShapeMismatch, m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("%w: batch dimension must be 1, got %d", ErrShapeMismatch, m.InputShape[0])
	}

	size := int64(m.ImageSize)
	channels := int64(m.Channels())
	var want []int64
	switch m.Layout {
	case LayoutNHWC:
		want = []int64{1, size, size, channels}
	case LayoutNCHW:
		want = []int64{1, channels, size, size}
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	for i := range want {
		if m.InputShape[i] != want[i] {
			return fmt.Errorf("%w: input shape %v, expected %v for %s %s %dx%d",
				ErrShapeMismatch, m.InputShape, want, m.ColorMode, m.Layout, size, size)
		}
	}

	if len(m.OutputShape) == 0 || m.NumClasses() < 1 {
		return fmt.Errorf("%w: invalid output shape %v", ErrShapeMismatch, m.OutputShape)
	}
	return nil
}

func (m Metadata) Channels() int {
	if m.ColorMode == ColorRGB {
		return 3
	}
	return 1
}

// InputSize is the number of float32 values in one input tensor.
func (m Metadata) InputSize() int {
	return product(m.InputShape)
}

func (m Metadata) NumClasses() int {
	if len(m.OutputShape) == 0 {
		return 0
	}
	return int(m.OutputShape[len(m.OutputShape)-1])
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}

// FileDigest returns the hex SHA-256 of the file at path. It identifies the
// exact model weights a prediction came from.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash model file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
