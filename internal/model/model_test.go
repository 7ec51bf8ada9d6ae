package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("0 Defect\n1 Perfect\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Defect", "Perfect"}, labels)
}

func TestParseLabelsKeepsSpacesInNames(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("0 Surface crack\n1 Blow hole\n2 Perfect\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Surface crack", "Blow hole", "Perfect"}, labels)
}

func TestParseLabelsRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bare name":      "Defect\nPerfect\n",
		"bad index":      "x Defect\n",
		"out of order":   "1 Defect\n0 Perfect\n",
		"empty":          "\n\n",
		"duplicate slot": "0 Defect\n0 Perfect\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLabels(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrInvalidLabelFile)
		})
	}
}

func TestLoadLabelsMissingFile(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "labels.txt"))
	assert.ErrorIs(t, err, ErrMissingLabelFile)
}

func TestLoadMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input_shape":[1,300,300,1],"output_shape":[1,2]}`), 0o644))

	meta, err := LoadMetadata(path)
	require.NoError(t, err)

	assert.Equal(t, 300, meta.ImageSize)
	assert.Equal(t, ColorGrayscale, meta.ColorMode)
	assert.Equal(t, LayoutNHWC, meta.Layout)
	assert.Equal(t, "input", meta.InputName)
	assert.Equal(t, "output", meta.OutputName)
	assert.Equal(t, 2, meta.NumClasses())
	assert.Equal(t, 300*300, meta.InputSize())
}

func TestMetadataValidate(t *testing.T) {
	rgb := Metadata{
		InputShape:  []int64{1, 3, 224, 224},
		OutputShape: []int64{1, 4},
		ImageSize:   224,
		ColorMode:   ColorRGB,
		Layout:      LayoutNCHW,
	}
	assert.NoError(t, rgb.Validate())
	assert.Equal(t, 3, rgb.Channels())

	wrongChannels := rgb
	wrongChannels.ColorMode = ColorGrayscale
	assert.ErrorIs(t, wrongChannels.Validate(), ErrShapeMismatch)

	wrongSize := rgb
	wrongSize.ImageSize = 300
	assert.ErrorIs(t, wrongSize.Validate(), ErrShapeMismatch)

	noOutput := rgb
	noOutput.OutputShape = nil
	assert.ErrorIs(t, noOutput.Validate(), ErrShapeMismatch)

	badLayout := rgb
	badLayout.Layout = "hwc"
	assert.Error(t, badLayout.Validate())
}

func TestSoftmax(t *testing.T) {
	values := []float32{1, 1}
	Softmax(values)
	assert.InDelta(t, 0.5, values[0], 1e-6)
	assert.InDelta(t, 0.5, values[1], 1e-6)

	values = []float32{2, 1, 0.1}
	Softmax(values)
	var sum float32
	for _, v := range values {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, values[0], values[1])
	assert.Greater(t, values[1], values[2])
}

func TestFileDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.onnx")
	b := filepath.Join(dir, "b.onnx")
	require.NoError(t, os.WriteFile(a, []byte("weights v1"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("weights v2"), 0o644))

	da, err := FileDigest(a)
	require.NoError(t, err)
	assert.Len(t, da, 64)

	again, err := FileDigest(a)
	require.NoError(t, err)
	assert.Equal(t, da, again)

	db, err := FileDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	_, err = FileDigest(filepath.Join(dir, "missing.onnx"))
	assert.Error(t, err)
}
