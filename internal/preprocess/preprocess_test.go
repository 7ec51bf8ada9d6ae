package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/qualitycast/internal/model"
)

func grayMeta(size int) model.Metadata {
	return model.Metadata{
		InputShape:  []int64{1, int64(size), int64(size), 1},
		OutputShape: []int64{1, 2},
		ImageSize:   size,
	}
}

func rgbMeta(size int) model.Metadata {
	return model.Metadata{
		InputShape:  []int64{1, 3, int64(size), int64(size)},
		OutputShape: []int64{1, 2},
		ImageSize:   size,
		ColorMode:   model.ColorRGB,
		Layout:      model.LayoutNCHW,
	}
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTensorShapeMatchesMetadata(t *testing.T) {
	sizes := []struct{ w, h int }{{640, 480}, {10, 10}, {1, 300}, {300, 300}}
	for _, meta := range []model.Metadata{grayMeta(300), rgbMeta(32)} {
		p, err := New(meta)
		require.NoError(t, err)

		for _, s := range sizes {
			tensor, err := p.Tensor(solid(s.w, s.h, color.RGBA{10, 20, 30, 255}))
			require.NoError(t, err)
			assert.Len(t, tensor, meta.WithDefaults().InputSize())
		}
	}
}

func TestTensorValuesInUnitRange(t *testing.T) {
	p, err := New(rgbMeta(8))
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 12), uint8(y * 12), 255, 255})
		}
	}
	tensor, err := p.Tensor(img)
	require.NoError(t, err)
	for _, v := range tensor {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestTensorGrayscaleWhite(t *testing.T) {
	p, err := New(grayMeta(4))
	require.NoError(t, err)

	tensor, err := p.Tensor(solid(16, 16, color.White))
	require.NoError(t, err)
	for _, v := range tensor {
		assert.InDelta(t, 1.0, v, 0.01)
	}
}

func TestTensorRGBPlanarLayout(t *testing.T) {
	p, err := New(rgbMeta(4))
	require.NoError(t, err)

	tensor, err := p.Tensor(solid(8, 8, color.RGBA{255, 0, 0, 255}))
	require.NoError(t, err)

	plane := 4 * 4
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 1.0, tensor[i], 0.01)
		assert.InDelta(t, 0.0, tensor[plane+i], 0.01)
		assert.InDelta(t, 0.0, tensor[2*plane+i], 0.01)
	}
}

func TestTensorRGBInterleavedLayout(t *testing.T) {
	meta := model.Metadata{
		InputShape:  []int64{1, 4, 4, 3},
		OutputShape: []int64{1, 2},
		ImageSize:   4,
		ColorMode:   model.ColorRGB,
	}
	p, err := New(meta)
	require.NoError(t, err)

	tensor, err := p.Tensor(solid(8, 8, color.RGBA{0, 0, 255, 255}))
	require.NoError(t, err)
	for i := 0; i < len(tensor); i += 3 {
		assert.InDelta(t, 0.0, tensor[i], 0.01)
		assert.InDelta(t, 0.0, tensor[i+1], 0.01)
		assert.InDelta(t, 1.0, tensor[i+2], 0.01)
	}
}

func TestNewRejectsInconsistentMetadata(t *testing.T) {
	meta := grayMeta(300)
	meta.InputShape = []int64{1, 300, 300, 3}
	_, err := New(meta)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(encodePNG(t, solid(5, 7, color.Black)), 0)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(6, 6, color.White), nil))
	_, format, err = Decode(jpg.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDecodeRejectsGarbageAndUnsupported(t *testing.T) {
	_, _, err := Decode(nil, 0)
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = Decode([]byte("definitely not an image"), 0)
	assert.ErrorIs(t, err, ErrDecode)

	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))
	_, format, err := Decode(buf.Bytes(), 0)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, "gif", format)
}

// withDimensions rewrites the IHDR width and height of a PNG, leaving the
// pixel data untouched.
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	require.Equal(t, "IHDR", string(data[12:16]))
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeRejectsOversizedImages(t *testing.T) {
	huge := withDimensions(t, encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4))), 100000, 100000)
	format, err := Inspect(huge, 0)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, "png", format)

	_, _, err = Decode(huge, 0)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "exceeds")

	small := encodePNG(t, solid(20, 20, color.White))
	_, _, err = Decode(small, 399)
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = Decode(small, 400)
	assert.NoError(t, err)
}
