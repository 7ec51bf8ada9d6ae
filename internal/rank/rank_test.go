package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopNBinary(t *testing.T) {
	top, err := TopN([]float32{0.3, 0.7}, []string{"Defect", "Perfect"}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)

	assert.Equal(t, "Perfect", top[0].Class)
	assert.InDelta(t, 0.7, top[0].Score, 1e-6)
	assert.InDelta(t, 0.3, Complement(top[0]), 1e-6)
}

func TestTopNSortedDescending(t *testing.T) {
	probs := []float32{0.05, 0.4, 0.1, 0.3, 0.15}
	names := []string{"a", "b", "c", "d", "e"}

	top, err := TopN(probs, names, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "d", "e"}, []string{top[0].Class, top[1].Class, top[2].Class})

	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[0].Score, top[i].Score)
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}
}

func TestTopNTiesKeepOutputOrder(t *testing.T) {
	top, err := TopN([]float32{0.25, 0.25, 0.25, 0.25}, []string{"w", "x", "y", "z"}, 4)
	require.NoError(t, err)
	for i, s := range top {
		assert.Equal(t, i, s.Index)
	}
}

func TestTopNLargerThanClassCount(t *testing.T) {
	top, err := TopN([]float32{0.9, 0.1}, []string{"Perfect", "Defect"}, 5)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestTopNErrors(t *testing.T) {
	_, err := TopN([]float32{0.5, 0.5}, []string{"only"}, 1)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = TopN([]float32{1}, []string{"only"}, 0)
	assert.ErrorIs(t, err, ErrInvalidN)
}

func TestTopNDoesNotModifyInput(t *testing.T) {
	probs := []float32{0.1, 0.9}
	_, err := TopN(probs, []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.9}, probs)
}

func TestPercentages(t *testing.T) {
	pct := Percentages([]Score{{Class: "Perfect", Score: 0.75}, {Class: "Defect", Score: 0.25}})
	assert.InDelta(t, 75.0, pct["Perfect"], 1e-9)
	assert.InDelta(t, 25.0, pct["Defect"], 1e-9)
	assert.NotContains(t, pct, "Other")
}

func TestPercentagesSumsDuplicateNames(t *testing.T) {
	pct := Percentages([]Score{
		{Class: "Defect", Score: 0.5, Index: 0},
		{Class: "Perfect", Score: 0.3, Index: 1},
		{Class: "Defect", Score: 0.2, Index: 2},
	})
	assert.Len(t, pct, 2)
	assert.InDelta(t, 70.0, pct["Defect"], 1e-9)
	assert.InDelta(t, 30.0, pct["Perfect"], 1e-9)
}


func TestFormatAndParsePercent(t *testing.T) {
	assert.Equal(t, "95.3%", FormatPercent(0.9531))
	assert.Equal(t, "0.0%", FormatPercent(0))
	assert.Equal(t, "100.0%", FormatPercent(1))

	v, err := ParsePercent("95.3%")
	require.NoError(t, err)
	assert.InDelta(t, 0.953, v, 1e-9)

	v, err = ParsePercent(FormatPercent(0.25))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, v, 1e-9)

	_, err = ParsePercent("95.3")
	assert.ErrorIs(t, err, ErrInvalidPercent)
	_, err = ParsePercent("abc%")
	assert.ErrorIs(t, err, ErrInvalidPercent)
}
