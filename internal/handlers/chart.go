package handlers

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Brownie44l1/qualitycast/internal/rank"
)

const (
	chartRadius = 70.0
	okColor     = "#1f77b4"
	defectColor = "#d62728"
)

type segment struct {
	Label  string
	Color  string
	Dash   string
	Offset string
}

// donutSegments lays scores out on a ring starting at twelve o'clock and
// running clockwise. Segments are sized relative to the shown scores, so a
// truncated ranking still closes the ring; labels keep the absolute percent.
func donutSegments(scores []rank.Score, okClass string) []segment {
	circumference := 2 * math.Pi * chartRadius

	total := 0.0
	for _, s := range scores {
		total += math.Max(0, s.Score)
	}

	segments := make([]segment, 0, len(scores))
	start := 0.0
	for _, s := range scores {
		share := 0.0
		if total > 0 {
			share = math.Max(0, s.Score) / total
		}
		length := share * circumference
		color := defectColor
		if s.Class == okClass {
			color = okColor
		}
		segments = append(segments, segment{
			Label:  fmt.Sprintf("%s (%s)", s.Class, rank.FormatPercent(s.Score)),
			Color:  color,
			Dash:   formatFloat(length) + " " + formatFloat(circumference-length),
			Offset: formatFloat(-start),
		})
		start += length
	}
	return segments
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
