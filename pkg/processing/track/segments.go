package track

import (
	"math"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// buildSections partitions the racing line into strides of
// len(line)/divisor points (at least 1) and classifies each stride. The last
// section may be shorter.
func buildSections(line []model.RacingLinePoint, params Params) []model.TrackSection {
	sectionLength := max(1, len(line)/params.SectionDivisor)
	ret := make([]model.TrackSection, 0, (len(line)+sectionLength-1)/sectionLength)
	for start := 0; start < len(line); start += sectionLength {
		end := min(start+sectionLength, len(line))
		coords := make([]model.RacingLinePoint, end-start)
		copy(coords, line[start:end])
		ret = append(ret, model.TrackSection{
			ID:          len(ret),
			StartIndex:  start,
			EndIndex:    end - 1,
			Coordinates: coords,
			Type:        classifySection(coords, params),
		})
	}
	return ret
}

// classifySection averages the absolute curvature over the section's
// interior points (skipping two points at each end, the curvature window
// needs them). Sections too short for any interior point keep a denominator
// of 1 and default to straight.
func classifySection(coords []model.RacingLinePoint, params Params) model.SectionType {
	var sum float64
	for i := 2; i <= len(coords)-3; i++ {
		sum += math.Abs(curvatureAt(coords, i))
	}
	avg := sum / float64(max(1, len(coords)-4))
	switch {
	case avg < params.StraightMax:
		return model.SectionStraight
	case avg < params.SlightCornerMax:
		return model.SectionSlightCorner
	default:
		return model.SectionSharpCorner
	}
}
