package track

import (
	"math"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// curvatureAt computes the signed turn angle at point i from the chords two
// points back and two points ahead. Positive values turn right, negative
// values turn left (screen coordinate convention, y grows downwards).
// Callers must keep i within [2, len(line)-3].
func curvatureAt(line []model.RacingLinePoint, i int) float64 {
	p0 := line[i-2]
	p1 := line[i]
	p2 := line[i+2]
	v1x, v1y := p1.X-p0.X, p1.Y-p0.Y
	v2x, v2y := p2.X-p1.X, p2.Y-p1.Y
	cross := v1y*v2x - v1x*v2y
	dot := v1x*v2x + v1y*v2y
	return math.Atan2(cross, dot)
}

// detectFeatures flags interior points whose absolute curvature exceeds the
// threshold and folds nearby detections into feature groups. Grouping is a
// greedy single pass in index order: a flagged point within clusterRadius of
// the current group's anchor increments its count, anything farther starts a
// new group. The anchor stays the group's first point, not a running
// centroid.
func detectFeatures(
	line []model.RacingLinePoint, threshold, clusterRadius float64,
) []model.TrackFeature {
	ret := make([]model.TrackFeature, 0)
	currentIdx := -1
	for i := 2; i <= len(line)-3; i++ {
		curvature := curvatureAt(line, i)
		if math.Abs(curvature) <= threshold {
			continue
		}
		point := line[i]
		if currentIdx >= 0 {
			anchor := ret[currentIdx].Position
			if math.Hypot(point.X-anchor.X, point.Y-anchor.Y) <= clusterRadius {
				ret[currentIdx].Count++
				continue
			}
		}
		featureType := model.FeatureLeftCorner
		if curvature > 0 {
			featureType = model.FeatureRightCorner
		}
		ret = append(ret, model.TrackFeature{
			Type:      featureType,
			Position:  point,
			Curvature: curvature,
			Index:     i,
			Count:     1,
		})
		currentIdx = len(ret) - 1
	}
	return ret
}
