package track

import (
	"math"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// buildRacingLine smooths the aggregated coordinates with a symmetric moving
// average and accumulates the per step Euclidean distance. The window shrinks
// at the sequence boundaries instead of wrapping or padding.
func buildRacingLine(
	coords []model.AggregatedCoordinate, window int,
) []model.RacingLinePoint {
	half := window / 2
	ret := make([]model.RacingLinePoint, len(coords))
	for i := range coords {
		lo := max(0, i-half)
		hi := min(len(coords)-1, i+half)
		var sumX, sumY float64
		for j := lo; j <= hi; j++ {
			sumX += coords[j].X
			sumY += coords[j].Y
		}
		n := float64(hi - lo + 1)
		point := model.RacingLinePoint{
			X:     sumX / n,
			Y:     sumY / n,
			Index: i,
		}
		if i > 0 {
			point.Distance = math.Hypot(point.X-ret[i-1].X, point.Y-ret[i-1].Y)
		}
		ret[i] = point
	}
	return ret
}
