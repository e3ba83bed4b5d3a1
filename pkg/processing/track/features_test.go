package track

import (
	"math"
	"testing"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// steppedPath walks the x axis in steps of 2 and jogs up by 2 in y at every
// given x. Each jog produces four flagged interior points around it.
func steppedPath(maxX float64, jogsAt ...float64) []model.RacingLinePoint {
	ret := make([]model.RacingLinePoint, 0)
	y := 0.0
	for x := 0.0; x <= maxX; x += 2 {
		for _, jog := range jogsAt {
			if x == jog {
				y += 2
			}
		}
		ret = append(ret, model.RacingLinePoint{X: x, Y: y, Index: len(ret)})
	}
	return ret
}

func TestCurvatureSign(t *testing.T) {
	// straight along +x, then up in +y: with y growing downwards on screen
	// that is a left turn, so the angle comes out negative
	line := []model.RacingLinePoint{
		{X: 0, Y: 0}, {X: 0.5, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 0.5}, {X: 1, Y: 1},
	}
	got := curvatureAt(line, 2)
	if math.Abs(got-(-math.Pi/2)) > 1e-9 {
		t.Errorf("curvatureAt() = %v, want -pi/2", got)
	}

	features := detectFeatures(line, 0.1, 50)
	if len(features) != 1 {
		t.Fatalf("len(features) = %d, want 1", len(features))
	}
	if features[0].Type != model.FeatureLeftCorner {
		t.Errorf("feature type = %s, want %s", features[0].Type, model.FeatureLeftCorner)
	}

	// mirrored path turns the other way
	mirrored := []model.RacingLinePoint{
		{X: 0, Y: 0}, {X: 0.5, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: -0.5}, {X: 1, Y: -1},
	}
	features = detectFeatures(mirrored, 0.1, 50)
	if len(features) != 1 {
		t.Fatalf("len(features) = %d on mirrored path, want 1", len(features))
	}
	if features[0].Type != model.FeatureRightCorner {
		t.Errorf("mirrored feature type = %s, want %s",
			features[0].Type, model.FeatureRightCorner)
	}
	if features[0].Curvature <= 0 {
		t.Errorf("mirrored curvature = %v, want positive", features[0].Curvature)
	}
}

func TestDetectFeaturesThreshold(t *testing.T) {
	// collinear line never flags
	line := linePoints(30)
	if got := detectFeatures(line, 0.1, 50); len(got) != 0 {
		t.Errorf("straight line yields %d features, want 0", len(got))
	}
	// gentle arc stays below the default threshold (|curvature| = 0.08)
	if got := detectFeatures(arcPoints(30, 0.04), 0.1, 50); len(got) != 0 {
		t.Errorf("gentle arc yields %d features, want 0", len(got))
	}
	// tighter arc exceeds it (|curvature| = 0.24)
	if got := detectFeatures(arcPoints(30, 0.12), 0.1, 50); len(got) == 0 {
		t.Error("tight arc yields no features")
	}
}

func TestDetectFeaturesAnchorClustering(t *testing.T) {
	// jogs at x=10, x=50, x=90: the second lies within the cluster radius of
	// the first group's anchor, the third does not. Chaining off the previous
	// point instead of the anchor would fold all three into one group.
	line := steppedPath(100, 10, 50, 90)

	features := detectFeatures(line, 0.1, 50)
	if len(features) != 2 {
		t.Fatalf("len(features) = %d, want 2", len(features))
	}
	first, second := features[0], features[1]
	if first.Count != 8 {
		t.Errorf("first group Count = %d, want 8", first.Count)
	}
	if first.Position.X != 6 || first.Position.Y != 0 {
		t.Errorf("first group anchored at (%v,%v), want (6,0)",
			first.Position.X, first.Position.Y)
	}
	if second.Count != 4 {
		t.Errorf("second group Count = %d, want 4", second.Count)
	}
	if second.Position.X != 86 {
		t.Errorf("second group anchored at x=%v, want 86", second.Position.X)
	}
	// anchor keeps the triggering point's curvature
	if first.Curvature >= 0 {
		t.Errorf("first group Curvature = %v, want negative", first.Curvature)
	}
}

func TestDetectFeaturesShortLine(t *testing.T) {
	// fewer than five points leaves no interior to scan
	line := []model.RacingLinePoint{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	if got := detectFeatures(line, 0.1, 50); len(got) != 0 {
		t.Errorf("len(features) = %d on 3 points, want 0", len(got))
	}
}
