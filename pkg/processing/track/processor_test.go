//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package track

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

func positionFrame(entries map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"Position": entries}
}

func vehicleAt(x, y float64) map[string]interface{} {
	return map[string]interface{}{"X": x, "Y": y}
}

// feedPath sends one frame per point for vehicle "1".
func feedPath(p *Processor, points [][2]float64) {
	for _, pt := range points {
		p.ProcessPositionData(positionFrame(map[string]interface{}{
			"1": vehicleAt(pt[0], pt[1]),
		}))
	}
}

func straightPath(n int) [][2]float64 {
	ret := make([][2]float64, n)
	for i := range ret {
		ret[i] = [2]float64{float64(i), 0}
	}
	return ret
}

// rightAnglePath runs six points along +x and six up in +y.
func rightAnglePath() [][2]float64 {
	return [][2]float64{
		{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0},
		{5, 1}, {5, 2}, {5, 3}, {5, 4}, {5, 5}, {5, 6},
	}
}

func TestProcessor_ProcessPositionData(t *testing.T) {
	type fields struct {
		init   []Option
		checks func(tt *testing.T, p *Processor)
	}
	type args struct {
		data map[string]interface{}
	}
	tests := []struct {
		name    string
		fields  fields
		args    args
		wantNil bool
	}{
		{
			name: "accepted frame feeds all stores",
			fields: fields{
				init: []Option{},
				checks: func(t *testing.T, p *Processor) {
					if p.coordinates.size() != 2 {
						t.Errorf("coordinates.size() = %d, want 2", p.coordinates.size())
					}
					if p.positions.size() != 2 {
						t.Errorf("positions.size() = %d, want 2", p.positions.size())
					}
					want := model.TrackBounds{MinX: 10, MaxX: 20, MinY: -5, MaxY: 5}
					if diff := cmp.Diff(want, p.bounds.snapshot()); diff != "" {
						t.Errorf("bounds not correct: %s", diff)
					}
				},
			},
			args: args{positionFrame(map[string]interface{}{
				"1": vehicleAt(10, -5),
				"2": vehicleAt(20, 5),
			})},
		},
		{
			name: "nil frame leaves stores untouched",
			fields: fields{
				init: []Option{},
				checks: func(t *testing.T, p *Processor) {
					if p.coordinates.size() != 0 || p.positions.size() != 0 {
						t.Error("stores touched by nil frame")
					}
				},
			},
			args:    args{nil},
			wantNil: true,
		},
		{
			name: "frame without position collection",
			fields: fields{
				init: []Option{},
				checks: func(t *testing.T, p *Processor) {
					if p.coordinates.size() != 0 {
						t.Error("stores touched by frame without positions")
					}
				},
			},
			args:    args{map[string]interface{}{"Heartbeat": true}},
			wantNil: true,
		},
		{
			name: "invalid entries are dropped, valid ones applied",
			fields: fields{
				init: []Option{},
				checks: func(t *testing.T, p *Processor) {
					if p.coordinates.size() != 1 {
						t.Errorf("coordinates.size() = %d, want 1", p.coordinates.size())
					}
				},
			},
			args: args{positionFrame(map[string]interface{}{
				"1": map[string]interface{}{"X": "broken", "Y": 1.0},
				"2": map[string]interface{}{"X": 1.0},
				"3": vehicleAt(1, 1),
			})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(tt.fields.init...)
			got := p.ProcessPositionData(tt.args.data)
			if tt.wantNil && got != nil {
				t.Errorf("ProcessPositionData() = %v, want nil", got)
			}
			if !tt.wantNil && got == nil {
				t.Error("ProcessPositionData() = nil, want update map")
			}
			tt.fields.checks(t, p)
		})
	}
}

func TestProcessor_GenerateTrackMap_InsufficientData(t *testing.T) {
	p := NewProcessor()
	feedPath(p, straightPath(9))
	if got := p.GenerateTrackMap(""); got != nil {
		t.Fatalf("GenerateTrackMap() with 9 coordinates = %v, want nil", got)
	}
	assert.False(t, p.Stats().HasTrackData)

	// the tenth observed cell crosses the threshold
	p.ProcessPositionData(positionFrame(map[string]interface{}{"1": vehicleAt(9, 0)}))
	if got := p.GenerateTrackMap(""); got == nil {
		t.Fatal("GenerateTrackMap() with 10 coordinates = nil, want map")
	}
	assert.True(t, p.Stats().HasTrackData)
}

func TestProcessor_GenerateTrackMap_StraightLine(t *testing.T) {
	p := NewProcessor()
	feedPath(p, straightPath(12))

	m := p.GenerateTrackMap("Monza")
	if m == nil {
		t.Fatal("GenerateTrackMap() = nil")
	}
	assert.Equal(t, "Monza", m.TrackName)
	assert.Equal(t, 12, len(m.RacingLine))
	assert.Equal(t, 12, m.Meta.CoordinateCount)
	assert.Zero(t, m.RacingLine[0].Distance)
	assert.False(t, m.Meta.GeneratedAt.IsZero())

	var sum float64
	for _, pt := range m.RacingLine {
		sum += pt.Distance
	}
	assert.InDelta(t, math.Round(sum), m.Meta.TrackLength, 1e-9)
	assert.InDelta(t, 9.0, m.Meta.TrackLength, 1e-9)

	if diff := cmp.Diff(
		model.TrackBounds{MinX: 0, MaxX: 11, MinY: 0, MaxY: 0}, m.Bounds); diff != "" {
		t.Errorf("bounds not correct: %s", diff)
	}
	assert.Equal(t, 12, len(m.Sections))
	for i, section := range m.Sections {
		if section.Type != model.SectionStraight {
			t.Errorf("sections[%d].Type = %s, want straight", i, section.Type)
		}
	}
	assert.Empty(t, m.Features)
	assert.Empty(t, m.Sectors)
}

func TestProcessor_GenerateTrackMap_RightAngleTurn(t *testing.T) {
	p := NewProcessor()
	feedPath(p, rightAnglePath())

	m := p.GenerateTrackMap("")
	if m == nil {
		t.Fatal("GenerateTrackMap() = nil")
	}
	if len(m.Features) == 0 {
		t.Fatal("no features detected on a right angle turn")
	}
	threshold := p.Params().CurvatureThreshold
	for i, feature := range m.Features {
		if math.Abs(feature.Curvature) <= threshold {
			t.Errorf("features[%d].Curvature = %v, want above %v",
				i, feature.Curvature, threshold)
		}
	}
	// +x into +y turns left under the screen convention
	assert.Equal(t, model.FeatureLeftCorner, m.Features[0].Type)
}

func TestProcessor_GenerateTrackMap_LengthRounding(t *testing.T) {
	p := NewProcessor()
	points := make([][2]float64, 12)
	for i := range points {
		points[i] = [2]float64{float64(i), float64(i)}
	}
	feedPath(p, points)

	m := p.GenerateTrackMap("")
	if m == nil {
		t.Fatal("GenerateTrackMap() = nil")
	}
	// 9*sqrt(2) summed along the diagonal, rounded to the nearest integer
	assert.InDelta(t, 13.0, m.Meta.TrackLength, 1e-9)
}

func TestProcessor_GenerateTrackMap_NameFallback(t *testing.T) {
	p := NewProcessor()
	feedPath(p, straightPath(12))
	assert.Equal(t, DefaultTrackName, p.GenerateTrackMap("").TrackName)
	assert.Equal(t, "Spa", p.GenerateTrackMap("Spa").TrackName)

	named := NewProcessor(WithTrackName("Road America"))
	feedPath(named, straightPath(12))
	assert.Equal(t, "Road America", named.GenerateTrackMap("").TrackName)
	assert.Equal(t, "Spa", named.GenerateTrackMap("Spa").TrackName)
}

func TestProcessor_GenerateTrackMap_RecoversFromInternalPanic(t *testing.T) {
	params := DefaultParams()
	params.SectionDivisor = 0
	p := NewProcessor(WithParams(params))
	feedPath(p, straightPath(12))

	// the broken divisor panics inside the section builder, the engine
	// answers with nil instead of crashing
	if got := p.GenerateTrackMap(""); got != nil {
		t.Errorf("GenerateTrackMap() = %v, want nil after recovery", got)
	}
}

func TestProcessor_ProcessTimingData(t *testing.T) {
	p := NewProcessor()
	p.ProcessPositionData(positionFrame(map[string]interface{}{"1": vehicleAt(10, 20)}))

	p.ProcessTimingData(map[string]interface{}{
		"drivers": map[string]interface{}{
			"1":  map[string]interface{}{"sector": 2, "speed": 287.5, "lapNumber": 12, "position": 3},
			"99": map[string]interface{}{"speed": 300.0},
		},
	})

	got := p.CurrentDriverPositions()
	if len(got) != 1 {
		t.Fatalf("CurrentDriverPositions() has %d entries, want 1", len(got))
	}
	lp := got["1"]
	assert.Equal(t, 2, lp.Sector)
	assert.Equal(t, 287.5, lp.Speed)
	assert.Equal(t, 12, lp.LapNumber)
	assert.Equal(t, 3, lp.RacePosition)
	assert.Equal(t, 10.0, lp.X)

	// frames without timing data are ignored
	p.ProcessTimingData(nil)
	p.ProcessTimingData(map[string]interface{}{"SessionStatus": "Started"})
	if p.positions.size() != 1 {
		t.Errorf("positions.size() = %d, want 1", p.positions.size())
	}
}

func TestProcessor_CurrentDriverPositions_Staleness(t *testing.T) {
	p := NewProcessor()
	p.ProcessPositionData(positionFrame(map[string]interface{}{
		"1": vehicleAt(1, 0),
		"2": vehicleAt(2, 0),
		"3": vehicleAt(3, 0),
	}))
	// age the cached entries directly
	p.positions.entries["2"].Timestamp = time.Now().Add(-11 * time.Second)
	p.positions.entries["3"].Timestamp = time.Now().Add(-9500 * time.Millisecond)

	got := p.CurrentDriverPositions()
	if len(got) != 2 {
		t.Fatalf("CurrentDriverPositions() has %d entries, want 2", len(got))
	}
	if _, ok := got["2"]; ok {
		t.Error("stale entry included")
	}
	assert.Less(t, got["1"].AgeMs, int64(5000))
	assert.GreaterOrEqual(t, got["3"].AgeMs, int64(9500))
	assert.Less(t, got["3"].AgeMs, int64(10000))

	// staleness filters reads only, the cache keeps all entries
	assert.Equal(t, 3, p.positions.size())
}

func TestProcessor_ExportTrackMap(t *testing.T) {
	p := NewProcessor(WithTrackName("Road America"))

	exp := p.ExportTrackMap()
	if exp == nil {
		t.Fatal("ExportTrackMap() = nil on empty engine")
	}
	assert.Nil(t, exp.TrackMap)
	assert.False(t, exp.Meta.HasTrackData)
	assert.False(t, exp.Meta.HasPositionData)
	assert.Empty(t, exp.DriverPositions)
	assert.False(t, exp.Meta.ExportedAt.IsZero())

	feedPath(p, straightPath(12))
	exp = p.ExportTrackMap()
	if exp.TrackMap == nil {
		t.Fatal("ExportTrackMap().TrackMap = nil after feeding")
	}
	assert.Equal(t, "Road America", exp.TrackMap.TrackName)
	assert.True(t, exp.Meta.HasTrackData)
	assert.True(t, exp.Meta.HasPositionData)
	assert.Contains(t, exp.DriverPositions, "1")
}

func TestProcessor_Clear(t *testing.T) {
	p := NewProcessor()
	feedPath(p, straightPath(12))
	if p.GenerateTrackMap("") == nil {
		t.Fatal("GenerateTrackMap() = nil before clear")
	}

	p.Clear()

	if got := p.GenerateTrackMap(""); got != nil {
		t.Errorf("GenerateTrackMap() = %v after clear, want nil", got)
	}
	assert.Empty(t, p.CurrentDriverPositions())
	assert.Empty(t, p.AggregatedCoordinates())
	if diff := cmp.Diff(model.TrackBounds{}, p.Bounds()); diff != "" {
		t.Errorf("bounds not reset: %s", diff)
	}
	stats := p.Stats()
	assert.Zero(t, stats.CoordinateCount)
	assert.Zero(t, stats.VehicleCount)
	assert.False(t, stats.HasTrackData)
	assert.False(t, stats.HasPositionData)

	// the engine stays usable after a clear
	feedPath(p, straightPath(10))
	if p.GenerateTrackMap("") == nil {
		t.Error("GenerateTrackMap() = nil after refeeding a cleared engine")
	}
}
