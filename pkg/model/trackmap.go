package model

import "time"

// TrackBounds is the running axis-aligned extent over all observed
// coordinates. Monotone under updates, reset only by an explicit clear.
type TrackBounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
	MinZ float64 `json:"minZ"`
	MaxZ float64 `json:"maxZ"`
}

// AggregatedCoordinate is an observed coordinate bucketed onto the integer
// grid. Timestamp holds the latest observation for the cell.
type AggregatedCoordinate struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Visits    int       `json:"visits"`
	Timestamp time.Time `json:"timestamp"`
}

// RacingLinePoint is a smoothed point of the reconstructed line. Distance is
// the Euclidean step from the previous smoothed point (0 at index 0).
type RacingLinePoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
}

type SectionType string

const (
	SectionStraight     SectionType = "straight"
	SectionSlightCorner SectionType = "slight_corner"
	SectionSharpCorner  SectionType = "sharp_corner"
)

type TrackSection struct {
	ID          int               `json:"id"`
	StartIndex  int               `json:"startIndex"`
	EndIndex    int               `json:"endIndex"`
	Coordinates []RacingLinePoint `json:"coordinates"`
	Type        SectionType       `json:"type"`
}

type FeatureType string

const (
	FeatureLeftCorner  FeatureType = "left_corner"
	FeatureRightCorner FeatureType = "right_corner"
)

// TrackFeature is a clustered corner detection. Position and Curvature are
// taken from the group's anchor point, Count is the group's occurrence count.
type TrackFeature struct {
	Type      FeatureType     `json:"type"`
	Position  RacingLinePoint `json:"position"`
	Curvature float64         `json:"curvature"`
	Index     int             `json:"index"`
	Count     int             `json:"count"`
}

// SectorBoundary associates a timing sector with a track position.
type SectorBoundary struct {
	Sector     int       `json:"sector"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	RecordedAt time.Time `json:"recordedAt"`
}

type TrackMapMeta struct {
	CoordinateCount int       `json:"coordinateCount"`
	GeneratedAt     time.Time `json:"generatedAt"`
	TrackLength     float64   `json:"trackLength"`
}

// TrackMap is the assembled map artifact. It is regenerated wholesale per
// generation call and never mutated in place.
type TrackMap struct {
	TrackName  string                 `json:"trackName"`
	Bounds     TrackBounds            `json:"bounds"`
	RacingLine []RacingLinePoint      `json:"racingLine"`
	Sections   []TrackSection         `json:"sections"`
	Features   []TrackFeature         `json:"features"`
	Sectors    map[int]SectorBoundary `json:"sectors"`
	Meta       TrackMapMeta           `json:"metadata"`
}

type ExportMeta struct {
	HasPositionData bool      `json:"hasPositionData"`
	HasTrackData    bool      `json:"hasTrackData"`
	ExportedAt      time.Time `json:"exportedAt"`
}

// TrackMapExport combines the current map with the live position snapshot.
type TrackMapExport struct {
	TrackMap        *TrackMap               `json:"trackMap"`
	DriverPositions map[string]LivePosition `json:"driverPositions"`
	Meta            ExportMeta              `json:"metadata"`
}
