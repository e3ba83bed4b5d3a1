package model

import "time"

const StatusActive = "ACTIVE"

// Position is one vehicle's instantaneous coordinate as accepted from the
// feed. Telemetry attributes (sector, speed, lap, race position) are filled
// in later by timing updates.
type Position struct {
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Z            float64   `json:"z"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Sector       int       `json:"sector,omitempty"`
	Speed        float64   `json:"speed,omitempty"`
	LapNumber    int       `json:"lapNumber,omitempty"`
	RacePosition int       `json:"position,omitempty"`
}

// LivePosition is the export form of a cached position. AgeMs is computed at
// query time, it is never stored.
type LivePosition struct {
	Position
	AgeMs int64 `json:"ageMs"`
}
