package model

import "time"

// SessionInfo describes a registered session.
type SessionInfo struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	TrackName string    `json:"trackName"`
	CreatedAt time.Time `json:"createdAt"`
}
