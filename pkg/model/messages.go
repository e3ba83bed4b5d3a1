package model

import "time"

type WsMessageType string

const (
	MessagePositions WsMessageType = "positions"
	MessageTrackMap  WsMessageType = "trackmap"
)

// PositionsMessage is pushed to websocket subscribers at the broadcast
// interval.
type PositionsMessage struct {
	Type      WsMessageType           `json:"type"`
	Session   string                  `json:"session"`
	Positions map[string]LivePosition `json:"positions"`
	SentAt    time.Time               `json:"sentAt"`
}

// TrackMapMessage is pushed whenever a map was (re)generated.
type TrackMapMessage struct {
	Type     WsMessageType `json:"type"`
	Session  string        `json:"session"`
	TrackMap *TrackMap     `json:"trackMap"`
	SentAt   time.Time     `json:"sentAt"`
}
