package model

import (
	"encoding/json"
	"time"
)

type FrameType string

const (
	FrameTypePosition FrameType = "position"
	FrameTypeTiming   FrameType = "timing"
	// FrameTypeSession is the header line of a recording. It carries the
	// SessionInfo of the recorded feed and is never sent by live upstreams.
	FrameTypeSession FrameType = "session"
)

// FrameEnvelope wraps one raw feed frame. It is the line format of
// recordings and the body of the ingest endpoint. Data stays raw, the
// engine parses it leniently.
type FrameEnvelope struct {
	Type    FrameType       `json:"type"`
	Session string          `json:"session,omitempty"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data"`
}
