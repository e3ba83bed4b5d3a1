package relay

import (
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// Relay publishes session artifacts for downstream consumers (other
// cluster members, archivers, dashboards). The live websocket path does not
// go through here.
type Relay interface {
	PublishSessionRegistered(info model.SessionInfo) error
	PublishSessionUnregistered(key string) error
	PublishPositions(msg model.PositionsMessage) error
	PublishTrackMap(msg model.TrackMapMessage) error
	Close()
}

// NoopRelay is used when no broker is configured.
type NoopRelay struct{}

var _ Relay = (*NoopRelay)(nil)

func NewNoopRelay() *NoopRelay { return &NoopRelay{} }

func (r *NoopRelay) PublishSessionRegistered(model.SessionInfo) error { return nil }
func (r *NoopRelay) PublishSessionUnregistered(string) error          { return nil }
func (r *NoopRelay) PublishPositions(model.PositionsMessage) error    { return nil }
func (r *NoopRelay) PublishTrackMap(model.TrackMapMessage) error      { return nil }
func (r *NoopRelay) Close()                                           {}
