package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

type (
	NatsRelay struct {
		conn *nats.Conn
		l    *log.Logger
	}
	Option func(*NatsRelay)
)

var _ Relay = (*NatsRelay)(nil)

func WithLogger(l *log.Logger) Option {
	return func(n *NatsRelay) {
		n.l = l
	}
}

func NewNatsRelay(conn *nats.Conn, opts ...Option) *NatsRelay {
	ret := &NatsRelay{
		conn: conn,
		l:    log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (n *NatsRelay) PublishSessionRegistered(info model.SessionInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return n.conn.Publish(subjectSessionRegistered, data)
}

func (n *NatsRelay) PublishSessionUnregistered(key string) error {
	return n.conn.Publish(subjectSessionUnregistered, []byte(key))
}

func (n *NatsRelay) PublishPositions(msg model.PositionsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.conn.Publish(positionsSubject(msg.Session), data)
}

func (n *NatsRelay) PublishTrackMap(msg model.TrackMapMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.conn.Publish(trackMapSubject(msg.Session), data)
}

func (n *NatsRelay) Close() {
	n.l.Debug("closing nats relay")
	n.conn.Close()
}

const (
	subjectSessionRegistered   = "session.registered"
	subjectSessionUnregistered = "session.unregistered"
)

func positionsSubject(sessionKey string) string {
	return fmt.Sprintf("positions.%s", sessionKey)
}

func trackMapSubject(sessionKey string) string {
	return fmt.Sprintf("trackmap.%s", sessionKey)
}
