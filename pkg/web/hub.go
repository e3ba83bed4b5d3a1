package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// incoming messages are ignored, the limit just caps the read buffer
	maxClientMessage = 1024
)

// handleLive upgrades to a websocket and streams position and track map
// messages for one session until the client disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	spd, err := s.lookup.GetSession(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown session '"+key+"'")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	client := &liveClient{
		id:     uuid.New().String(),
		spd:    spd,
		conn:   conn,
		posCh:  spd.PosBroadcast.Subscribe(),
		mapCh:  spd.MapBroadcast.Subscribe(),
		closed: make(chan struct{}),
		l:      s.l.Named("live"),
	}
	client.l.Debug("client connected",
		log.String("id", client.id),
		log.String("session", key),
		log.String("remote", r.RemoteAddr))
	client.sendSnapshot(key)
	go client.readPump()
	client.writePump()
}

// liveClient is one websocket subscriber. readPump watches for the peer
// going away, writePump owns all writes on the connection.
type liveClient struct {
	id     string
	spd    *utils.SessionProcessingData
	conn   *websocket.Conn
	posCh  <-chan model.PositionsMessage
	mapCh  <-chan model.TrackMapMessage
	closed chan struct{}
	l      *log.Logger
}

// sendSnapshot pushes the current state right away so a client does not
// have to wait for the next broadcast tick.
func (c *liveClient) sendSnapshot(key string) {
	export := c.spd.Processor.ExportTrackMap()
	if export == nil {
		return
	}
	if err := c.write(model.PositionsMessage{
		Type:      model.MessagePositions,
		Session:   key,
		Positions: export.DriverPositions,
		SentAt:    time.Now(),
	}); err != nil {
		c.l.Debug("could not send snapshot", log.ErrorField(err))
		return
	}
	if export.Meta.HasTrackData {
		if err := c.write(model.TrackMapMessage{
			Type:     model.MessageTrackMap,
			Session:  key,
			TrackMap: export.TrackMap,
			SentAt:   time.Now(),
		}); err != nil {
			c.l.Debug("could not send snapshot", log.ErrorField(err))
		}
	}
}

func (c *liveClient) write(msg interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.spd.PosBroadcast.CancelSubscription(c.posCh)
		c.spd.MapBroadcast.CancelSubscription(c.mapCh)
		c.conn.Close()
		c.l.Debug("client disconnected", log.String("id", c.id))
	}()
	for {
		select {
		case msg, ok := <-c.posCh:
			if !ok {
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case msg, ok := <-c.mapCh:
			if !ok {
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *liveClient) readPump() {
	defer close(c.closed)
	c.conn.SetReadLimit(maxClientMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
