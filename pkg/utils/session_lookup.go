package utils

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/processing/track"
	"github.com/apexlog/trackmap-service-go/pkg/utils/broadcast"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already registered")
)

// SessionProcessingData bundles what the service keeps per session: the
// metadata, the processing engine and the fan-out servers feeding the live
// websocket clients.
type SessionProcessingData struct {
	Info         model.SessionInfo
	Processor    *track.Processor
	PosBroadcast broadcast.BroadcastServer[model.PositionsMessage]
	MapBroadcast broadcast.BroadcastServer[model.TrackMapMessage]
	posSource    chan model.PositionsMessage
	mapSource    chan model.TrackMapMessage
	lastActivity time.Time
}

// OfferPositions hands a message to the position fan-out. When the previous
// message is still pending the new one is dropped, live data must not queue
// up.
func (s *SessionProcessingData) OfferPositions(msg model.PositionsMessage) {
	select {
	case s.posSource <- msg:
	default:
	}
}

func (s *SessionProcessingData) OfferTrackMap(msg model.TrackMapMessage) {
	select {
	case s.mapSource <- msg:
	default:
	}
}

func (s *SessionProcessingData) close() {
	s.PosBroadcast.Close()
	s.MapBroadcast.Close()
}

type SessionLookupOption func(*SessionLookup)

// WithStaleDuration enables the watchdog that drops sessions without
// activity for the given duration.
func WithStaleDuration(d time.Duration) SessionLookupOption {
	return func(s *SessionLookup) {
		s.staleDuration = d
	}
}

// WithProcessorOptions passes extra options to every engine created by
// AddSession.
func WithProcessorOptions(opts ...track.Option) SessionLookupOption {
	return func(s *SessionLookup) {
		s.procOpts = opts
	}
}

// SessionLookup is the registry of active sessions. All service surfaces
// (ingest, REST, websocket, relay) resolve their engine here.
type SessionLookup struct {
	mu            sync.RWMutex
	lookup        map[string]*SessionProcessingData
	staleDuration time.Duration
	procOpts      []track.Option
	done          chan struct{}
}

func NewSessionLookup(opts ...SessionLookupOption) *SessionLookup {
	ret := &SessionLookup{
		lookup: make(map[string]*SessionProcessingData),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.staleDuration > 0 {
		go ret.watchdog()
	}
	return ret
}

//nolint:whitespace // can't make both editor and linter happy
func (s *SessionLookup) AddSession(info model.SessionInfo) (
	*SessionProcessingData, error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup[info.Key]; ok {
		return nil, ErrDuplicateSession
	}
	procOpts := make([]track.Option, 0, len(s.procOpts)+1)
	procOpts = append(procOpts, track.WithTrackName(info.TrackName))
	procOpts = append(procOpts, s.procOpts...)
	posSource := make(chan model.PositionsMessage, 1)
	mapSource := make(chan model.TrackMapMessage, 1)
	spd := &SessionProcessingData{
		Info:         info,
		Processor:    track.NewProcessor(procOpts...),
		PosBroadcast: broadcast.NewBroadcastServer(info.Key, "positions", posSource),
		MapBroadcast: broadcast.NewBroadcastServer(info.Key, "trackmap", mapSource),
		posSource:    posSource,
		mapSource:    mapSource,
		lastActivity: time.Now(),
	}
	s.lookup[info.Key] = spd
	return spd, nil
}

func (s *SessionLookup) GetSession(key string) (*SessionProcessingData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ret, ok := s.lookup[key]; ok {
		return ret, nil
	}
	return nil, ErrSessionNotFound
}

// MarkActivity bumps the session's activity stamp, shielding it from the
// stale watchdog.
func (s *SessionLookup) MarkActivity(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spd, ok := s.lookup[key]; ok {
		spd.lastActivity = time.Now()
	}
}

func (s *SessionLookup) RemoveSession(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spd, ok := s.lookup[key]
	if !ok {
		return ErrSessionNotFound
	}
	spd.close()
	delete(s.lookup, key)
	return nil
}

// Sessions returns the registered session infos ordered by creation time.
func (s *SessionLookup) Sessions() []model.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]model.SessionInfo, 0, len(s.lookup))
	for _, spd := range s.lookup {
		ret = append(ret, spd.Info)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

func (s *SessionLookup) SessionKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := lo.Keys(s.lookup)
	sort.Strings(ret)
	return ret
}

func (s *SessionLookup) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lookup)
}

func (s *SessionLookup) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spd := range s.lookup {
		spd.close()
	}
	s.lookup = make(map[string]*SessionProcessingData)
}

// Close stops the watchdog and drops all sessions.
func (s *SessionLookup) Close() {
	close(s.done)
	s.Clear()
}

func (s *SessionLookup) watchdog() {
	interval := s.staleDuration / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeStale()
		}
	}
}

func (s *SessionLookup) removeStale() {
	limit := time.Now().Add(-s.staleDuration)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, spd := range s.lookup {
		if spd.lastActivity.Before(limit) {
			log.Info("removing stale session",
				log.String("key", key),
				log.String("idle", time.Since(spd.lastActivity).String()))
			spd.close()
			delete(s.lookup, key)
		}
	}
}
