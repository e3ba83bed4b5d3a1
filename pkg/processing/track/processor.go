package track

import (
	"math"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

const DefaultTrackName = "Unknown Track"

// Processor is the track reconstruction and live position engine for one
// session. It owns the live cache, the bounds tracker, the coordinate
// aggregator and the sector mapper. Mutating calls run under the writer
// lock, exports under the reader lock. No call blocks on I/O.
//
// A Processor is constructed at session registration, cleared (not
// destroyed) at session reset and never shared across sessions.
type Processor struct {
	mu          sync.RWMutex
	params      Params
	trackName   string
	logger      *log.Logger
	positions   *livePositionCache
	bounds      *boundsTracker
	coordinates *coordinateAggregator
	sectors     *sectorMapper
}

type Option func(p *Processor)

func WithParams(params Params) Option {
	return func(p *Processor) {
		p.params = params
	}
}

// WithTrackName sets the name used when a map is generated without an
// explicit one.
func WithTrackName(name string) Option {
	return func(p *Processor) {
		p.trackName = name
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func NewProcessor(opts ...Option) *Processor {
	ret := &Processor{
		params:      DefaultParams(),
		logger:      log.Default().Named("processing.track"),
		positions:   newLivePositionCache(),
		bounds:      &boundsTracker{},
		coordinates: newCoordinateAggregator(),
		sectors:     newSectorMapper(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ProcessPositionData validates a raw position frame and feeds every
// accepted sample into the live cache, the bounds tracker and the coordinate
// aggregator, in that order. Returns nil when the frame carries no position
// collection.
func (p *Processor) ProcessPositionData(
	data map[string]interface{},
) (ret map[string]*model.Position) {
	defer p.recoverInternal("processPositionData", func() { ret = nil })
	p.mu.Lock()
	defer p.mu.Unlock()

	normalized := normalizePositions(data, time.Now())
	if normalized == nil {
		p.logger.Debug("frame without position data")
		return nil
	}
	for vehicleID, pos := range normalized {
		p.positions.set(vehicleID, pos)
		p.bounds.update(pos)
		p.coordinates.add(pos)
	}
	return normalized
}

// ProcessTimingData enriches cached live positions with sector, speed, lap
// and race position values. Vehicles without a cached position are a silent
// no-op. Each driver update also fires the sector mapper hook.
func (p *Processor) ProcessTimingData(data map[string]interface{}) {
	defer p.recoverInternal("processTimingData", func() {})
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := normalizeTiming(data)
	if samples == nil {
		p.logger.Debug("frame without timing data")
		return
	}
	for vehicleID, sample := range samples {
		p.positions.enrich(vehicleID, sample)
		p.sectors.onTimingUpdate(vehicleID, sample)
	}
}

// GenerateTrackMap assembles a fresh map from the aggregated coordinates.
// Returns nil while fewer than MinCoordinates cells were observed, an
// expected state early in a session.
func (p *Processor) GenerateTrackMap(trackName string) (ret *model.TrackMap) {
	defer p.recoverInternal("generateTrackMap", func() { ret = nil })
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buildTrackMap(trackName)
}

// buildTrackMap expects the lock to be held.
func (p *Processor) buildTrackMap(trackName string) *model.TrackMap {
	if trackName == "" {
		trackName = p.trackName
	}
	if trackName == "" {
		trackName = DefaultTrackName
	}
	coords := p.coordinates.chronological()
	if len(coords) < p.params.MinCoordinates {
		p.logger.Debug("not enough coordinates for track map",
			log.Int("have", len(coords)), log.Int("want", p.params.MinCoordinates))
		return nil
	}
	line := buildRacingLine(coords, p.params.SmoothingWindow)
	trackLength := lo.SumBy(line, func(item model.RacingLinePoint) float64 {
		return item.Distance
	})
	return &model.TrackMap{
		TrackName:  trackName,
		Bounds:     p.bounds.snapshot(),
		RacingLine: line,
		Sections:   buildSections(line, p.params),
		Features: detectFeatures(line,
			p.params.CurvatureThreshold, p.params.ClusterRadius),
		Sectors: p.sectors.snapshot(),
		Meta: model.TrackMapMeta{
			CoordinateCount: len(coords),
			GeneratedAt:     time.Now(),
			TrackLength:     math.Round(trackLength),
		},
	}
}

// CurrentDriverPositions returns the fresh part of the live cache (age below
// the staleness window), annotated with ageMs.
func (p *Processor) CurrentDriverPositions() (ret map[string]model.LivePosition) {
	defer p.recoverInternal("currentDriverPositions",
		func() { ret = map[string]model.LivePosition{} })
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions.snapshot(time.Now(), p.staleness())
}

// ExportTrackMap combines the generated map with the live position snapshot
// and readiness flags.
func (p *Processor) ExportTrackMap() (ret *model.TrackMapExport) {
	defer p.recoverInternal("exportTrackMap", func() { ret = nil })
	p.mu.RLock()
	defer p.mu.RUnlock()

	trackMap := p.buildTrackMap("")
	positions := p.positions.snapshot(time.Now(), p.staleness())
	return &model.TrackMapExport{
		TrackMap:        trackMap,
		DriverPositions: positions,
		Meta: model.ExportMeta{
			HasPositionData: len(positions) > 0,
			HasTrackData:    trackMap != nil,
			ExportedAt:      time.Now(),
		},
	}
}

// AggregatedCoordinates returns the observed grid cells in chronological
// order.
func (p *Processor) AggregatedCoordinates() (ret []model.AggregatedCoordinate) {
	defer p.recoverInternal("aggregatedCoordinates", func() { ret = nil })
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coordinates.chronological()
}

func (p *Processor) Bounds() model.TrackBounds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bounds.snapshot()
}

// Stats describes the engine's observation state.
type Stats struct {
	CoordinateCount int               `json:"coordinateCount"`
	VehicleCount    int               `json:"vehicleCount"`
	Bounds          model.TrackBounds `json:"bounds"`
	HasTrackData    bool              `json:"hasTrackData"`
	HasPositionData bool              `json:"hasPositionData"`
}

func (p *Processor) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	live := p.positions.snapshot(time.Now(), p.staleness())
	return Stats{
		CoordinateCount: p.coordinates.size(),
		VehicleCount:    p.positions.size(),
		Bounds:          p.bounds.snapshot(),
		HasTrackData:    p.coordinates.size() >= p.params.MinCoordinates,
		HasPositionData: len(live) > 0,
	}
}

func (p *Processor) Params() Params {
	return p.params
}

// Clear resets the engine for session reuse. The instance stays alive.
func (p *Processor) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions.clear()
	p.bounds.clear()
	p.coordinates.clear()
	p.sectors.clear()
	p.logger.Info("engine state cleared")
}

func (p *Processor) staleness() time.Duration {
	return time.Duration(p.params.StalenessMs) * time.Millisecond
}

// recoverInternal converts a panic in a public engine method into a logged
// error and a neutral result. A single bad frame must never take down a
// session.
func (p *Processor) recoverInternal(op string, onPanic func()) {
	if r := recover(); r != nil {
		p.logger.Error("internal computation failure",
			log.String("op", op), log.Any("panic", r))
		onPanic()
	}
}
