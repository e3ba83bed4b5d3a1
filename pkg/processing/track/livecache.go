package track

import (
	"time"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// livePositionCache holds the most recent position per vehicle. Stale
// entries stay in the backing map and are filtered at read time, there is no
// eviction thread.
type livePositionCache struct {
	entries map[string]*model.Position
}

func newLivePositionCache() *livePositionCache {
	return &livePositionCache{entries: make(map[string]*model.Position)}
}

func (c *livePositionCache) set(vehicleID string, pos *model.Position) {
	c.entries[vehicleID] = pos
}

// enrich merges a timing sample into the cached position. Vehicles without a
// cached position are silently ignored.
func (c *livePositionCache) enrich(vehicleID string, sample timingSample) {
	pos, ok := c.entries[vehicleID]
	if !ok {
		return
	}
	if sample.hasSector {
		pos.Sector = sample.sector
	}
	if sample.hasSpeed {
		pos.Speed = sample.speed
	}
	if sample.hasLapNumber {
		pos.LapNumber = sample.lapNumber
	}
	if sample.hasRacePos {
		pos.RacePosition = sample.racePosition
	}
}

// snapshot returns every position strictly younger than the staleness
// window, annotated with its age.
func (c *livePositionCache) snapshot(
	now time.Time, staleness time.Duration,
) map[string]model.LivePosition {
	ret := make(map[string]model.LivePosition)
	for vehicleID, pos := range c.entries {
		age := now.Sub(pos.Timestamp)
		if age >= staleness {
			continue
		}
		ret[vehicleID] = model.LivePosition{Position: *pos, AgeMs: age.Milliseconds()}
	}
	return ret
}

func (c *livePositionCache) size() int {
	return len(c.entries)
}

func (c *livePositionCache) clear() {
	c.entries = make(map[string]*model.Position)
}
