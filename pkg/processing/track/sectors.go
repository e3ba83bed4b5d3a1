package track

import "github.com/apexlog/trackmap-service-go/pkg/model"

// sectorMapper keeps the sector boundary records exported with the track
// map. The timing hook fires per driver per timing update and performs no
// computation yet. It is the extension point for mapping timing sector
// transitions onto racing line positions.
type sectorMapper struct {
	boundaries map[int]model.SectorBoundary
}

func newSectorMapper() *sectorMapper {
	return &sectorMapper{boundaries: make(map[int]model.SectorBoundary)}
}

//nolint:revive // hook kept for sector transition mapping, see type comment
func (s *sectorMapper) onTimingUpdate(vehicleID string, sample timingSample) {
}

func (s *sectorMapper) snapshot() map[int]model.SectorBoundary {
	ret := make(map[int]model.SectorBoundary, len(s.boundaries))
	for k, v := range s.boundaries {
		ret[k] = v
	}
	return ret
}

func (s *sectorMapper) clear() {
	s.boundaries = make(map[int]model.SectorBoundary)
}
