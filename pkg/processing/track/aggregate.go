package track

import (
	"math"
	"sort"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

type gridKey struct {
	x int
	y int
}

func keyFor(x, y float64) gridKey {
	return gridKey{x: int(math.Round(x)), y: int(math.Round(y))}
}

// coordinateAggregator buckets observed coordinates onto an integer grid.
// Cells count their visits and keep the timestamp of the latest one, which
// makes the visit frequency a proxy for track surface vs noise. Insertion
// order is preserved as the tie break for the chronological sort.
type coordinateAggregator struct {
	cells map[gridKey]*model.AggregatedCoordinate
	order []gridKey
}

func newCoordinateAggregator() *coordinateAggregator {
	return &coordinateAggregator{cells: make(map[gridKey]*model.AggregatedCoordinate)}
}

func (a *coordinateAggregator) add(pos *model.Position) {
	key := keyFor(pos.X, pos.Y)
	if cell, ok := a.cells[key]; ok {
		cell.Visits++
		cell.Timestamp = pos.Timestamp
		return
	}
	a.cells[key] = &model.AggregatedCoordinate{
		X:         float64(key.x),
		Y:         float64(key.y),
		Visits:    1,
		Timestamp: pos.Timestamp,
	}
	a.order = append(a.order, key)
}

func (a *coordinateAggregator) size() int {
	return len(a.cells)
}

// chronological returns the cells sorted ascending by their latest
// observation time. Arrival order approximates lap order here, see the
// racing line builder.
func (a *coordinateAggregator) chronological() []model.AggregatedCoordinate {
	ret := make([]model.AggregatedCoordinate, 0, len(a.order))
	for _, key := range a.order {
		ret = append(ret, *a.cells[key])
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Timestamp.Before(ret[j].Timestamp)
	})
	return ret
}

func (a *coordinateAggregator) clear() {
	a.cells = make(map[gridKey]*model.AggregatedCoordinate)
	a.order = nil
}
