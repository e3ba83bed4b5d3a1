package track

import (
	"math"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// boundsTracker keeps the running extent of all observed coordinates. The
// first update initializes the bounds to that single point, every further
// update widens each axis independently. There is no shrink operation.
type boundsTracker struct {
	bounds      model.TrackBounds
	initialized bool
}

func (b *boundsTracker) update(pos *model.Position) {
	if !b.initialized {
		b.bounds = model.TrackBounds{
			MinX: pos.X, MaxX: pos.X,
			MinY: pos.Y, MaxY: pos.Y,
			MinZ: pos.Z, MaxZ: pos.Z,
		}
		b.initialized = true
		return
	}
	b.bounds.MinX = math.Min(b.bounds.MinX, pos.X)
	b.bounds.MaxX = math.Max(b.bounds.MaxX, pos.X)
	b.bounds.MinY = math.Min(b.bounds.MinY, pos.Y)
	b.bounds.MaxY = math.Max(b.bounds.MaxY, pos.Y)
	b.bounds.MinZ = math.Min(b.bounds.MinZ, pos.Z)
	b.bounds.MaxZ = math.Max(b.bounds.MaxZ, pos.Z)
}

func (b *boundsTracker) snapshot() model.TrackBounds {
	return b.bounds
}

func (b *boundsTracker) clear() {
	b.bounds = model.TrackBounds{}
	b.initialized = false
}
