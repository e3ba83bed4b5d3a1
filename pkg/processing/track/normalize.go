package track

import (
	"time"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

const positionKey = "Position"

// normalizePositions converts a raw position frame into per vehicle Position
// records. A frame without a position collection yields nil ("no update", not
// an error). Entries missing X or Y or carrying unparsable values are
// skipped. A bad Z falls back to 0, matching the lenient parse of the
// upstream feed.
func normalizePositions(
	data map[string]interface{}, now time.Time,
) map[string]*model.Position {
	if data == nil {
		return nil
	}
	rawEntries, ok := data[positionKey].(map[string]interface{})
	if !ok {
		return nil
	}
	ret := make(map[string]*model.Position, len(rawEntries))
	for vehicleID, rawEntry := range rawEntries {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			continue
		}
		rawX, hasX := entry["X"]
		rawY, hasY := entry["Y"]
		if !hasX || !hasY {
			continue
		}
		x, okX := getFloatVal(rawX)
		y, okY := getFloatVal(rawY)
		if !okX || !okY {
			continue
		}
		z, _ := getFloatVal(entry["Z"])
		status := model.StatusActive
		if s, ok := getStringVal(entry["Status"]); ok {
			status = s
		}
		ret[vehicleID] = &model.Position{
			X:         x,
			Y:         y,
			Z:         z,
			Status:    status,
			Timestamp: now,
		}
	}
	return ret
}
