package track

const driversKey = "drivers"

// timingSample carries the fields of one driver's timing update that enrich
// the cached live position. The has* flags tell which fields were present.
type timingSample struct {
	sector       int
	hasSector    bool
	speed        float64
	hasSpeed     bool
	lapNumber    int
	hasLapNumber bool
	racePosition int
	hasRacePos   bool
}

// normalizeTiming converts a raw timing frame into per vehicle samples.
// A frame without a drivers collection yields nil.
func normalizeTiming(data map[string]interface{}) map[string]timingSample {
	if data == nil {
		return nil
	}
	rawDrivers, ok := data[driversKey].(map[string]interface{})
	if !ok {
		return nil
	}
	ret := make(map[string]timingSample, len(rawDrivers))
	for vehicleID, rawEntry := range rawDrivers {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			continue
		}
		var sample timingSample
		if v, ok := getFloatVal(entry["speed"]); ok {
			sample.speed, sample.hasSpeed = v, true
		}
		if v, ok := getIntVal(entry["lapNumber"]); ok {
			sample.lapNumber, sample.hasLapNumber = v, true
		}
		if v, ok := getIntVal(entry["position"]); ok {
			sample.racePosition, sample.hasRacePos = v, true
		}
		sample.sector, sample.hasSector = extractSector(entry)
		ret[vehicleID] = sample
	}
	return ret
}

// extractSector reads the current sector. The feed either sends a plain
// number ("sector") or the per sector results ("sectors"), in which case the
// number of entries marks the sector in progress.
func extractSector(entry map[string]interface{}) (int, bool) {
	if v, ok := getIntVal(entry["sector"]); ok {
		return v, true
	}
	switch val := entry["sectors"].(type) {
	case []interface{}:
		return len(val), true
	case map[string]interface{}:
		return len(val), true
	}
	return 0, false
}
