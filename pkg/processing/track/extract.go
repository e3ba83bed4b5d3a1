package track

import "strconv"

// The feed delivers loosely typed JSON. Depending on the parser in front of
// us numbers arrive as float64, int64 or even strings, so all extraction
// goes through these helpers.

func getFloatVal(rawVal interface{}) (float64, bool) {
	switch val := rawVal.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func getIntVal(rawVal interface{}) (int, bool) {
	switch val := rawVal.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func getStringVal(rawVal interface{}) (string, bool) {
	if val, ok := rawVal.(string); ok {
		return val, true
	}
	return "", false
}
