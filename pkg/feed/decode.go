package feed

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// DecodeEnvelope parses a wire frame. The inner payload stays raw, it is
// decoded lazily by DecodePayload on the ingest path.
func DecodeEnvelope(raw []byte) (*model.FrameEnvelope, error) {
	var ret model.FrameEnvelope
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("could not decode frame envelope: %w", err)
	}
	if ret.Type == "" {
		return nil, fmt.Errorf("frame envelope without type")
	}
	return &ret, nil
}

// DecodePayload parses the telemetry payload of a frame. The upstream feeds
// are lenient about types (numbers as strings and the like), so we parse
// into a generic map and leave the field handling to the engine.
func DecodePayload(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}
	obj, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse frame payload: %w", err)
	}
	ret, ok := obj.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("frame payload is not an object")
	}
	return ret, nil
}
