//nolint:thelper,funlen,lll // ok for tests
package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/processing/track"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *utils.SessionLookup) {
	t.Helper()
	lookup := utils.NewSessionLookup()
	t.Cleanup(lookup.Close)
	srv := NewServer(lookup, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, lookup
}

func doRequest(t *testing.T, method, url string, body interface{}, token string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("api-token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func decodeInto(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("decode response %s: %v", string(data), err)
	}
}

func frameBody(frameType string, payload map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": frameType,
		"at":   time.Now(),
		"data": payload,
	}
}

func positionPayload(entries map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"Position": entries}
}

func createSession(t *testing.T, ts *httptest.Server, key, trackName, token string) {
	t.Helper()
	status, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Key: key, Name: "Test", TrackName: trackName}, token)
	if status != http.StatusCreated {
		t.Fatalf("create session: got status %d", status)
	}
}

// ingestLine feeds n position frames for vehicle "1" along the x axis.
func ingestLine(t *testing.T, ts *httptest.Server, key string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status, data := doRequest(t, http.MethodPost, ts.URL+"/api/v1/ingest/"+key,
			frameBody("position", positionPayload(map[string]interface{}{
				"1": map[string]interface{}{"X": float64(i), "Y": 0.0},
			})), "")
		if status != http.StatusOK {
			t.Fatalf("ingest frame %d: got status %d (%s)", i, status, string(data))
		}
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	status, data := doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var sessions []model.SessionInfo
	decodeInto(t, data, &sessions)
	assert.Empty(t, sessions)

	createSession(t, ts, "s1", "Monza", "")

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var info model.SessionInfo
	decodeInto(t, data, &info)
	assert.Equal(t, "s1", info.Key)
	assert.Equal(t, "Monza", info.TrackName)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Key: "s1"}, "")
	assert.Equal(t, http.StatusConflict, status)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions", nil, "")
	assert.Equal(t, http.StatusOK, status)
	decodeInto(t, data, &sessions)
	assert.Len(t, sessions, 1)

	status, _ = doRequest(t, http.MethodDelete, ts.URL+"/api/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, http.MethodDelete, ts.URL+"/api/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_CreateSessionGeneratesKey(t *testing.T) {
	ts, lookup := newTestServer(t)

	status, data := doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Name: "Practice"}, "")
	assert.Equal(t, http.StatusCreated, status)
	var info model.SessionInfo
	decodeInto(t, data, &info)
	assert.NotEmpty(t, info.Key)
	_, err := lookup.GetSession(info.Key)
	assert.NoError(t, err)
}

func TestServer_IngestAndQuery(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")
	ingestLine(t, ts, "s1", 12)

	status, data := doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/stats", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var stats track.Stats
	decodeInto(t, data, &stats)
	assert.Equal(t, 12, stats.CoordinateCount)
	assert.Equal(t, 1, stats.VehicleCount)
	assert.True(t, stats.HasTrackData)
	assert.True(t, stats.HasPositionData)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/trackmap", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var trackMap model.TrackMap
	decodeInto(t, data, &trackMap)
	assert.Equal(t, "Monza", trackMap.TrackName)
	assert.Equal(t, 12, trackMap.Meta.CoordinateCount)
	assert.InDelta(t, 9.0, trackMap.Meta.TrackLength, 0.001)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/trackmap?name=Spa", nil, "")
	assert.Equal(t, http.StatusOK, status)
	decodeInto(t, data, &trackMap)
	assert.Equal(t, "Spa", trackMap.TrackName)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/positions", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var positions map[string]model.LivePosition
	decodeInto(t, data, &positions)
	assert.Contains(t, positions, "1")

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/bounds", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var bounds model.TrackBounds
	decodeInto(t, data, &bounds)
	assert.Equal(t, 0.0, bounds.MinX)
	assert.Equal(t, 11.0, bounds.MaxX)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/export", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var export model.TrackMapExport
	decodeInto(t, data, &export)
	assert.True(t, export.Meta.HasTrackData)
	assert.True(t, export.Meta.HasPositionData)
	assert.NotNil(t, export.TrackMap)
	assert.Contains(t, export.DriverPositions, "1")

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions/s1/clear", nil, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/trackmap", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/stats", nil, "")
	assert.Equal(t, http.StatusOK, status)
	decodeInto(t, data, &stats)
	assert.Equal(t, 0, stats.CoordinateCount)
}

func TestServer_IngestTimingEnrichesPositions(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")
	ingestLine(t, ts, "s1", 3)

	status, data := doRequest(t, http.MethodPost, ts.URL+"/api/v1/ingest/s1",
		frameBody("timing", map[string]interface{}{
			"drivers": map[string]interface{}{
				"1": map[string]interface{}{
					"speed":     287.5,
					"lapNumber": 12,
					"position":  3,
					"sector":    2,
				},
			},
		}), "")
	assert.Equal(t, http.StatusOK, status)
	var resp ingestResponse
	decodeInto(t, data, &resp)
	assert.Equal(t, 0, resp.Updates)

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/positions", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var positions map[string]model.LivePosition
	decodeInto(t, data, &positions)
	assert.Equal(t, 287.5, positions["1"].Speed)
	assert.Equal(t, 12, positions["1"].LapNumber)
	assert.Equal(t, 3, positions["1"].RacePosition)
	assert.Equal(t, 2, positions["1"].Sector)
}

func TestServer_IngestRejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "garbage", body: "no envelope", want: http.StatusBadRequest},
		{name: "missing type", body: map[string]interface{}{"data": map[string]interface{}{}}, want: http.StatusBadRequest},
		{name: "unknown type", body: frameBody("telemetry", map[string]interface{}{}), want: http.StatusBadRequest},
		{
			name: "payload not an object",
			body: map[string]interface{}{"type": "position", "data": []int{1, 2}},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/ingest/s1", tt.body, "")
			assert.Equal(t, tt.want, status)
		})
	}

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/ingest/unknown",
		frameBody("position", positionPayload(map[string]interface{}{})), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_TokenGuard(t *testing.T) {
	ts, _ := newTestServer(t, WithProviderToken("secret"))

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Key: "s1"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Key: "s1"}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions",
		createSessionRequest{Key: "s1", TrackName: "Monza"}, "secret")
	assert.Equal(t, http.StatusCreated, status)

	// reads stay open
	status, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/ingest/s1",
		frameBody("position", positionPayload(map[string]interface{}{})), "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/sessions/s1/clear", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_TrackMapNotReady(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")
	ingestLine(t, ts, "s1", 5)

	status, data := doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/trackmap", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	var errResp map[string]string
	decodeInto(t, data, &errResp)
	assert.Contains(t, errResp["error"], "not ready")

	status, data = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1/export", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var export model.TrackMapExport
	decodeInto(t, data, &export)
	assert.False(t, export.Meta.HasTrackData)
	assert.True(t, export.Meta.HasPositionData)
	assert.Nil(t, export.TrackMap)
}

func TestServer_VersionAndHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")

	status, data := doRequest(t, http.MethodGet, ts.URL+"/version", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var versionInfo map[string]string
	decodeInto(t, data, &versionInfo)
	assert.NotEmpty(t, versionInfo["version"])

	status, data = doRequest(t, http.MethodGet, ts.URL+"/health", nil, "")
	assert.Equal(t, http.StatusOK, status)
	var health map[string]interface{}
	decodeInto(t, data, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["sessions"])
}

func TestServer_ChartEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")

	status, _ := doRequest(t, http.MethodGet, ts.URL+"/debug/chart/s1", nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	ingestLine(t, ts, "s1", 12)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/debug/chart/s1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get chart: %v", err)
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	data, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(data), "Monza")
}

func TestServer_SessionInfoCacheInvalidation(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts, "s1", "Monza", "")

	// prime the cache, then remove the session
	status, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = doRequest(t, http.MethodDelete, ts.URL+"/api/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, http.MethodGet, ts.URL+fmt.Sprintf("/api/v1/sessions/%s", "s1"), nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}
