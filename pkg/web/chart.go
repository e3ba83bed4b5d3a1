package web

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gorilla/mux"
)

// handleChart renders a scatter plot (HTML) of the aggregated track
// coordinates with the smoothed racing line on top. Debugging-only
// endpoint to eyeball a map without a frontend.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	spd, err := s.lookup.GetSession(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", key))
		return
	}
	trackMap := spd.Processor.GenerateTrackMap(r.URL.Query().Get("name"))
	if trackMap == nil {
		s.writeError(w, http.StatusNotFound, "track map not ready")
		return
	}
	coords := spd.Processor.AggregatedCoordinates()

	maxAbs := 0.0
	maxVisits := 0
	rawPts := make([]opts.ScatterData, 0, len(coords))
	for _, c := range coords {
		if math.Abs(c.X) > maxAbs {
			maxAbs = math.Abs(c.X)
		}
		if math.Abs(c.Y) > maxAbs {
			maxAbs = math.Abs(c.Y)
		}
		if c.Visits > maxVisits {
			maxVisits = c.Visits
		}
		rawPts = append(rawPts, opts.ScatterData{Value: []interface{}{c.X, c.Y, c.Visits}})
	}
	linePts := make([]opts.ScatterData, 0, len(trackMap.RacingLine))
	for _, p := range trackMap.RacingLine {
		if math.Abs(p.X) > maxAbs {
			maxAbs = math.Abs(p.X)
		}
		if math.Abs(p.Y) > maxAbs {
			maxAbs = math.Abs(p.Y)
		}
		linePts = append(linePts, opts.ScatterData{Value: []interface{}{p.X, p.Y, 0}})
	}

	// Small padding so points at the edges stay visible.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxVisits == 0 {
		maxVisits = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: trackMap.TrackName,
			Theme:     "dark",
			Width:     "900px",
			Height:    "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: trackMap.TrackName,
			Subtitle: fmt.Sprintf("session=%s coords=%d length=%.0fm",
				key, trackMap.Meta.CoordinateCount, trackMap.Meta.TrackLength),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVisits),
			Dimension:  "2",
			InRange: &opts.VisualMapInRange{Color: []string{
				"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
				"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
			}},
		}),
	)

	scatter.AddSeries("coordinates", rawPts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("racing line", linePts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
