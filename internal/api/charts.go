package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// sessionChart renders a quick HTML chart of one recorded session using
// go-echarts. This is a debugging-only endpoint to eyeball gate behaviour
// against distance without exporting the data.
// Query params:
//   - session (required): session ID to chart
func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing session parameter")
		return
	}

	frames, err := s.db.Frames(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}
	if len(frames) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no frames recorded for session")
		return
	}

	labels := make([]string, 0, len(frames))
	distance := make([]opts.LineData, 0, len(frames))
	marker := make([]opts.LineData, 0, len(frames))
	decision := make([]opts.LineData, 0, len(frames))
	for _, f := range frames {
		labels = append(labels, fmt.Sprintf("%d", f.FrameIndex))

		if f.DistanceValid {
			distance = append(distance, opts.LineData{Value: f.DistanceCM})
		} else {
			distance = append(distance, opts.LineData{Value: nil})
		}
		marker = append(marker, opts.LineData{Value: boolToInt(f.MarkerDetected)})
		decision = append(decision, opts.LineData{Value: boolToInt(f.MayContinue)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gate Session", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Gate Session", Subtitle: fmt.Sprintf("session=%s frames=%d", sessionID, len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (cm) / flags"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("distance_cm", distance).
		AddSeries("marker_detected", marker).
		AddSeries("may_continue", decision).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
