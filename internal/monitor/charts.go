package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gesture.arbiter/internal/gesture/stats"
	"github.com/banshee-data/gesture.arbiter/internal/httputil"
)

// handleStatsChart renders error counts and confidence sums per label.
// Query params:
//   - profile (optional) limits the chart to one classifier path; "" is the
//     indexed scope
func (s *Server) handleStatsChart(w http.ResponseWriter, r *http.Request) {
	rows := s.ctrl.Stats().Snapshot()
	if q := r.URL.Query(); q.Has("profile") {
		rows = filterProfile(rows, q.Get("profile"))
	}
	if len(rows) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no gesture statistics available")
		return
	}

	page := components.NewPage()
	page.PageTitle = "Gesture statistics"
	page.AddCharts(errorChart(rows), confidenceChart(rows))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.log.Printf("render stats chart: %v", err)
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func filterProfile(rows []stats.Row, profile string) []stats.Row {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Profile == profile {
			out = append(out, r)
		}
	}
	return out
}

func labels(rows []stats.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Label
	}
	return out
}

func newBar(title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1000px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	return bar
}

func errorChart(rows []stats.Row) *charts.Bar {
	common := make([]opts.BarData, len(rows))
	user := make([]opts.BarData, len(rows))
	for i, r := range rows {
		common[i] = opts.BarData{Value: r.Errors.Common}
		user[i] = opts.BarData{Value: r.Errors.User}
	}
	bar := newBar("Recognizer errors", "wrong answers on the stored exemplars")
	bar.SetXAxis(labels(rows)).
		AddSeries("common", common).
		AddSeries("custom", user)
	return bar
}

func confidenceChart(rows []stats.Row) *charts.Bar {
	common := make([]opts.BarData, len(rows))
	user := make([]opts.BarData, len(rows))
	for i, r := range rows {
		common[i] = opts.BarData{Value: r.Confidence.Common}
		user[i] = opts.BarData{Value: r.Confidence.User}
	}
	bar := newBar("Confidence sums", "summed scores of correct answers")
	bar.SetXAxis(labels(rows)).
		AddSeries("common", common).
		AddSeries("custom", user)
	return bar
}
