package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/httputil"
)

var axisColors = []color.Color{
	color.RGBA{R: 0xe4, G: 0x1a, B: 0x1c, A: 0xff},
	color.RGBA{R: 0x4d, G: 0xaf, B: 0x4a, A: 0xff},
	color.RGBA{R: 0x37, G: 0x7e, B: 0xb8, A: 0xff},
}

// tracePlot draws the three rotation axes of s against elapsed time.
func tracePlot(s gesture.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sample %d (%d entries)", s.ID, s.Len())
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Angular velocity"
	p.Add(plotter.NewGrid())

	for axis, name := range []string{"x", "y", "z"} {
		pts := make(plotter.XYs, s.Len())
		var t float64
		for i, e := range s.Entries {
			t += float64(e.Time())
			pts[i].X = t
			pts[i].Y = float64(e.Rotation()[axis])
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", name, err)
		}
		line.Color = axisColors[axis]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// handleSampleTrace renders a cached sample as PNG. Without ?id= the most
// recent sample is drawn.
func (s *Server) handleSampleTrace(w http.ResponseWriter, r *http.Request) {
	cache := s.ctrl.Cache()
	var (
		sample gesture.Sample
		ok     bool
	)
	if v := r.URL.Query().Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid id")
			return
		}
		sample, ok = cache.Get(gesture.SampleID(id))
	} else {
		sample, ok = cache.Last()
	}
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "sample not cached")
		return
	}
	if sample.Empty() {
		httputil.WriteJSONError(w, http.StatusNotFound, "sample has no entries")
		return
	}

	p, err := tracePlot(sample)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		s.log.Printf("write sample trace: %v", err)
	}
}
