package plot

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/arcus-data/radarvol/internal/fsutil"
	"github.com/arcus-data/radarvol/internal/georef"
	"github.com/arcus-data/radarvol/internal/volume"
)

// histogramBins is the number of bars in each per-sweep value histogram.
const histogramBins = 20

// coverageMaxPoints caps the number of bins rendered in a coverage
// scatter to keep report payloads manageable.
const coverageMaxPoints = 8000

// viridis is the color ramp used for coverage scatters.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Report renders HTML volume summaries through a swappable filesystem so
// tests can capture output in memory.
type Report struct {
	fs fsutil.FileSystem
}

// NewReport returns a report writer backed by the given filesystem. A nil
// filesystem means the OS filesystem.
func NewReport(fs fsutil.FileSystem) *Report {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Report{fs: fs}
}

// Write renders an HTML report for the volume: a sweep geometry chart, a
// value histogram per sweep for the given moment, and a coverage scatter
// per sweep at the first timestep.
func (r *Report) Write(vol *volume.Volume, fieldName, path string) error {
	if vol.Len() == 0 {
		return fmt.Errorf("empty volume")
	}

	page := components.NewPage()
	page.AddCharts(geometryChart(vol))

	for i, sw := range vol.Sweeps() {
		f := sw.Field(fieldName)
		if f == nil {
			continue
		}
		if hist := histogramChart(sw, f); hist != nil {
			page.AddCharts(hist)
		}
		page.AddCharts(coverageChart(sw, f, i))
	}

	w, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := page.Render(w); err != nil {
		w.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return w.Close()
}

// geometryChart summarizes each sweep's shape: rays and bins per fixed angle.
func geometryChart(vol *volume.Volume) *charts.Bar {
	labels := make([]string, 0, vol.Len())
	rays := make([]opts.BarData, 0, vol.Len())
	bins := make([]opts.BarData, 0, vol.Len())
	for _, sw := range vol.Sweeps() {
		_, na, nr := sw.Dims()
		labels = append(labels, fmt.Sprintf("%.1f°", sw.FixedAngle))
		rays = append(rays, opts.BarData{Value: na})
		bins = append(bins, opts.BarData{Value: nr})
	}

	times := vol.Times()
	subtitle := fmt.Sprintf("site=%s sweeps=%d timesteps=%d", vol.Site.Name, vol.Len(), len(times))
	if len(times) > 0 {
		subtitle += " start=" + times[0].UTC().Format("2006-01-02T15:04:05Z")
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sweep Geometry", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("rays", rays).
		AddSeries("bins", bins,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// histogramChart renders the value distribution of one sweep's field across
// all timesteps, or nil when the sweep has no valid bins.
func histogramChart(sw *volume.Sweep, f *volume.Field) *charts.Bar {
	labels, counts := histogram(f, histogramBins)
	if labels == nil {
		return nil
	}

	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s Distribution at %.1f°", f.Moment.Name, sw.FixedAngle),
			Subtitle: fmt.Sprintf("units=%s", f.Moment.Units),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries(f.Moment.Name, data)
	return bar
}

// histogram buckets a field's finite values into n equal-width bins and
// returns bin labels and counts. Both are nil when no valid bins exist.
func histogram(f *volume.Field, n int) (labels []string, counts []float64) {
	values := make([]float64, 0, len(f.Data.Elements))
	for _, v := range f.Data.Elements {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}
	sort.Float64s(values)

	lo, hi := values[0], values[len(values)-1]
	if hi == lo {
		hi = lo + 1
	}
	// Nudge the top divider so the maximum lands inside the last bin.
	span := hi - lo
	dividers := make([]float64, n+1)
	for i := range dividers {
		dividers[i] = lo + span*float64(i)/float64(n)
	}
	dividers[n] = math.Nextafter(hi, math.Inf(1))

	counts = stat.Histogram(make([]float64, n), dividers, values, nil)
	labels = make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = fmt.Sprintf("%.1f", lo+span*(float64(i)+0.5)/float64(n))
	}
	return labels, counts
}

// coverageChart scatters one sweep's valid bins at the first timestep on a
// site-centered plane, colored by value.
func coverageChart(sw *volume.Sweep, f *volume.Field, sweepIdx int) *charts.Scatter {
	_, na, nr := sw.Dims()

	stride := 1
	if na*nr > coverageMaxPoints {
		stride = int(math.Ceil(float64(na*nr) / float64(coverageMaxPoints)))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	data := make([]opts.ScatterData, 0, na*nr/stride+1)
	maxAbs := 0.0
	for i := 0; i < na*nr; i += stride {
		a, rg := i/nr, i%nr
		v := f.Data.Get(0, a, rg)
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		x, y := georef.BinXY(sw.Azimuths[a], sw.FixedAngle, sw.Ranges[rg])
		x, y = x/1000, y/1000
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, v}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Coverage at %.1f°", sw.FixedAngle),
			Subtitle: fmt.Sprintf("sweep=%d field=%s points=%d stride=%d", sweepIdx, f.Moment.Name, len(data), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "East (km)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "North (km)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(f.Moment.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter
}
