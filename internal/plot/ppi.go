// Package plot renders volume visualizations: PPI images per sweep and
// moment, and an HTML report summarizing a whole volume.
package plot

import (
	"fmt"
	"image/color"
	"math"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/arcus-data/radarvol/internal/georef"
	"github.com/arcus-data/radarvol/internal/volume"
)

// ppiBuckets is the number of value bands a PPI is colored with.
const ppiBuckets = 10

// SavePPI renders a plan position indicator of one moment at one timestep
// of a sweep and saves it as a PNG. Bins are placed on a site-centered
// plane in kilometers and colored by banded value.
func SavePPI(sw *volume.Sweep, fieldName string, timestep int, path string) error {
	f := sw.Field(fieldName)
	if f == nil {
		return fmt.Errorf("sweep %.1f° has no field %q", sw.FixedAngle, fieldName)
	}
	nt, na, nr := sw.Dims()
	if timestep < 0 || timestep >= nt {
		return fmt.Errorf("timestep %d out of range [0,%d)", timestep, nt)
	}

	lo, hi, valid := valueRange(f, timestep)
	if valid == 0 {
		return fmt.Errorf("sweep %.1f° field %s: no valid bins at timestep %d", sw.FixedAngle, fieldName, timestep)
	}

	// Band bins by value so each band becomes one scatter series with its
	// own color and legend entry.
	bands := make([]plotter.XYs, ppiBuckets)
	span := hi - lo
	for a := 0; a < na; a++ {
		for r := 0; r < nr; r++ {
			v := f.Data.Get(timestep, a, r)
			if math.IsNaN(v) {
				continue
			}
			b := 0
			if span > 0 {
				b = int((v - lo) / span * float64(ppiBuckets))
				if b >= ppiBuckets {
					b = ppiBuckets - 1
				}
			}
			x, y := georef.BinXY(sw.Azimuths[a], sw.FixedAngle, sw.Ranges[r])
			bands[b] = append(bands[b], plotter.XY{X: x / 1000, Y: y / 1000})
		}
	}

	p := gplot.New()
	p.Title.Text = fmt.Sprintf("%s PPI at %.1f° — %s", fieldName, sw.FixedAngle,
		sw.Times[timestep].UTC().Format("2006-01-02 15:04:05 UTC"))
	p.X.Label.Text = "East (km)"
	p.Y.Label.Text = "North (km)"

	// Square, symmetric axes so range rings stay circular.
	maxKm := (sw.Ranges[nr-1] + sw.RangeStep/2) / 1000
	p.X.Min, p.X.Max = -maxKm, maxKm
	p.Y.Min, p.Y.Max = -maxKm, maxKm

	colors := generateColors(ppiBuckets)
	units := f.Moment.Units
	for b, pts := range bands {
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("band %d: %w", b, err)
		}
		s.GlyphStyle.Color = colors[b]
		s.GlyphStyle.Radius = vg.Points(1.2)
		p.Add(s)
		bandLo := lo + span*float64(b)/ppiBuckets
		p.Legend.Add(fmt.Sprintf("≥ %.1f %s", bandLo, units), s)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save PPI: %w", err)
	}
	return nil
}

// valueRange scans one timestep of a field and returns the finite value
// extent and the count of valid bins.
func valueRange(f *volume.Field, timestep int) (lo, hi float64, valid int) {
	lo, hi = math.Inf(1), math.Inf(-1)
	na, nr := f.Data.Shape[1], f.Data.Shape[2]
	for a := 0; a < na; a++ {
		for r := 0; r < nr; r++ {
			v := f.Data.Get(timestep, a, r)
			if math.IsNaN(v) {
				continue
			}
			valid++
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi, valid
}

// generateColors creates a palette of distinct colors for value bands.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
