// Package cfradial writes and reads single-timestep radar volumes as
// CF/Radial NetCDF (classic format) files using the ctessum/cdf library.
//
// The layout follows CfRadial 1.x conventions: a "time" dimension covering
// every ray of every sweep, a "range" dimension sized for the longest
// sweep, and per-sweep bookkeeping variables (fixed_angle,
// sweep_start_ray_index, sweep_end_ray_index). Per-sweep gate geometry is
// carried in meters_to_first_gate / meters_between_gates / n_gates so
// volumes with mixed bin counts survive a round trip exactly.
package cfradial

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"

	"github.com/arcus-data/radarvol/internal/volume"
)

const (
	// Conventions is the value of the global Conventions attribute.
	Conventions = "CF/Radial"
	// Version is the CfRadial convention version written to new files.
	Version = "1.4"

	fillValue = float32(-9999.0)
)

// Write exports a single-timestep volume to path. Volumes with more than
// one timestep must be narrowed with Volume.At first.
func Write(vol *volume.Volume, path string) error {
	times := vol.Times()
	if len(times) != 1 {
		return fmt.Errorf("cfradial: volume has %d timesteps, export needs exactly 1", len(times))
	}
	base := times[0].UTC().Truncate(time.Second)

	nSweeps := vol.Len()
	nRays, nGates := 0, 0
	for _, sw := range vol.Sweeps() {
		_, na, nr := sw.Dims()
		nRays += na
		if nr > nGates {
			nGates = nr
		}
	}

	fieldNames := collectFieldNames(vol)

	h := cdf.NewHeader([]string{"time", "range", "sweep"}, []int{nRays, nGates, nSweeps})
	h.AddAttribute("", "Conventions", Conventions)
	h.AddAttribute("", "version", Version)
	h.AddAttribute("", "instrument_name", vol.Site.Name)
	h.AddAttribute("", "time_coverage_start", base.Format("2006-01-02T15:04:05Z"))

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "units", "seconds since "+base.Format("2006-01-02T15:04:05Z"))

	h.AddVariable("range", []string{"range"}, []float32{0})
	h.AddAttribute("range", "standard_name", "projection_range_coordinate")
	h.AddAttribute("range", "units", "meters")

	h.AddVariable("azimuth", []string{"time"}, []float32{0})
	h.AddAttribute("azimuth", "standard_name", "ray_azimuth_angle")
	h.AddAttribute("azimuth", "units", "degrees")

	h.AddVariable("elevation", []string{"time"}, []float32{0})
	h.AddAttribute("elevation", "standard_name", "ray_elevation_angle")
	h.AddAttribute("elevation", "units", "degrees")

	h.AddVariable("sweep_number", []string{"sweep"}, []int32{0})
	h.AddVariable("fixed_angle", []string{"sweep"}, []float64{0})
	h.AddAttribute("fixed_angle", "units", "degrees")
	h.AddVariable("sweep_start_ray_index", []string{"sweep"}, []int32{0})
	h.AddVariable("sweep_end_ray_index", []string{"sweep"}, []int32{0})
	h.AddVariable("n_gates", []string{"sweep"}, []int32{0})
	h.AddVariable("meters_to_first_gate", []string{"sweep"}, []float64{0})
	h.AddVariable("meters_between_gates", []string{"sweep"}, []float64{0})

	h.AddVariable("latitude", []string{}, []float64{0})
	h.AddAttribute("latitude", "units", "degrees_north")
	h.AddVariable("longitude", []string{}, []float64{0})
	h.AddAttribute("longitude", "units", "degrees_east")
	h.AddVariable("altitude", []string{}, []float64{0})
	h.AddAttribute("altitude", "units", "meters")

	for _, name := range fieldNames {
		m := volume.MomentByName(name)
		h.AddVariable(name, []string{"time", "range"}, []float32{0})
		if m.Units != "" {
			h.AddAttribute(name, "units", m.Units)
		}
		if m.StandardName != "" {
			h.AddAttribute(name, "standard_name", m.StandardName)
		}
		if m.LongName != "" {
			h.AddAttribute(name, "long_name", m.LongName)
		}
		h.AddAttribute(name, "_FillValue", []float32{fillValue})
	}

	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("cfradial: invalid header: %v", errs[0])
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cfradial: creating %s: %w", path, err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("cfradial: writing header: %w", err)
	}

	if err := writeCoords(f, vol, base, nRays, nGates); err != nil {
		return err
	}
	if err := writeFields(f, vol, fieldNames, nRays, nGates); err != nil {
		return err
	}
	return nil
}

// collectFieldNames returns the union of moment names across sweeps, sorted.
func collectFieldNames(vol *volume.Volume) []string {
	seen := make(map[string]struct{})
	for _, sw := range vol.Sweeps() {
		for name := range sw.Fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeAll(f *cdf.File, name string, data interface{}) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cfradial: writing %s: %w", name, err)
	}
	return nil
}

func writeCoords(f *cdf.File, vol *volume.Volume, base time.Time, nRays, nGates int) error {
	timeOff := make([]float64, 0, nRays)
	azimuth := make([]float32, 0, nRays)
	elevation := make([]float32, 0, nRays)
	sweepNumber := make([]int32, vol.Len())
	fixedAngle := make([]float64, vol.Len())
	startIdx := make([]int32, vol.Len())
	endIdx := make([]int32, vol.Len())
	gates := make([]int32, vol.Len())
	firstGate := make([]float64, vol.Len())
	gateStep := make([]float64, vol.Len())

	ray := 0
	for i, sw := range vol.Sweeps() {
		_, na, nr := sw.Dims()
		off := sw.Times[0].Sub(base).Seconds()
		sweepNumber[i] = int32(i)
		fixedAngle[i] = sw.FixedAngle
		startIdx[i] = int32(ray)
		endIdx[i] = int32(ray + na - 1)
		gates[i] = int32(nr)
		firstGate[i] = sw.RangeStart
		gateStep[i] = sw.RangeStep
		for a := 0; a < na; a++ {
			timeOff = append(timeOff, off)
			azimuth = append(azimuth, float32(sw.Azimuths[a]))
			elevation = append(elevation, float32(sw.FixedAngle))
		}
		ray += na
	}

	// The shared range coordinate uses the geometry of the longest sweep.
	rangeCoord := make([]float32, nGates)
	longest := vol.Sweep(0)
	for _, sw := range vol.Sweeps() {
		if len(sw.Ranges) > len(longest.Ranges) {
			longest = sw
		}
	}
	for i := range rangeCoord {
		rangeCoord[i] = float32(longest.RangeStart + (float64(i)+0.5)*longest.RangeStep)
	}

	for _, step := range []struct {
		name string
		data interface{}
	}{
		{"time", timeOff},
		{"range", rangeCoord},
		{"azimuth", azimuth},
		{"elevation", elevation},
		{"sweep_number", sweepNumber},
		{"fixed_angle", fixedAngle},
		{"sweep_start_ray_index", startIdx},
		{"sweep_end_ray_index", endIdx},
		{"n_gates", gates},
		{"meters_to_first_gate", firstGate},
		{"meters_between_gates", gateStep},
		{"latitude", []float64{vol.Site.Latitude}},
		{"longitude", []float64{vol.Site.Longitude}},
		{"altitude", []float64{vol.Site.Altitude}},
	} {
		if err := writeAll(f, step.name, step.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFields(f *cdf.File, vol *volume.Volume, fieldNames []string, nRays, nGates int) error {
	for _, name := range fieldNames {
		buf := make([]float32, nRays*nGates)
		for i := range buf {
			buf[i] = fillValue
		}
		ray := 0
		for _, sw := range vol.Sweeps() {
			_, na, nr := sw.Dims()
			fld := sw.Field(name)
			if fld != nil {
				for a := 0; a < na; a++ {
					row := (ray + a) * nGates
					for r := 0; r < nr; r++ {
						v := fld.Data.Get(0, a, r)
						if !math.IsNaN(v) {
							buf[row+r] = float32(v)
						}
					}
				}
			}
			ray += na
		}
		if err := writeAll(f, name, buf); err != nil {
			return err
		}
	}
	return nil
}
