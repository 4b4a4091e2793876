package cfradial

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/arcus-data/radarvol/internal/volume"
)

// coordinate and bookkeeping variables; everything else is a data field.
var nonFieldVars = map[string]struct{}{
	"time": {}, "range": {}, "azimuth": {}, "elevation": {},
	"sweep_number": {}, "fixed_angle": {},
	"sweep_start_ray_index": {}, "sweep_end_ray_index": {},
	"n_gates": {}, "meters_to_first_gate": {}, "meters_between_gates": {},
	"latitude": {}, "longitude": {}, "altitude": {},
}

// Read imports a CfRadial file written by Write (or a compatible producer)
// back into a single-timestep Volume.
func Read(path string) (*volume.Volume, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cfradial: opening %s: %w", path, err)
	}
	defer ff.Close()

	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("cfradial: reading header of %s: %w", path, err)
	}

	conv, _ := f.Header.GetAttribute("", "Conventions").(string)
	if conv != Conventions {
		return nil, fmt.Errorf("cfradial: %s has Conventions=%q, want %q", path, conv, Conventions)
	}
	startStr, _ := f.Header.GetAttribute("", "time_coverage_start").(string)
	base, err := time.Parse("2006-01-02T15:04:05Z", startStr)
	if err != nil {
		return nil, fmt.Errorf("cfradial: bad time_coverage_start %q: %w", startStr, err)
	}
	instrument, _ := f.Header.GetAttribute("", "instrument_name").(string)

	lat, err := readScalar(f, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := readScalar(f, "longitude")
	if err != nil {
		return nil, err
	}
	alt, err := readScalar(f, "altitude")
	if err != nil {
		return nil, err
	}
	site := volume.Site{Name: instrument, Latitude: lat, Longitude: lon, Altitude: alt}

	timeOff, err := readFloat64s(f, "time")
	if err != nil {
		return nil, err
	}
	azimuth, err := readFloat64s(f, "azimuth")
	if err != nil {
		return nil, err
	}
	fixedAngle, err := readFloat64s(f, "fixed_angle")
	if err != nil {
		return nil, err
	}
	startIdx, err := readInt32s(f, "sweep_start_ray_index")
	if err != nil {
		return nil, err
	}
	endIdx, err := readInt32s(f, "sweep_end_ray_index")
	if err != nil {
		return nil, err
	}
	gates, err := readInt32s(f, "n_gates")
	if err != nil {
		return nil, err
	}
	firstGate, err := readFloat64s(f, "meters_to_first_gate")
	if err != nil {
		return nil, err
	}
	gateStep, err := readFloat64s(f, "meters_between_gates")
	if err != nil {
		return nil, err
	}

	nGates := f.Header.Lengths("range")[0]
	fieldNames := []string{}
	for _, name := range f.Header.Variables() {
		if _, skip := nonFieldVars[name]; !skip {
			fieldNames = append(fieldNames, name)
		}
	}
	fieldData := make(map[string][]float64, len(fieldNames))
	for _, name := range fieldNames {
		fieldData[name], err = readFloat64s(f, name)
		if err != nil {
			return nil, err
		}
	}

	nSweeps := len(fixedAngle)
	sweeps := make([]*volume.Sweep, 0, nSweeps)
	for i := 0; i < nSweeps; i++ {
		s0, s1 := int(startIdx[i]), int(endIdx[i])
		if s0 < 0 || s1 < s0 || s1 >= len(azimuth) {
			return nil, fmt.Errorf("cfradial: sweep %d has ray range [%d,%d] outside %d rays", i, s0, s1, len(azimuth))
		}
		na := s1 - s0 + 1
		nr := int(gates[i])
		if nr > nGates {
			return nil, fmt.Errorf("cfradial: sweep %d claims %d gates, range dimension is %d", i, nr, nGates)
		}

		sw := &volume.Sweep{
			FixedAngle: fixedAngle[i],
			Times:      []time.Time{base.Add(time.Duration(timeOff[s0] * float64(time.Second)))},
			Azimuths:   append([]float64(nil), azimuth[s0:s1+1]...),
			Ranges:     make([]float64, nr),
			RangeStart: firstGate[i],
			RangeStep:  gateStep[i],
			Fields:     make(map[string]*volume.Field),
		}
		for r := 0; r < nr; r++ {
			sw.Ranges[r] = firstGate[i] + (float64(r)+0.5)*gateStep[i]
		}

		for _, name := range fieldNames {
			src := fieldData[name]
			data := sparse.ZerosDense(1, na, nr)
			any := false
			for a := 0; a < na; a++ {
				row := (s0 + a) * nGates
				for r := 0; r < nr; r++ {
					v := src[row+r]
					if float32(v) == fillValue {
						v = math.NaN()
					} else {
						any = true
					}
					data.Set(v, 0, a, r)
				}
			}
			// An all-fill block means the sweep never carried this moment.
			if any {
				sw.Fields[name] = &volume.Field{Moment: volume.MomentByName(name), Data: data}
			}
		}
		sweeps = append(sweeps, sw)
	}

	return volume.NewVolume(site, sweeps)
}

func readRaw(f *cdf.File, name string) (interface{}, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("cfradial: reading %s: %w", name, err)
	}
	return buf, nil
}

func readScalar(f *cdf.File, name string) (float64, error) {
	vals, err := readFloat64s(f, name)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("cfradial: %s has %d values, want 1", name, len(vals))
	}
	return vals[0], nil
}

func readFloat64s(f *cdf.File, name string) ([]float64, error) {
	buf, err := readRaw(f, name)
	if err != nil {
		return nil, err
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cfradial: %s has unexpected type %T", name, buf)
	}
}

func readInt32s(f *cdf.File, name string) ([]int32, error) {
	buf, err := readRaw(f, name)
	if err != nil {
		return nil, err
	}
	b, ok := buf.([]int32)
	if !ok {
		return nil, fmt.Errorf("cfradial: %s has unexpected type %T", name, buf)
	}
	return b, nil
}
