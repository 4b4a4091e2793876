// Package volume holds the in-memory model for assembled radar volume
// scans: ordered sweeps of labeled (time, azimuth, range) arrays, one data
// field per measured moment.
package volume

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// siteEps is the tolerance, in degrees / meters, used when deciding whether
// two decoded scans describe the same radar site.
const siteEps = 1e-4

// Site identifies the radar installation a volume was recorded at.
type Site struct {
	Name      string  // source identifier, e.g. "NOD:deess,WMO:10410"
	Latitude  float64 // degrees north
	Longitude float64 // degrees east
	Altitude  float64 // meters above sea level
}

// SameLocation reports whether two sites are at the same place within
// measurement tolerance. Names are not compared; archives are inconsistent
// about source strings across elevations.
func (s Site) SameLocation(o Site) bool {
	return math.Abs(s.Latitude-o.Latitude) < siteEps &&
		math.Abs(s.Longitude-o.Longitude) < siteEps &&
		math.Abs(s.Altitude-o.Altitude) < 1.0
}

// Field is one moment's data within a sweep: a dense array with shape
// [len(Times), len(Azimuths), len(Ranges)] where missing bins are NaN.
type Field struct {
	Moment Moment
	Data   *sparse.DenseArray
}

// Copy returns a deep copy of the field.
func (f *Field) Copy() *Field {
	return &Field{Moment: f.Moment, Data: f.Data.Copy()}
}

// Sweep is all timesteps of one elevation angle: per-moment fields sharing
// the coordinate axes (Times, Azimuths, Ranges).
type Sweep struct {
	FixedAngle float64 // elevation, degrees above horizontal

	Times    []time.Time // start time of each timestep's rotation
	Azimuths []float64   // ray center azimuths, degrees clockwise from north
	Ranges   []float64   // bin center distances from the antenna, meters

	RangeStart float64 // distance to the leading edge of the first bin, meters
	RangeStep  float64 // bin length, meters

	Fields map[string]*Field // keyed by moment name
}

// Dims returns the (time, azimuth, range) extents of the sweep.
func (s *Sweep) Dims() (nt, na, nr int) {
	return len(s.Times), len(s.Azimuths), len(s.Ranges)
}

// FieldNames returns the sweep's moment names in sorted order.
func (s *Sweep) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for n := range s.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Field returns the named field, or nil if the sweep does not carry it.
func (s *Sweep) Field(name string) *Field {
	return s.Fields[name]
}

// validate checks that every field matches the sweep's coordinate extents.
func (s *Sweep) validate() error {
	nt, na, nr := s.Dims()
	if nt == 0 || na == 0 || nr == 0 {
		return fmt.Errorf("sweep %.1f°: empty dimension (time=%d azimuth=%d range=%d)", s.FixedAngle, nt, na, nr)
	}
	for name, f := range s.Fields {
		shape := f.Data.Shape
		if len(shape) != 3 || shape[0] != nt || shape[1] != na || shape[2] != nr {
			return fmt.Errorf("sweep %.1f° field %s: shape %v does not match coordinates [%d %d %d]",
				s.FixedAngle, name, shape, nt, na, nr)
		}
	}
	return nil
}

// Volume is an ordered set of sweeps for one radar site, indexed by
// ascending fixed elevation angle. All sweeps share the same timestep set.
type Volume struct {
	Site   Site
	sweeps []*Sweep
}

// Len returns the number of sweeps (distinct elevation angles).
func (v *Volume) Len() int { return len(v.sweeps) }

// Sweep returns the i-th sweep in elevation order.
func (v *Volume) Sweep(i int) *Sweep { return v.sweeps[i] }

// Sweeps returns the sweeps in elevation order. The slice is shared; do not
// reorder it.
func (v *Volume) Sweeps() []*Sweep { return v.sweeps }

// FixedAngles returns the elevation angle of each sweep, in order.
func (v *Volume) FixedAngles() []float64 {
	angles := make([]float64, len(v.sweeps))
	for i, s := range v.sweeps {
		angles[i] = s.FixedAngle
	}
	return angles
}

// Times returns the shared timestep start times. Volumes produced by
// Assemble guarantee every sweep carries the same timesteps.
func (v *Volume) Times() []time.Time {
	if len(v.sweeps) == 0 {
		return nil
	}
	return v.sweeps[0].Times
}

// At returns a single-timestep copy of the volume for the timestep starting
// at t. Field arrays keep their three dimensions with a time extent of one.
func (v *Volume) At(t time.Time) (*Volume, error) {
	times := v.Times()
	ti := -1
	for i, vt := range times {
		if vt.Equal(t) {
			ti = i
			break
		}
	}
	if ti < 0 {
		return nil, fmt.Errorf("volume has no timestep at %s", t.UTC().Format(time.RFC3339))
	}
	out := &Volume{Site: v.Site, sweeps: make([]*Sweep, len(v.sweeps))}
	for i, s := range v.sweeps {
		_, na, nr := s.Dims()
		ns := &Sweep{
			FixedAngle: s.FixedAngle,
			Times:      []time.Time{s.Times[ti]},
			Azimuths:   append([]float64(nil), s.Azimuths...),
			Ranges:     append([]float64(nil), s.Ranges...),
			RangeStart: s.RangeStart,
			RangeStep:  s.RangeStep,
			Fields:     make(map[string]*Field, len(s.Fields)),
		}
		for name, f := range s.Fields {
			data := sparse.ZerosDense(1, na, nr)
			for a := 0; a < na; a++ {
				for r := 0; r < nr; r++ {
					data.Set(f.Data.Get(ti, a, r), 0, a, r)
				}
			}
			ns.Fields[name] = &Field{Moment: f.Moment, Data: data}
		}
		out.sweeps[i] = ns
	}
	return out, nil
}

// NewVolume builds a volume from prepared sweeps, sorting them by fixed
// angle and validating shape and timestep consistency. It is the only
// constructor; decoding and assembly funnel through it so the invariants
// hold for every Volume in the process.
func NewVolume(site Site, sweeps []*Sweep) (*Volume, error) {
	if len(sweeps) == 0 {
		return nil, fmt.Errorf("volume needs at least one sweep")
	}
	sorted := append([]*Sweep(nil), sweeps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FixedAngle < sorted[j].FixedAngle })

	ref := sorted[0].Times
	for _, s := range sorted {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if len(s.Times) != len(ref) {
			return nil, fmt.Errorf("sweep %.1f° has %d timesteps, want %d", s.FixedAngle, len(s.Times), len(ref))
		}
		for i := range ref {
			if !s.Times[i].Equal(ref[i]) {
				return nil, fmt.Errorf("sweep %.1f° timestep %d is %s, want %s",
					s.FixedAngle, i, s.Times[i].UTC(), ref[i].UTC())
			}
		}
	}
	return &Volume{Site: site, sweeps: sorted}, nil
}
