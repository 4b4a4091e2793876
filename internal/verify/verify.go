// Package verify compares radar volumes for round-trip equality: an
// exported-then-reimported volume against the original, or two export
// formats against each other.
package verify

import (
	"fmt"
	"math"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/arcus-data/radarvol/internal/volume"
)

// Tolerance bounds the numeric slack allowed by a comparison.
type Tolerance struct {
	// Coord applies to site coordinates, fixed angles, azimuths, and
	// range geometry.
	Coord float64
	// Value applies to field data; it absorbs float32 rounding and 16-bit
	// packing quantization.
	Value float64
	// Time is the permitted timestamp granularity loss.
	Time time.Duration
}

// DefaultTolerance covers both supported export formats: CfRadial packs
// fields to float32, ODIM packs to 16 bits over the field's value range.
var DefaultTolerance = Tolerance{Coord: 1e-4, Value: 0.05, Time: time.Second}

// Report is the outcome of one comparison.
type Report struct {
	Mismatches []string
}

// OK reports whether the compared volumes matched within tolerance.
func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

func (r *Report) addf(format string, args ...interface{}) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

// String summarizes the report as a pass/fail line plus detail lines.
func (r *Report) String() string {
	if r.OK() {
		return "round-trip check passed"
	}
	s := fmt.Sprintf("round-trip check FAILED (%d mismatches)", len(r.Mismatches))
	for _, m := range r.Mismatches {
		s += "\n  " + m
	}
	return s
}

// Compare checks that got reproduces want within tol. It never returns an
// error for data mismatches; those land in the report.
func Compare(want, got *volume.Volume, tol Tolerance) *Report {
	r := &Report{}

	if diff := cmp.Diff(want.Site, got.Site, cmpopts.EquateApprox(0, tol.Coord)); diff != "" {
		r.addf("site metadata differs:\n%s", diff)
	}
	if want.Len() != got.Len() {
		r.addf("sweep count: want %d, got %d", want.Len(), got.Len())
		return r
	}
	if diff := cmp.Diff(want.FixedAngles(), got.FixedAngles(), cmpopts.EquateApprox(0, tol.Coord)); diff != "" {
		r.addf("fixed angles differ:\n%s", diff)
	}

	wt, gt := want.Times(), got.Times()
	if len(wt) != len(gt) {
		r.addf("timestep count: want %d, got %d", len(wt), len(gt))
		return r
	}
	for i := range wt {
		if d := gt[i].Sub(wt[i]); d < -tol.Time || d > tol.Time {
			r.addf("timestep %d: want %s, got %s", i, wt[i].UTC().Format(time.RFC3339), gt[i].UTC().Format(time.RFC3339))
		}
	}

	for i := 0; i < want.Len(); i++ {
		compareSweep(r, i, want.Sweep(i), got.Sweep(i), tol)
	}
	return r
}

func compareSweep(r *Report, i int, want, got *volume.Sweep, tol Tolerance) {
	if diff := cmp.Diff(want.FieldNames(), got.FieldNames()); diff != "" {
		r.addf("sweep %d: field sets differ:\n%s", i, diff)
		return
	}
	if diff := cmp.Diff(want.Azimuths, got.Azimuths, cmpopts.EquateApprox(0, tol.Coord)); diff != "" {
		r.addf("sweep %d: azimuths differ:\n%s", i, diff)
	}
	if diff := cmp.Diff(want.Ranges, got.Ranges, cmpopts.EquateApprox(0, tol.Coord)); diff != "" {
		r.addf("sweep %d: ranges differ:\n%s", i, diff)
	}
	if math.Abs(want.RangeStart-got.RangeStart) > tol.Coord || math.Abs(want.RangeStep-got.RangeStep) > tol.Coord {
		r.addf("sweep %d: gate geometry: want (%g,%g), got (%g,%g)",
			i, want.RangeStart, want.RangeStep, got.RangeStart, got.RangeStep)
	}

	for _, name := range want.FieldNames() {
		wd, gd := want.Field(name).Data, got.Field(name).Data
		if diff := cmp.Diff(wd.Shape, gd.Shape); diff != "" {
			r.addf("sweep %d field %s: shapes differ:\n%s", i, name, diff)
			continue
		}
		maxDiff, nanMismatch := 0.0, 0
		for idx, wv := range wd.Elements {
			gv := gd.Elements[idx]
			switch {
			case math.IsNaN(wv) != math.IsNaN(gv):
				nanMismatch++
			case math.IsNaN(wv):
				// both NaN
			default:
				if d := math.Abs(wv - gv); d > maxDiff {
					maxDiff = d
				}
			}
		}
		if nanMismatch > 0 {
			r.addf("sweep %d field %s: %d cells disagree on missing data", i, name, nanMismatch)
		}
		if maxDiff > tol.Value {
			r.addf("sweep %d field %s: max abs difference %g exceeds %g", i, name, maxDiff, tol.Value)
		}
	}
}
