package volume

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// angleKey buckets fixed angles to 0.01° so that float jitter between files
// of the same elevation does not split a sweep.
func angleKey(angle float64) int {
	return int(math.Round(angle * 100))
}

// Assemble groups decoded scans by timestep and elevation angle into a
// single Volume. All scans must come from the same site, and every
// elevation must be present at every timestep; fields of one elevation must
// agree across timesteps. Scans may carry different field sets at different
// elevations (dual-PRF velocity sweeps often lack reflectivity moments).
func Assemble(scans []*Scan) (*Volume, error) {
	if len(scans) == 0 {
		return nil, fmt.Errorf("assemble: no scans")
	}

	site := scans[0].Site
	for _, sc := range scans {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		if !site.SameLocation(sc.Site) {
			return nil, fmt.Errorf("assemble: mixed sites: %+v vs %+v", site, sc.Site)
		}
	}

	// Bucket by elevation, then order each bucket by nominal timestep.
	byAngle := make(map[int][]*Scan)
	for _, sc := range scans {
		k := angleKey(sc.FixedAngle)
		byAngle[k] = append(byAngle[k], sc)
	}

	// The timestep set is defined by the union of nominal times; every
	// elevation must cover all of it or the volume is ragged.
	timeSet := make(map[time.Time]struct{})
	for _, sc := range scans {
		timeSet[sc.Nominal.UTC()] = struct{}{}
	}
	times := make([]time.Time, 0, len(timeSet))
	for t := range timeSet {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	sweeps := make([]*Sweep, 0, len(byAngle))
	for _, group := range byAngle {
		sw, err := stack(group, times)
		if err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		sweeps = append(sweeps, sw)
	}
	return NewVolume(site, sweeps)
}

// stack merges the per-timestep scans of one elevation into a Sweep with a
// leading time dimension.
func stack(group []*Scan, times []time.Time) (*Sweep, error) {
	first := group[0]
	angle := first.FixedAngle

	byTime := make(map[time.Time]*Scan, len(group))
	for _, sc := range group {
		key := sc.Nominal.UTC()
		if prev, dup := byTime[key]; dup {
			return nil, fmt.Errorf("elevation %.1f°: duplicate scans for timestep %s (%.1f°/%.1f°)",
				angle, key.Format(time.RFC3339), prev.FixedAngle, sc.FixedAngle)
		}
		byTime[key] = sc
	}
	if len(byTime) != len(times) {
		return nil, fmt.Errorf("elevation %.1f°: %d of %d timesteps present", angle, len(byTime), len(times))
	}

	na, nr := len(first.Azimuths), len(first.Ranges)
	fieldNames := make([]string, 0, len(first.Fields))
	for name := range first.Fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	sw := &Sweep{
		FixedAngle: angle,
		Times:      append([]time.Time(nil), times...),
		Azimuths:   append([]float64(nil), first.Azimuths...),
		Ranges:     append([]float64(nil), first.Ranges...),
		RangeStart: first.RangeStart,
		RangeStep:  first.RangeStep,
		Fields:     make(map[string]*Field, len(fieldNames)),
	}
	for _, name := range fieldNames {
		sw.Fields[name] = &Field{
			Moment: first.Fields[name].Moment,
			Data:   sparse.ZerosDense(len(times), na, nr),
		}
	}

	for ti, t := range times {
		sc := byTime[t]
		if len(sc.Azimuths) != na || len(sc.Ranges) != nr {
			return nil, fmt.Errorf("elevation %.1f° at %s: geometry %dx%d, want %dx%d",
				angle, t.Format(time.RFC3339), len(sc.Azimuths), len(sc.Ranges), na, nr)
		}
		if len(sc.Fields) != len(fieldNames) {
			return nil, fmt.Errorf("elevation %.1f° at %s: field set changed across timesteps", angle, t.Format(time.RFC3339))
		}
		for _, name := range fieldNames {
			src, ok := sc.Fields[name]
			if !ok {
				return nil, fmt.Errorf("elevation %.1f° at %s: missing field %s", angle, t.Format(time.RFC3339), name)
			}
			dst := sw.Fields[name].Data
			for a := 0; a < na; a++ {
				for r := 0; r < nr; r++ {
					dst.Set(src.Data.Get(a, r), ti, a, r)
				}
			}
		}
	}
	return sw, nil
}
