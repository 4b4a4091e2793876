package odim

import (
	"fmt"
	"math"
	"time"

	"github.com/scigolib/hdf5"

	"github.com/arcus-data/radarvol/internal/volume"
)

// 16-bit packing reserves 0 for undetect and 65535 for nodata, leaving
// 1..65534 for data, per common ODIM practice.
const (
	rawUndetect = 0
	rawNodata   = 65535
	rawMin      = 1
	rawMax      = 65534
)

// packing is the linear scaling chosen for one field.
type packing struct {
	gain   float64
	offset float64
}

// choosePacking fits the scaling to the field's value range so quantization
// error stays below gain/2 across the whole field.
func choosePacking(elements []float64) packing {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range elements {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi { // all NaN
		return packing{gain: 1, offset: 0}
	}
	if hi == lo {
		return packing{gain: 1, offset: lo - rawMin}
	}
	gain := (hi - lo) / float64(rawMax-rawMin)
	return packing{gain: gain, offset: lo - gain*rawMin}
}

func (p packing) pack(v float64) uint16 {
	if math.IsNaN(v) {
		return rawNodata
	}
	raw := math.Round((v - p.offset) / p.gain)
	if raw < rawMin {
		raw = rawMin
	}
	if raw > rawMax {
		raw = rawMax
	}
	return uint16(raw)
}

// WriteVolume exports a single-timestep volume as a full ODIM_H5 polar
// volume file: one datasetN group per sweep, one dataM group per moment.
func WriteVolume(vol *volume.Volume, path string) error {
	times := vol.Times()
	if len(times) != 1 {
		return fmt.Errorf("odim: volume has %d timesteps, export needs exactly 1", len(times))
	}
	nominal := times[0].UTC()

	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("odim: creating %s: %w", path, err)
	}
	defer fw.Close()

	rootAttrs := []struct {
		group string
		name  string
		value interface{}
	}{
		{"/what", "object", "PVOL"},
		{"/what", "version", "H5rad 2.2"},
		{"/what", "date", nominal.Format("20060102")},
		{"/what", "time", nominal.Format("150405")},
		{"/what", "source", vol.Site.Name},
		{"/where", "lat", vol.Site.Latitude},
		{"/where", "lon", vol.Site.Longitude},
		{"/where", "height", vol.Site.Altitude},
		{"/how", "software", "radarvol"},
	}
	groups := make(map[string]*hdf5.GroupWriter)
	for _, g := range []string{"/what", "/where", "/how"} {
		gw, err := fw.CreateGroup(g)
		if err != nil {
			return fmt.Errorf("odim: creating group %s: %w", g, err)
		}
		groups[g] = gw
	}
	for _, a := range rootAttrs {
		if err := groups[a.group].WriteAttribute(a.name, a.value); err != nil {
			return fmt.Errorf("odim: writing %s/%s: %w", a.group, a.name, err)
		}
	}

	for i, sw := range vol.Sweeps() {
		if err := writeSweep(fw, i+1, sw, nominal); err != nil {
			return err
		}
	}
	return nil
}

func writeSweep(fw *hdf5.FileWriter, n int, sw *volume.Sweep, nominal time.Time) error {
	_, na, nr := sw.Dims()
	base := fmt.Sprintf("/dataset%d", n)
	start := sw.Times[0].UTC()

	groups := make(map[string]*hdf5.GroupWriter)
	for _, g := range []string{base, base + "/what", base + "/where"} {
		gw, err := fw.CreateGroup(g)
		if err != nil {
			return fmt.Errorf("odim: creating group %s: %w", g, err)
		}
		groups[g] = gw
	}
	attrs := []struct {
		group string
		name  string
		value interface{}
	}{
		{base + "/what", "product", "SCAN"},
		{base + "/what", "startdate", start.Format("20060102")},
		{base + "/what", "starttime", start.Format("150405")},
		{base + "/what", "enddate", start.Format("20060102")},
		{base + "/what", "endtime", start.Format("150405")},
		{base + "/where", "elangle", sw.FixedAngle},
		{base + "/where", "nbins", int64(nr)},
		{base + "/where", "nrays", int64(na)},
		{base + "/where", "rscale", sw.RangeStep},
		{base + "/where", "rstart", sw.RangeStart / 1000}, // kilometers in ODIM
	}
	for _, a := range attrs {
		if err := groups[a.group].WriteAttribute(a.name, a.value); err != nil {
			return fmt.Errorf("odim: writing %s/%s: %w", a.group, a.name, err)
		}
	}

	for di, name := range sw.FieldNames() {
		fld := sw.Field(name)
		dbase := fmt.Sprintf("%s/data%d", base, di+1)
		if _, err := fw.CreateGroup(dbase); err != nil {
			return fmt.Errorf("odim: creating group %s: %w", dbase, err)
		}
		dwhat, err := fw.CreateGroup(dbase + "/what")
		if err != nil {
			return fmt.Errorf("odim: creating group %s/what: %w", dbase, err)
		}

		p := choosePacking(fld.Data.Elements)
		dataAttrs := []struct {
			name  string
			value interface{}
		}{
			{"quantity", name},
			{"gain", p.gain},
			{"offset", p.offset},
			{"nodata", float64(rawNodata)},
			{"undetect", float64(rawUndetect)},
		}
		for _, a := range dataAttrs {
			if err := fw.WriteAttribute(dbase+"/what", a.name, a.value); err != nil {
				return fmt.Errorf("odim: writing %s/what/%s: %w", dbase, a.name, err)
			}
		}

		packed := make([]uint16, na*nr)
		for a := 0; a < na; a++ {
			for r := 0; r < nr; r++ {
				packed[a*nr+r] = p.pack(fld.Data.Get(0, a, r))
			}
		}
		ds, err := fw.CreateDataset(dbase+"/data", hdf5.Uint16, []uint64{uint64(na), uint64(nr)})
		if err != nil {
			return fmt.Errorf("odim: creating dataset %s/data: %w", dbase, err)
		}
		if err := ds.Write(packed); err != nil {
			return fmt.Errorf("odim: writing dataset %s/data: %w", dbase, err)
		}
	}
	return nil
}
