// Package odim decodes and encodes ODIM_H5 radar files: hierarchical HDF5
// volumes in the OPERA data information model. Reading goes through the
// pure-Go NetCDF4/HDF5 reader (batchatco/go-native-netcdf); writing goes
// through scigolib/hdf5. The binary layout of HDF5 itself is entirely the
// libraries' concern.
package odim

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"

	"github.com/arcus-data/radarvol/internal/volume"
)

// Conventions value written by (and accepted from) ODIM_H5 files.
const Conventions = "ODIM_H5/V2_2"

var datasetRe = regexp.MustCompile(`^dataset(\d+)$`)
var dataRe = regexp.MustCompile(`^data(\d+)$`)

type memBuffer struct{ *bytes.Reader }

func (memBuffer) Close() error { return nil }

// DecodeScan decodes a single-sweep ODIM_H5 buffer into a Scan. Buffers
// holding more than one dataset group are rejected; full volumes are read
// with ReadVolume.
func DecodeScan(buf []byte) (*volume.Scan, error) {
	g, err := netcdf.New(memBuffer{bytes.NewReader(buf)})
	if err != nil {
		return nil, fmt.Errorf("odim: opening buffer: %w", err)
	}
	defer g.Close()

	site, nominal, err := readRoot(g)
	if err != nil {
		return nil, err
	}
	names := datasetNames(g)
	if len(names) != 1 {
		return nil, fmt.Errorf("odim: buffer holds %d dataset groups, want a single sweep", len(names))
	}
	return readDataset(g, names[0], site, nominal)
}

// ReadVolume reads a full-volume ODIM_H5 file (one dataset group per sweep,
// all belonging to one timestep) into a Volume.
func ReadVolume(path string) (*volume.Volume, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("odim: opening %s: %w", path, err)
	}
	defer g.Close()

	site, nominal, err := readRoot(g)
	if err != nil {
		return nil, err
	}
	names := datasetNames(g)
	if len(names) == 0 {
		return nil, fmt.Errorf("odim: %s has no dataset groups", path)
	}
	scans := make([]*volume.Scan, 0, len(names))
	for _, name := range names {
		sc, err := readDataset(g, name, site, nominal)
		if err != nil {
			return nil, fmt.Errorf("odim: %s: %w", name, err)
		}
		scans = append(scans, sc)
	}
	return volume.Assemble(scans)
}

// readRoot extracts the site and nominal time from the root what/where
// groups.
func readRoot(g api.Group) (volume.Site, time.Time, error) {
	var site volume.Site

	what, err := g.GetGroup("what")
	if err != nil {
		return site, time.Time{}, fmt.Errorf("odim: no root what group: %w", err)
	}
	defer what.Close()
	object, err := attrString(what.Attributes(), "object")
	if err != nil {
		return site, time.Time{}, err
	}
	if object != "PVOL" && object != "SCAN" {
		return site, time.Time{}, fmt.Errorf("odim: object is %q, want PVOL or SCAN", object)
	}
	date, err := attrString(what.Attributes(), "date")
	if err != nil {
		return site, time.Time{}, err
	}
	tstr, err := attrString(what.Attributes(), "time")
	if err != nil {
		return site, time.Time{}, err
	}
	nominal, err := parseDateTime(date, tstr)
	if err != nil {
		return site, time.Time{}, err
	}
	source, err := attrString(what.Attributes(), "source")
	if err != nil {
		return site, time.Time{}, err
	}

	where, err := g.GetGroup("where")
	if err != nil {
		return site, time.Time{}, fmt.Errorf("odim: no root where group: %w", err)
	}
	defer where.Close()
	lat, err := attrFloat(where.Attributes(), "lat")
	if err != nil {
		return site, time.Time{}, err
	}
	lon, err := attrFloat(where.Attributes(), "lon")
	if err != nil {
		return site, time.Time{}, err
	}
	height, err := attrFloat(where.Attributes(), "height")
	if err != nil {
		return site, time.Time{}, err
	}

	site = volume.Site{Name: source, Latitude: lat, Longitude: lon, Altitude: height}
	return site, nominal, nil
}

// datasetNames returns the root's datasetN group names in numeric order.
func datasetNames(g api.Group) []string {
	type entry struct {
		name string
		n    int
	}
	var entries []entry
	for _, name := range g.ListSubgroups() {
		m := datasetRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		entries = append(entries, entry{name, n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

func readDataset(root api.Group, name string, site volume.Site, nominal time.Time) (*volume.Scan, error) {
	ds, err := root.GetGroup(name)
	if err != nil {
		return nil, fmt.Errorf("odim: opening %s: %w", name, err)
	}
	defer ds.Close()

	where, err := ds.GetGroup("where")
	if err != nil {
		return nil, fmt.Errorf("odim: %s has no where group: %w", name, err)
	}
	elangle, err := attrFloat(where.Attributes(), "elangle")
	if err != nil {
		where.Close()
		return nil, err
	}
	nbins, err := attrInt(where.Attributes(), "nbins")
	if err != nil {
		where.Close()
		return nil, err
	}
	nrays, err := attrInt(where.Attributes(), "nrays")
	if err != nil {
		where.Close()
		return nil, err
	}
	rscale, err := attrFloat(where.Attributes(), "rscale")
	if err != nil {
		where.Close()
		return nil, err
	}
	// rstart is kilometers in ODIM; the model keeps meters.
	rstartKM, err := attrFloat(where.Attributes(), "rstart")
	if err != nil {
		where.Close()
		return nil, err
	}
	where.Close()
	rstart := rstartKM * 1000

	start, end := nominal, nominal
	if what, err := ds.GetGroup("what"); err == nil {
		if sd, err1 := attrString(what.Attributes(), "startdate"); err1 == nil {
			if st, err2 := attrString(what.Attributes(), "starttime"); err2 == nil {
				if t, err3 := parseDateTime(sd, st); err3 == nil {
					start = t
				}
			}
		}
		if ed, err1 := attrString(what.Attributes(), "enddate"); err1 == nil {
			if et, err2 := attrString(what.Attributes(), "endtime"); err2 == nil {
				if t, err3 := parseDateTime(ed, et); err3 == nil {
					end = t
				}
			}
		}
		what.Close()
	}

	sc := &volume.Scan{
		Site:       site,
		Nominal:    nominal,
		Start:      start,
		End:        end,
		FixedAngle: elangle,
		Azimuths:   make([]float64, nrays),
		Ranges:     make([]float64, nbins),
		RangeStart: rstart,
		RangeStep:  rscale,
		Fields:     make(map[string]*volume.ScanField),
	}
	for i := 0; i < nrays; i++ {
		sc.Azimuths[i] = (float64(i) + 0.5) * 360 / float64(nrays)
	}
	for i := 0; i < nbins; i++ {
		sc.Ranges[i] = rstart + (float64(i)+0.5)*rscale
	}

	for _, dn := range ds.ListSubgroups() {
		if !dataRe.MatchString(dn) {
			continue
		}
		fld, quantity, err := readDataGroup(ds, dn, nrays, nbins)
		if err != nil {
			return nil, fmt.Errorf("odim: %s/%s: %w", name, dn, err)
		}
		sc.Fields[quantity] = fld
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func readDataGroup(ds api.Group, name string, nrays, nbins int) (*volume.ScanField, string, error) {
	dg, err := ds.GetGroup(name)
	if err != nil {
		return nil, "", err
	}
	defer dg.Close()

	what, err := dg.GetGroup("what")
	if err != nil {
		return nil, "", fmt.Errorf("no what group: %w", err)
	}
	defer what.Close()
	quantity, err := attrString(what.Attributes(), "quantity")
	if err != nil {
		return nil, "", err
	}
	gain, err := attrFloat(what.Attributes(), "gain")
	if err != nil {
		return nil, "", err
	}
	offset, err := attrFloat(what.Attributes(), "offset")
	if err != nil {
		return nil, "", err
	}
	nodata, err := attrFloat(what.Attributes(), "nodata")
	if err != nil {
		return nil, "", err
	}
	undetect, err := attrFloat(what.Attributes(), "undetect")
	if err != nil {
		return nil, "", err
	}

	v, err := dg.GetVariable("data")
	if err != nil {
		return nil, "", fmt.Errorf("no data array: %w", err)
	}
	raw, _, err := flatten(v.Values)
	if err != nil {
		return nil, "", err
	}
	if len(raw) != nrays*nbins {
		return nil, "", fmt.Errorf("data has %d values, want %d×%d", len(raw), nrays, nbins)
	}

	data := sparse.ZerosDense(nrays, nbins)
	for i, rv := range raw {
		var val float64
		if rv == nodata || rv == undetect {
			val = math.NaN()
		} else {
			val = gain*rv + offset
		}
		data.Elements[i] = val
	}
	return &volume.ScanField{Moment: volume.MomentByName(quantity), Data: data}, quantity, nil
}

// parseDateTime combines ODIM date (YYYYMMDD) and time (HHMMSS) strings.
func parseDateTime(date, tstr string) (time.Time, error) {
	t, err := time.Parse("20060102150405", date+tstr)
	if err != nil {
		return time.Time{}, fmt.Errorf("odim: bad date/time %q %q: %w", date, tstr, err)
	}
	return t.UTC(), nil
}
