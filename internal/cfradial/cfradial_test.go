package cfradial

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcus-data/radarvol/internal/volume"
)

func testVolume(t *testing.T) *volume.Volume {
	t.Helper()
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	site := volume.Site{Name: "NOD:deess,WMO:10410", Latitude: 51.4056, Longitude: 6.967, Altitude: 185.1}

	mkScan := func(angle float64, nr int, fields []string) *volume.Scan {
		sc := &volume.Scan{
			Site:       site,
			Nominal:    t0,
			Start:      t0,
			End:        t0.Add(30 * time.Second),
			FixedAngle: angle,
			Azimuths:   []float64{0.5, 90.5, 180.5, 270.5},
			Ranges:     make([]float64, nr),
			RangeStart: 0,
			RangeStep:  250,
			Fields:     make(map[string]*volume.ScanField),
		}
		for i := range sc.Ranges {
			sc.Ranges[i] = (float64(i) + 0.5) * 250
		}
		for fi, name := range fields {
			data := sparse.ZerosDense(4, nr)
			for a := 0; a < 4; a++ {
				for r := 0; r < nr; r++ {
					data.Set(float64(fi)*10+float64(a)+float64(r)/8, a, r)
				}
			}
			data.Set(math.NaN(), 1, 1) // one missing bin
			sc.Fields[name] = &volume.ScanField{Moment: volume.MomentByName(name), Data: data}
		}
		return sc
	}

	vol, err := volume.Assemble([]*volume.Scan{
		mkScan(0.5, 6, []string{"DBZH", "VRADH"}),
		mkScan(4.5, 4, []string{"DBZH"}),
	})
	require.NoError(t, err)
	return vol
}

func TestWriteRejectsMultipleTimesteps(t *testing.T) {
	vol := testVolume(t)
	// Fake a second timestep by duplicating the sweep times.
	sw := vol.Sweep(0)
	sw.Times = append(sw.Times, sw.Times[0].Add(5*time.Minute))
	err := Write(vol, filepath.Join(t.TempDir(), "out.nc"))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	vol := testVolume(t)
	path := filepath.Join(t.TempDir(), "volume.nc")
	require.NoError(t, Write(vol, path))

	rt, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, vol.Len(), rt.Len())
	assert.InDelta(t, vol.Site.Latitude, rt.Site.Latitude, 1e-9)
	assert.InDelta(t, vol.Site.Longitude, rt.Site.Longitude, 1e-9)
	assert.InDelta(t, vol.Site.Altitude, rt.Site.Altitude, 1e-9)
	assert.Equal(t, vol.Site.Name, rt.Site.Name)
	assert.Equal(t, vol.FixedAngles(), rt.FixedAngles())
	assert.True(t, rt.Times()[0].Equal(vol.Times()[0]))

	for i := 0; i < vol.Len(); i++ {
		want, got := vol.Sweep(i), rt.Sweep(i)
		assert.Equal(t, want.FieldNames(), got.FieldNames(), "sweep %d", i)
		assert.InDeltaSlice(t, want.Azimuths, got.Azimuths, 1e-4, "sweep %d azimuths", i)
		assert.InDeltaSlice(t, want.Ranges, got.Ranges, 1e-9, "sweep %d ranges", i)
		assert.InDelta(t, want.RangeStart, got.RangeStart, 1e-9)
		assert.InDelta(t, want.RangeStep, got.RangeStep, 1e-9)

		for _, name := range want.FieldNames() {
			wd, gd := want.Field(name).Data, got.Field(name).Data
			require.Equal(t, wd.Shape, gd.Shape)
			for i1d, wv := range wd.Elements {
				gv := gd.Elements[i1d]
				if math.IsNaN(wv) {
					assert.True(t, math.IsNaN(gv), "field %s element %d: want NaN, got %v", name, i1d, gv)
				} else {
					// float32 packing quantization
					assert.InDelta(t, wv, gv, 1e-3, "field %s element %d", name, i1d)
				}
			}
		}
	}
}

func TestReadRejectsWrongConventions(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.nc"))
	require.Error(t, err)
}

func TestFieldAbsentFromOneSweepStaysAbsent(t *testing.T) {
	vol := testVolume(t)
	path := filepath.Join(t.TempDir(), "volume.nc")
	require.NoError(t, Write(vol, path))

	rt, err := Read(path)
	require.NoError(t, err)

	// VRADH exists only on the 0.5° sweep.
	assert.NotNil(t, rt.Sweep(0).Field("VRADH"))
	assert.Nil(t, rt.Sweep(1).Field("VRADH"))
}
