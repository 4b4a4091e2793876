package volume

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = Site{
	Name:      "NOD:deess,WMO:10410",
	Latitude:  51.4056,
	Longitude: 6.9670,
	Altitude:  185.1,
}

// makeScan builds a small synthetic scan whose cell values encode their
// position so stacking errors are visible in assertions.
func makeScan(t time.Time, angle float64, fields []string) *Scan {
	const na, nr = 4, 5
	sc := &Scan{
		Site:       testSite,
		Nominal:    t,
		Start:      t,
		End:        t.Add(30 * time.Second),
		FixedAngle: angle,
		Azimuths:   []float64{45, 135, 225, 315},
		Ranges:     []float64{125, 375, 625, 875, 1125},
		RangeStart: 0,
		RangeStep:  250,
		Fields:     make(map[string]*ScanField),
	}
	for fi, name := range fields {
		data := sparse.ZerosDense(na, nr)
		for a := 0; a < na; a++ {
			for r := 0; r < nr; r++ {
				data.Set(angle*1000+float64(fi*100+a*10+r), a, r)
			}
		}
		sc.Fields[name] = &ScanField{Moment: MomentByName(name), Data: data}
	}
	return sc
}

func TestAssembleOrdersSweepsByElevation(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	scans := []*Scan{
		makeScan(t0, 12.0, []string{"DBZH"}),
		makeScan(t0, 0.5, []string{"DBZH"}),
		makeScan(t0, 4.5, []string{"DBZH"}),
	}
	vol, err := Assemble(scans)
	require.NoError(t, err)

	assert.Equal(t, 3, vol.Len())
	assert.Equal(t, []float64{0.5, 4.5, 12.0}, vol.FixedAngles())
	assert.Equal(t, []time.Time{t0}, vol.Times())
}

func TestAssembleStacksTimesteps(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	scans := []*Scan{
		makeScan(t1, 0.5, []string{"DBZH", "VRADH"}),
		makeScan(t0, 0.5, []string{"DBZH", "VRADH"}),
	}
	vol, err := Assemble(scans)
	require.NoError(t, err)
	require.Equal(t, 1, vol.Len())

	sw := vol.Sweep(0)
	nt, na, nr := sw.Dims()
	assert.Equal(t, 2, nt)
	assert.Equal(t, 4, na)
	assert.Equal(t, 5, nr)
	assert.Equal(t, []string{"DBZH", "VRADH"}, sw.FieldNames())

	// Timesteps sort chronologically regardless of input order, and values
	// land in the right time slab.
	assert.True(t, sw.Times[0].Equal(t0))
	assert.True(t, sw.Times[1].Equal(t1))
	assert.Equal(t, 500.0+12, sw.Field("DBZH").Data.Get(0, 1, 2))
	assert.Equal(t, 500.0+12, sw.Field("DBZH").Data.Get(1, 1, 2))
	assert.Equal(t, 500.0+100+23, sw.Field("VRADH").Data.Get(0, 2, 3))
}

func TestAssembleRejectsMixedSites(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	a := makeScan(t0, 0.5, []string{"DBZH"})
	b := makeScan(t0, 1.5, []string{"DBZH"})
	b.Site.Latitude += 0.5

	_, err := Assemble([]*Scan{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed sites")
}

func TestAssembleRejectsRaggedTimesteps(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	scans := []*Scan{
		makeScan(t0, 0.5, []string{"DBZH"}),
		makeScan(t1, 0.5, []string{"DBZH"}),
		makeScan(t0, 1.5, []string{"DBZH"}),
		// elevation 1.5° missing at t1
	}
	_, err := Assemble(scans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timesteps present")
}

func TestAssembleRejectsDuplicateScans(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	scans := []*Scan{
		makeScan(t0, 0.5, []string{"DBZH"}),
		makeScan(t0, 0.5, []string{"DBZH"}),
	}
	_, err := Assemble(scans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate scans")
}

func TestAssembleAllowsPerElevationFieldSets(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	scans := []*Scan{
		makeScan(t0, 0.5, []string{"DBZH", "RHOHV"}),
		makeScan(t0, 25.0, []string{"VRADH"}),
	}
	vol, err := Assemble(scans)
	require.NoError(t, err)
	assert.Equal(t, []string{"DBZH", "RHOHV"}, vol.Sweep(0).FieldNames())
	assert.Equal(t, []string{"VRADH"}, vol.Sweep(1).FieldNames())
}

func TestAssembleRejectsFieldSetChangeAcrossTime(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	scans := []*Scan{
		makeScan(t0, 0.5, []string{"DBZH", "VRADH"}),
		makeScan(t1, 0.5, []string{"DBZH"}),
	}
	_, err := Assemble(scans)
	require.Error(t, err)
}

func TestVolumeAt(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	vol, err := Assemble([]*Scan{
		makeScan(t0, 0.5, []string{"DBZH"}),
		makeScan(t1, 0.5, []string{"DBZH"}),
		makeScan(t0, 4.5, []string{"DBZH"}),
		makeScan(t1, 4.5, []string{"DBZH"}),
	})
	require.NoError(t, err)

	one, err := vol.At(t1)
	require.NoError(t, err)
	assert.Equal(t, 2, one.Len())
	assert.Equal(t, []time.Time{t1}, one.Times())

	nt, na, nr := one.Sweep(0).Dims()
	assert.Equal(t, [3]int{1, 4, 5}, [3]int{nt, na, nr})
	assert.Equal(t, vol.Sweep(0).Field("DBZH").Data.Get(1, 3, 4),
		one.Sweep(0).Field("DBZH").Data.Get(0, 3, 4))

	_, err = vol.At(t0.Add(time.Hour))
	assert.Error(t, err)
}

func TestSiteSameLocation(t *testing.T) {
	a := testSite
	b := testSite
	b.Name = "another source string"
	assert.True(t, a.SameLocation(b))

	b.Longitude += 0.01
	assert.False(t, a.SameLocation(b))
}

func TestMomentRegistry(t *testing.T) {
	m := MomentByName("DBZH")
	assert.Equal(t, "dBZ", m.Units)
	assert.Equal(t, "equivalent_reflectivity_factor", m.StandardName)

	unknown := MomentByName("SNRH")
	assert.Equal(t, "SNRH", unknown.Name)
	assert.Empty(t, unknown.Units)
	assert.False(t, KnownMoment("SNRH"))
}

func TestSweepValidateCatchesShapeMismatch(t *testing.T) {
	sc := makeScan(time.Now().UTC(), 0.5, []string{"DBZH"})
	sc.Fields["DBZH"].Data = sparse.ZerosDense(3, 5) // wrong azimuth extent
	require.Error(t, sc.Validate())
}

func TestNaNSurvivesStacking(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	sc := makeScan(t0, 0.5, []string{"DBZH"})
	sc.Fields["DBZH"].Data.Set(math.NaN(), 2, 2)

	vol, err := Assemble([]*Scan{sc})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(vol.Sweep(0).Field("DBZH").Data.Get(0, 2, 2)))
}
