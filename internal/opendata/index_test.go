package opendata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSweepName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want SweepRef
		ok   bool
	}{
		{
			name: "reflectivity sweep",
			in:   "ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5",
			want: SweepRef{
				Filename:  "ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5",
				Site:      "ess",
				WMO:       "10410",
				Moment:    "DBZH",
				Elevation: 0,
				Nominal:   time.Date(2024, 8, 10, 12, 0, 33, 0, time.UTC),
			},
			ok: true,
		},
		{
			name: "velocity sweep upper elevation",
			in:   "ras07-vol5minng01_sweeph5onem_vradh_09-2024081012050200-fld-10440-hd5",
			want: SweepRef{
				Filename:  "ras07-vol5minng01_sweeph5onem_vradh_09-2024081012050200-fld-10440-hd5",
				Site:      "fld",
				WMO:       "10440",
				Moment:    "VRADH",
				Elevation: 9,
				Nominal:   time.Date(2024, 8, 10, 12, 5, 2, 0, time.UTC),
			},
			ok: true,
		},
		{name: "parent link", in: "../", ok: false},
		{name: "checksum file", in: "ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5.md5", ok: false},
		{name: "unrelated product", in: "composite_rx-20240810.tar.gz", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSweepName(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseIndex(t *testing.T) {
	page := []byte(`<html><body><pre>
<a href="../">../</a>
<a href="ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5">f1</a>
<a href="ras07-vol5minng01_sweeph5onem_dbzh_01-2024081012003300-ess-10410-hd5">f2</a>
<a href="README.txt">readme</a>
</pre></body></html>`)

	refs, err := parseIndex("http://archive.test/ess/", page)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "http://archive.test/ess/ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5", refs[0].URL)
	assert.Equal(t, 1, refs[1].Elevation)

	_, err = parseIndex("http://archive.test/ess", page)
	assert.Error(t, err, "base without trailing slash")
}

func TestTimeWindowContains(t *testing.T) {
	t0 := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	w := TimeWindow{From: t0, To: t0.Add(10 * time.Minute)}

	assert.True(t, w.Contains(t0))
	assert.True(t, w.Contains(t0.Add(5*time.Minute)))
	assert.False(t, w.Contains(t0.Add(10*time.Minute)), "window is half-open")
	assert.False(t, w.Contains(t0.Add(-time.Second)))

	assert.True(t, TimeWindow{}.Contains(t0), "zero window matches everything")
}
