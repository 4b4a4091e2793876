package opendata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcus-data/radarvol/internal/httputil"
)

const testBase = "http://archive.test/sites"

func sweepName(moment string, elv int, ts string) string {
	return fmt.Sprintf("ras07-vol5minng01_sweeph5onem_%s_%02d-%s00-ess-10410-hd5", moment, elv, ts)
}

func indexPage(names ...string) []byte {
	page := "<html><pre>\n"
	for _, n := range names {
		page += fmt.Sprintf("<a href=%q>%s</a>\n", n, n)
	}
	return []byte(page + "</pre></html>")
}

func TestListSweepsFiltersAndSorts(t *testing.T) {
	n1 := sweepName("dbzh", 1, "20240810120033")
	n2 := sweepName("dbzh", 0, "20240810120033")
	n3 := sweepName("vradh", 0, "20240810120033")
	old := sweepName("dbzh", 0, "20240810110033")

	mock := httputil.NewMockClient().
		AddResponse(testBase+"/ess/", 200, indexPage(n1, n2, n3, old))

	c := &Client{BaseURL: testBase, HTTP: mock}
	window := TimeWindow{
		From: time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 8, 10, 12, 5, 0, 0, time.UTC),
	}
	refs, err := c.ListSweeps(context.Background(), "ess", window)
	require.NoError(t, err)
	require.Len(t, refs, 3)

	// elevation first, moments alphabetical within one elevation
	assert.Equal(t, []string{n2, n3, n1}, []string{refs[0].Filename, refs[1].Filename, refs[2].Filename})
}

func TestFetchDownloadsAllRefs(t *testing.T) {
	mock := httputil.NewMockClient()
	var refs []SweepRef
	for i := 0; i < 6; i++ {
		name := sweepName("dbzh", i, "20240810120033")
		ref, ok := ParseSweepName(name)
		require.True(t, ok)
		ref.URL = testBase + "/ess/" + name
		mock.AddResponse(ref.URL, 200, []byte(fmt.Sprintf("payload-%d", i)))
		refs = append(refs, ref)
	}

	c := &Client{BaseURL: testBase, HTTP: mock, Workers: 3}
	raws, err := c.Fetch(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, raws, len(refs))
	for i, raw := range raws {
		assert.Equal(t, refs[i].Filename, raw.Ref.Filename, "order preserved")
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(raw.Data))
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	name := sweepName("dbzh", 0, "20240810120033")
	ref, _ := ParseSweepName(name)
	ref.URL = testBase + "/ess/" + name

	mock := httputil.NewMockClient().
		AddResponse(ref.URL, 503, nil).
		AddResponse(ref.URL, 200, []byte("data"))

	c := &Client{BaseURL: testBase, HTTP: mock}
	raws, err := c.Fetch(context.Background(), []SweepRef{ref})
	require.NoError(t, err)
	assert.Equal(t, "data", string(raws[0].Data))
	assert.GreaterOrEqual(t, mock.RequestCount(), 2)
}

func TestFetchPermanentErrorStopsEarly(t *testing.T) {
	name := sweepName("dbzh", 0, "20240810120033")
	ref, _ := ParseSweepName(name)
	ref.URL = testBase + "/ess/" + name
	// URL not registered: mock answers 404, which is permanent.

	c := &Client{BaseURL: testBase, HTTP: httputil.NewMockClient()}
	_, err := c.Fetch(context.Background(), []SweepRef{ref})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// memCache is a map-backed Cache for tests.
type memCache struct {
	m    map[string][]byte
	puts int
}

func (c *memCache) Get(url string) ([]byte, bool, error) {
	data, ok := c.m[url]
	return data, ok, nil
}

func (c *memCache) Put(ref SweepRef, data []byte) error {
	c.m[ref.URL] = data
	c.puts++
	return nil
}

func TestFetchUsesCache(t *testing.T) {
	name := sweepName("dbzh", 0, "20240810120033")
	ref, _ := ParseSweepName(name)
	ref.URL = testBase + "/ess/" + name

	cache := &memCache{m: map[string][]byte{}}
	mock := httputil.NewMockClient().AddResponse(ref.URL, 200, []byte("fresh"))
	c := &Client{BaseURL: testBase, HTTP: mock, Cache: cache}

	raws, err := c.Fetch(context.Background(), []SweepRef{ref})
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(raws[0].Data))
	assert.Equal(t, 1, cache.puts)

	// Second fetch is served from cache without touching the network.
	before := mock.RequestCount()
	raws, err = c.Fetch(context.Background(), []SweepRef{ref})
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(raws[0].Data))
	assert.Equal(t, before, mock.RequestCount())
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	name := sweepName("dbzh", 0, "20240810120033")
	ref, _ := ParseSweepName(name)
	ref.URL = testBase + "/ess/" + name

	c := &Client{BaseURL: testBase, HTTP: httputil.NewMockClient().AddError(ref.URL, errors.New("unreachable"))}
	_, err := c.Fetch(ctx, []SweepRef{ref})
	require.Error(t, err)
}
