package opendata

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/arcus-data/radarvol/internal/httputil"
)

// defaultWorkers bounds concurrent downloads; archives rate-limit
// aggressive clients.
const defaultWorkers = 4

// maxRetries bounds the per-file retry budget on top of the exponential
// backoff schedule.
const maxRetries = 4

// Cache is a read-through store for downloaded sweep files, keyed by URL.
// scancache provides the SQLite implementation.
type Cache interface {
	Get(url string) (data []byte, ok bool, err error)
	Put(ref SweepRef, data []byte) error
}

// Client lists and downloads sweep files from one archive endpoint.
type Client struct {
	// BaseURL is the archive root, e.g. "https://opendata.example.org/weather/radar/sites".
	BaseURL string
	// HTTP is the transport; defaults to http.DefaultClient.
	HTTP httputil.HTTPClient
	// Cache, if set, is consulted before and populated after each download.
	Cache Cache
	// Workers bounds concurrent downloads; 0 means defaultWorkers.
	Workers int
}

func (c *Client) httpClient() httputil.HTTPClient {
	if c.HTTP != nil {
		return c.HTTP
	}
	return httputil.NewStandardClient(nil)
}

// get issues one GET with retries and returns the response body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%s: %s", url, resp.Status))
		default:
			return fmt.Errorf("%s: %s", url, resp.Status)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	notify := func(err error, d time.Duration) {
		log.Printf("opendata: %v: retrying in %v", err, d)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// ListSweeps fetches the site's directory index and returns the sweep files
// whose nominal timestep falls inside window, sorted by timestep, elevation
// and moment.
func (c *Client) ListSweeps(ctx context.Context, site string, window TimeWindow) ([]SweepRef, error) {
	base := strings.TrimSuffix(c.BaseURL, "/") + "/" + site + "/"
	page, err := c.get(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("opendata: listing %s: %w", base, err)
	}
	all, err := parseIndex(base, page)
	if err != nil {
		return nil, err
	}
	refs := all[:0]
	for _, ref := range all {
		if window.Contains(ref.Nominal) {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if !a.Nominal.Equal(b.Nominal) {
			return a.Nominal.Before(b.Nominal)
		}
		if a.Elevation != b.Elevation {
			return a.Elevation < b.Elevation
		}
		return a.Moment < b.Moment
	})
	log.Printf("opendata: site %s: %d of %d sweep files in window", site, len(refs), len(all))
	return refs, nil
}

// Fetch downloads the referenced sweep files, preserving input order. The
// cache, when configured, short-circuits downloads and absorbs new ones.
func (c *Client) Fetch(ctx context.Context, refs []SweepRef) ([]RawSweep, error) {
	workers := c.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	out := make([]RawSweep, len(refs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref SweepRef) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			data, err := c.fetchOne(ctx, ref)
			if err != nil {
				fail(fmt.Errorf("opendata: fetching %s: %w", ref.Filename, err))
				return
			}
			out[i] = RawSweep{Ref: ref, Data: data}
		}(i, ref)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, ref SweepRef) ([]byte, error) {
	if c.Cache != nil {
		data, ok, err := c.Cache.Get(ref.URL)
		if err != nil {
			log.Printf("opendata: cache read for %s: %v", ref.Filename, err)
		} else if ok {
			return data, nil
		}
	}
	data, err := c.get(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.Put(ref, data); err != nil {
			log.Printf("opendata: cache write for %s: %v", ref.Filename, err)
		}
	}
	return data, nil
}
