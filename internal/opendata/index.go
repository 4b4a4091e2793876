// Package opendata retrieves single-sweep radar volume files from a public
// open-data archive served as plain HTTP directory listings, one file per
// site, moment, elevation, and timestep.
package opendata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SweepRef identifies one remote single-sweep file.
type SweepRef struct {
	URL       string
	Filename  string
	Site      string    // three-letter site code, e.g. "ess"
	WMO       string    // WMO station number, e.g. "10410"
	Moment    string    // quantity name, upper case, e.g. "DBZH"
	Elevation int       // elevation index within the scan strategy, 0-based
	Nominal   time.Time // timestep the sweep belongs to
}

// RawSweep is a downloaded sweep file held in memory.
type RawSweep struct {
	Ref  SweepRef
	Data []byte
}

// TimeWindow is a half-open interval [From, To).
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window. A zero window
// matches everything.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.From.IsZero() && w.To.IsZero() {
		return true
	}
	return !t.Before(w.From) && t.Before(w.To)
}

// hrefRe pulls link targets out of an HTML directory index.
var hrefRe = regexp.MustCompile(`href="([^"?/][^"]*)"`)

// sweepNameRe matches archive sweep filenames, e.g.
// ras07-vol5minng01_sweeph5onem_dbzh_00-2024081012003300-ess-10410-hd5
var sweepNameRe = regexp.MustCompile(
	`^[a-z0-9]+-[a-z0-9]+_sweeph5[a-z]*_([a-z]+)_(\d{2})-(\d{14})\d*-([a-z]{3})-(\d{5})-hd5$`)

// ParseSweepName extracts sweep metadata from an archive filename. The
// second return value is false for names that are not sweep files
// (checksums, parent links, unrelated products).
func ParseSweepName(name string) (SweepRef, bool) {
	m := sweepNameRe.FindStringSubmatch(name)
	if m == nil {
		return SweepRef{}, false
	}
	elv, err := strconv.Atoi(m[2])
	if err != nil {
		return SweepRef{}, false
	}
	nominal, err := time.Parse("20060102150405", m[3])
	if err != nil {
		return SweepRef{}, false
	}
	return SweepRef{
		Filename:  name,
		Site:      m[4],
		WMO:       m[5],
		Moment:    strings.ToUpper(m[1]),
		Elevation: elv,
		Nominal:   nominal.UTC(),
	}, true
}

// parseIndex extracts sweep references from a directory listing page,
// resolving each href against base (which must end in a slash).
func parseIndex(base string, page []byte) ([]SweepRef, error) {
	if !strings.HasSuffix(base, "/") {
		return nil, fmt.Errorf("opendata: index base %q must end in /", base)
	}
	var refs []SweepRef
	for _, m := range hrefRe.FindAllSubmatch(page, -1) {
		name := string(m[1])
		ref, ok := ParseSweepName(name)
		if !ok {
			continue
		}
		ref.URL = base + name
		refs = append(refs, ref)
	}
	return refs, nil
}
