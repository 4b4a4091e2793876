// Package georef converts radar bin positions between polar sweep
// coordinates and geographic coordinates via a site-centered map
// projection.
package georef

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"

	"github.com/arcus-data/radarvol/internal/volume"
)

// effectiveEarthRadius is the 4/3 earth radius model used for beam
// propagation under standard atmospheric refraction, in meters.
const effectiveEarthRadius = 4.0 / 3.0 * 6371000.0

// Projection maps between the WGS84 geographic frame and a transverse
// Mercator plane centered on a radar site. Plane coordinates are meters
// east (x) and north (y) of the site.
type Projection struct {
	site    volume.Site
	toPlane proj.Transformer
	toGeo   proj.Transformer
}

// NewProjection builds a site-centered projection for the given radar site.
func NewProjection(site volume.Site) (*Projection, error) {
	geo, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, fmt.Errorf("parse geographic reference: %w", err)
	}
	plane, err := proj.Parse(fmt.Sprintf(
		"+proj=tmerc +lat_0=%.6f +lon_0=%.6f +x_0=0 +y_0=0 +ellps=WGS84 +units=m +no_defs",
		site.Latitude, site.Longitude))
	if err != nil {
		return nil, fmt.Errorf("parse site projection: %w", err)
	}

	toPlane, err := geo.NewTransform(plane)
	if err != nil {
		return nil, fmt.Errorf("build forward transform: %w", err)
	}
	toGeo, err := plane.NewTransform(geo)
	if err != nil {
		return nil, fmt.Errorf("build inverse transform: %w", err)
	}

	return &Projection{site: site, toPlane: toPlane, toGeo: toGeo}, nil
}

// Site returns the radar site this projection is centered on.
func (p *Projection) Site() volume.Site { return p.site }

// ToPlane projects a geographic coordinate onto the site plane.
func (p *Projection) ToPlane(lon, lat float64) (x, y float64, err error) {
	return p.toPlane(lon, lat)
}

// ToLonLat converts site-plane offsets back to geographic coordinates.
func (p *Projection) ToLonLat(x, y float64) (lon, lat float64, err error) {
	return p.toGeo(x, y)
}

// BinLonLat georeferences a bin center given its azimuth and elevation in
// degrees and slant range in meters.
func (p *Projection) BinLonLat(azimuthDeg, elevationDeg, slantRange float64) (lon, lat float64, err error) {
	x, y := BinXY(azimuthDeg, elevationDeg, slantRange)
	return p.ToLonLat(x, y)
}

// BinXY converts a bin's azimuth (degrees clockwise from north), elevation
// (degrees above horizontal) and slant range (meters) to east/north offsets
// from the site in meters. Ground range accounts for beam elevation under
// the 4/3 earth radius model.
func BinXY(azimuthDeg, elevationDeg, slantRange float64) (x, y float64) {
	ground := GroundRange(elevationDeg, slantRange)
	az := azimuthDeg * math.Pi / 180
	return ground * math.Sin(az), ground * math.Cos(az)
}

// GroundRange returns the great-circle distance in meters from the site to
// the point below a bin at the given elevation and slant range.
func GroundRange(elevationDeg, slantRange float64) float64 {
	el := elevationDeg * math.Pi / 180
	h := BinHeight(elevationDeg, slantRange)
	return effectiveEarthRadius * math.Asin(slantRange*math.Cos(el)/(effectiveEarthRadius+h))
}

// BinHeight returns the height in meters of a bin above the radar,
// given its elevation in degrees and slant range in meters.
func BinHeight(elevationDeg, slantRange float64) float64 {
	el := elevationDeg * math.Pi / 180
	r := effectiveEarthRadius
	return math.Sqrt(slantRange*slantRange+r*r+2*slantRange*r*math.Sin(el)) - r
}
