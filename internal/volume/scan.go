package volume

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Scan is one decoded single-sweep file: one elevation angle at one
// timestep. The assembler stacks scans into Volumes.
type Scan struct {
	Site Site

	// Nominal is the timestep the scan belongs to (the volume cycle start);
	// Start/End bracket the actual antenna rotation.
	Nominal time.Time
	Start   time.Time
	End     time.Time

	FixedAngle float64
	Azimuths   []float64
	Ranges     []float64
	RangeStart float64
	RangeStep  float64

	Fields map[string]*ScanField
}

// ScanField is one moment of a single scan, shape [len(Azimuths), len(Ranges)].
type ScanField struct {
	Moment Moment
	Data   *sparse.DenseArray
}

// Validate checks internal consistency of a decoded scan.
func (sc *Scan) Validate() error {
	na, nr := len(sc.Azimuths), len(sc.Ranges)
	if na == 0 || nr == 0 {
		return fmt.Errorf("scan %.1f° at %s: empty coordinates (azimuth=%d range=%d)",
			sc.FixedAngle, sc.Nominal.UTC().Format(time.RFC3339), na, nr)
	}
	if len(sc.Fields) == 0 {
		return fmt.Errorf("scan %.1f° at %s: no data fields", sc.FixedAngle, sc.Nominal.UTC().Format(time.RFC3339))
	}
	for name, f := range sc.Fields {
		shape := f.Data.Shape
		if len(shape) != 2 || shape[0] != na || shape[1] != nr {
			return fmt.Errorf("scan field %s: shape %v does not match coordinates [%d %d]", name, shape, na, nr)
		}
	}
	return nil
}
