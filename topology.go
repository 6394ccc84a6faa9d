// Package topology builds and maintains a planar vector topology from an
// unordered stream of points, lines, boundaries and centroids.
//
// A Map owns nodes (where lines meet), lines with their left/right faces,
// areas (clockwise rings of boundaries) and isles (counter-clockwise rings
// bounding holes), together with a bounding-box index and a category index.
// Every element is addressed by an integer handle; deleted elements stay in
// place as tombstones so that handles held elsewhere remain valid until an
// explicit Rebuild.
//
// Maps are persisted with Save and Load in a versioned binary format.
package topology

import (
	"io"
	"log/slog"

	"github.com/pkg/errors"
)

// Common errors returned by this package.
var (
	ErrInvalidGeometry = errors.New("topology: invalid geometry")
	ErrNothingToDelete = errors.New("topology: nothing to delete")
	ErrNotFound        = errors.New("topology: element not found")
	ErrNoArea          = errors.New("topology: no area")
	ErrAmbiguous       = errors.New("topology: ambiguous angle")
	ErrUnclosed        = errors.New("topology: unclosed area")
	ErrFormat          = errors.New("topology: invalid file format")
	ErrVersion         = errors.New("topology: unsupported format version")
	ErrCorrupt         = errors.New("topology: corrupt structure")
	ErrMalformed       = errors.New("topology: malformed record")
	ErrDecoderState    = errors.New("topology: decoder used out of order")
)

// Options configures a Map.
type Options struct {
	// Tolerance is the distance within which a line end snaps to an existing
	// node. Zero means exact coordinate match. In geodesic mode it is in meters.
	Tolerance float64

	// Geodesic treats coordinates as longitude/latitude degrees and measures
	// distances on the sphere.
	Geodesic bool

	// WithZ keeps a z coordinate per vertex.
	WithZ bool

	// Logger receives build and load diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns default options: exact node matching, planar, 2D.
func DefaultOptions() *Options {
	return &Options{}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
