package topology

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Primitive is one input feature: a typed point sequence with categories.
type Primitive struct {
	Type   LineType
	Points orb.LineString
	Z      []float64 // nil, or one value per point
	Cats   Cats
}

// Source yields primitives until io.EOF. A record that cannot be decoded is
// reported as *MalformedError and the source stays usable.
type Source interface {
	Next() (Primitive, error)
	Reset() error
}

// MalformedError marks a bad input record.
type MalformedError struct {
	Record int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("topology: malformed record %d: %s", e.Record, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// SliceSource is a Source over an in-memory slice.
type SliceSource struct {
	prims []Primitive
	pos   int
}

// NewSliceSource returns a Source reading prims in order.
func NewSliceSource(prims []Primitive) *SliceSource {
	return &SliceSource{prims: prims}
}

// Next implements Source.
func (s *SliceSource) Next() (Primitive, error) {
	if s.pos >= len(s.prims) {
		return Primitive{}, io.EOF
	}
	p := s.prims[s.pos]
	s.pos++
	return p, nil
}

// Reset implements Source.
func (s *SliceSource) Reset() error {
	s.pos = 0
	return nil
}

// IngestStats counts what Ingest did with each record.
type IngestStats struct {
	Added     int
	Malformed int
	Rejected  int // records AddLine refused as invalid geometry
}

// Ingest adds every primitive of src to m. Malformed and invalid records are
// logged, counted and skipped; any other source error stops the ingest.
// Progress, when non-nil, is called after each record.
func Ingest(ctx context.Context, m *Map, src Source, progress func(IngestStats)) (IngestStats, error) {
	var stats IngestStats
	for rec := 0; ; rec++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p, err := src.Next()
		if err == io.EOF {
			return stats, nil
		}
		var bad *MalformedError
		switch {
		case errors.As(err, &bad):
			stats.Malformed++
			m.log.Warn("skipping malformed record", "record", bad.Record, "reason", bad.Reason)
		case err != nil:
			return stats, errors.Wrapf(err, "record %d", rec)
		default:
			if _, err := m.AddLine(p.Type, p.Points, p.Z, p.Cats); err != nil {
				if !errors.Is(err, ErrInvalidGeometry) {
					return stats, err
				}
				stats.Rejected++
				m.log.Warn("skipping invalid geometry", "record", rec, "err", err)
			} else {
				stats.Added++
			}
		}
		if progress != nil {
			progress(stats)
		}
	}
}
