package fgb

import (
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"
	topology "github.com/tingold/orb-topology"
)

// Source reads topology primitives from a FlatGeobuf file. Each feature
// yields one or more primitives; a feature that cannot be converted is
// reported as *topology.MalformedError and reading continues with the next.
type Source struct {
	features []*geojson.Feature
	opts     Options

	pos     int
	pending []topology.Primitive
	attrs   topology.MapAttributes
	rings   map[string]bool
}

// NewSource reads the features of r. Nil opts means DefaultOptions.
func NewSource(r *Reader, opts *Options) (*Source, error) {
	features, err := r.Features()
	if err != nil {
		return nil, err
	}
	return newSource(features, opts), nil
}

// OpenSource opens the file at path and reads its features.
func OpenSource(path string, opts *Options) (*Source, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return NewSource(r, opts)
}

func newSource(features []*geojson.Feature, opts *Options) *Source {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Source{features: features, opts: *opts, attrs: topology.MapAttributes{}, rings: map[string]bool{}}
	if s.opts.Layer == 0 {
		s.opts.Layer = 1
	}
	if s.opts.LineType == 0 {
		s.opts.LineType = topology.TypeLine
	}
	return s
}

// Len returns the number of features in the file.
func (s *Source) Len() int { return len(s.features) }

// Pos returns the number of features consumed so far.
func (s *Source) Pos() int { return s.pos }

// Next returns the next primitive, or io.EOF after the last feature.
func (s *Source) Next() (topology.Primitive, error) {
	for len(s.pending) == 0 {
		if s.pos >= len(s.features) {
			return topology.Primitive{}, io.EOF
		}
		record := s.pos
		f := s.features[s.pos]
		s.pos++

		if f.Geometry == nil {
			return topology.Primitive{}, &topology.MalformedError{Record: record, Reason: "no geometry"}
		}
		cats, err := s.cats(f)
		if err != nil {
			return topology.Primitive{}, &topology.MalformedError{Record: record, Reason: err.Error()}
		}
		prims, err := primitives(f.Geometry, cats, s.opts.LineType, !s.opts.NoCentroids)
		if err != nil {
			return topology.Primitive{}, &topology.MalformedError{Record: record, Reason: fmt.Sprintf("%v: %s", err, f.Geometry.GeoJSONType())}
		}
		s.pending = s.dedupe(prims)
	}

	p := s.pending[0]
	s.pending = s.pending[1:]
	return p, nil
}

// Reset rewinds to the first feature.
func (s *Source) Reset() error {
	s.pos = 0
	s.pending = nil
	s.rings = map[string]bool{}
	return nil
}

// dedupe drops boundary rings already read. A hole of one polygon is
// usually the outer ring of another, and two boundaries over the same
// ring would make the ring ambiguous.
func (s *Source) dedupe(prims []topology.Primitive) []topology.Primitive {
	return lo.Filter(prims, func(p topology.Primitive, _ int) bool {
		if p.Type != topology.TypeBoundary || !orb.Ring(p.Points).Closed() {
			return true
		}
		key := ringKey(orb.Ring(p.Points))
		if s.rings[key] {
			return false
		}
		s.rings[key] = true
		return true
	})
}

// ringKey identifies a closed ring regardless of its start vertex and
// direction.
func ringKey(r orb.Ring) string {
	pts := append(orb.Ring(nil), r[:len(r)-1]...)
	if pts.Orientation() == orb.CW {
		pts.Reverse()
	}
	start := 0
	for i, p := range pts {
		if p[0] < pts[start][0] || p[0] == pts[start][0] && p[1] < pts[start][1] {
			start = i
		}
	}
	var b strings.Builder
	for i := range pts {
		p := pts[(start+i)%len(pts)]
		fmt.Fprintf(&b, "%v %v,", p[0], p[1])
	}
	return b.String()
}

// Attributes returns the properties of every feature read so far that
// carried a category, keyed by layer and category.
func (s *Source) Attributes() topology.MapAttributes {
	return s.attrs
}

// cats reads the category column of f. A feature without the column has
// no categories.
func (s *Source) cats(f *geojson.Feature) (topology.Cats, error) {
	if s.opts.CatColumn == "" {
		return nil, nil
	}
	v, ok := f.Properties[s.opts.CatColumn]
	if !ok || v == nil {
		return nil, nil
	}
	cat, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("category %q is %T, not an integer", s.opts.CatColumn, v)
	}

	layer := s.opts.Layer
	if s.attrs[layer] == nil {
		s.attrs[layer] = map[int]any{}
	}
	s.attrs[layer][int(cat)] = map[string]interface{}(f.Properties)
	return topology.NewCats(topology.Cat{Layer: layer, Value: int(cat)}), nil
}
