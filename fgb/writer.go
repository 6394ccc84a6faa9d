package fgb

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	topology "github.com/tingold/orb-topology"
)

// WriteFeatures writes a FeatureCollection to FlatGeobuf format.
func WriteFeatures(w io.Writer, fc *geojson.FeatureCollection, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	if fc == nil || len(fc.Features) == 0 {
		return ErrNothingToWrite
	}

	geomType, first := flattypes.GeometryTypeUnknown, true
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		t := orbToFGBGeometryType(f.Geometry)
		if !first && t != geomType {
			geomType = flattypes.GeometryTypeUnknown
			break
		}
		geomType, first = t, false
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(geomType)
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	s := inferSchema(fc.Features)
	if len(s.names) > 0 {
		header.SetColumns(s.columns(builder))
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		} else if opts.CRS.WKT != "" {
			crs.SetDescription(opts.CRS.WKT)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{features: fc.Features, schema: s}
	_, err := writer.NewWriter(header, opts.IncludeIndex, gen, nil).Write(w)
	return err
}

// featureGenerator feeds features to the FlatGeobuf writer, skipping those
// without a writable geometry.
type featureGenerator struct {
	features []*geojson.Feature
	schema   *schema
	index    int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.index < len(g.features) {
		f := g.features[g.index]
		g.index++
		if f == nil || f.Geometry == nil {
			continue
		}

		builder := flatbuffers.NewBuilder(1024)
		geom := geometryToFGB(f.Geometry, builder)
		if geom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if len(f.Properties) > 0 && len(g.schema.names) > 0 {
			if props := encodeProperties(f.Properties, g.schema); len(props) > 0 {
				feature.SetProperties(props)
			}
		}
		return feature
	}
	return nil
}

// AreaFeatures returns one polygon feature per live area, holes included.
// Properties are the area handle, its size and, when the area has a
// centroid with a category in layer, that category under catColumn.
func AreaFeatures(m *topology.Map, layer int, catColumn string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, id := range m.AreaIDs() {
		poly, err := m.AreaPolygon(id)
		if err != nil {
			return nil, err
		}
		size, err := m.AreaSize(id)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(poly)
		f.ID = int(id)
		f.Properties["area"] = int(id)
		f.Properties["size"] = size

		a, _ := m.Area(id)
		f.Properties["isles"] = len(a.Isles)
		if a.Centroid != 0 && catColumn != "" {
			_, _, cats, err := m.Geometry(a.Centroid)
			if err != nil {
				return nil, err
			}
			if vals := cats.Values(layer); len(vals) > 0 {
				f.Properties[catColumn] = vals[0]
			}
		}
		fc.Append(f)
	}
	return fc, nil
}

// LineFeatures returns one feature per live line matching mask. Point
// types become points; the rest line strings.
func LineFeatures(m *topology.Map, mask topology.LineType, layer int, catColumn string) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, id := range m.LineIDs(mask) {
		l, _ := m.Line(id)
		pts, _, cats, err := m.Geometry(id)
		if err != nil {
			return nil, err
		}

		var geom orb.Geometry = pts
		if l.Type&topology.TypePoints != 0 {
			geom = pts[0]
		}
		f := geojson.NewFeature(geom)
		f.ID = int(id)
		f.Properties["line"] = int(id)
		f.Properties["type"] = l.Type.String()
		if l.Type == topology.TypeBoundary {
			f.Properties["left"] = int(l.Left)
			f.Properties["right"] = int(l.Right)
		}
		if vals := cats.Values(layer); len(vals) > 0 && catColumn != "" {
			f.Properties[catColumn] = vals[0]
		}
		fc.Append(f)
	}
	return fc, nil
}

// WriteAreas writes every area of m as a polygon feature.
func WriteAreas(w io.Writer, m *topology.Map, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	fc, err := AreaFeatures(m, layerOf(opts), opts.CatColumn)
	if err != nil {
		return err
	}
	return WriteFeatures(w, fc, opts)
}

// WriteLines writes every line of m matching mask.
func WriteLines(w io.Writer, m *topology.Map, mask topology.LineType, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	fc, err := LineFeatures(m, mask, layerOf(opts), opts.CatColumn)
	if err != nil {
		return err
	}
	return WriteFeatures(w, fc, opts)
}

func layerOf(opts *Options) int {
	if opts.Layer == 0 {
		return 1
	}
	return opts.Layer
}
