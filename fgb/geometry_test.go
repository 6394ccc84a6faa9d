package fgb

import (
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	topology "github.com/tingold/orb-topology"
)

func TestOrbToFGBGeometryType(t *testing.T) {
	tests := []struct {
		name     string
		geom     orb.Geometry
		expected flattypes.GeometryType
	}{
		{"Point", orb.Point{1, 2}, flattypes.GeometryTypePoint},
		{"MultiPoint", orb.MultiPoint{{1, 2}, {3, 4}}, flattypes.GeometryTypeMultiPoint},
		{"LineString", orb.LineString{{0, 0}, {1, 1}}, flattypes.GeometryTypeLineString},
		{"MultiLineString", orb.MultiLineString{{{0, 0}, {1, 1}}}, flattypes.GeometryTypeMultiLineString},
		{"Ring", orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, flattypes.GeometryTypePolygon},
		{"Polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, flattypes.GeometryTypePolygon},
		{"MultiPolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, flattypes.GeometryTypeMultiPolygon},
		{"Bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, flattypes.GeometryTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := orbToFGBGeometryType(tt.geom)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGeometryToFGB(t *testing.T) {
	builder := flatbuffers.NewBuilder(256)
	for _, g := range []orb.Geometry{
		orb.Point{1.5, 2.5},
		orb.LineString{{0, 0}, {1, 1}, {2, 2}},
		orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
		},
		orb.MultiPolygon{
			{{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}},
			{{{10, 10}, {15, 10}, {15, 15}, {10, 15}, {10, 10}}},
		},
	} {
		if geometryToFGB(g, builder) == nil {
			t.Errorf("expected non-nil geometry for %s", g.GeoJSONType())
		}
	}
	if geometryToFGB(orb.Collection{orb.Point{1, 2}}, builder) != nil {
		t.Error("expected nil geometry for a collection")
	}
}

func TestXYEnds(t *testing.T) {
	xy, ends := polygonToXYEnds(orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 0}},
		{{1, 1}, {2, 1}, {2, 2}, {1, 1}},
	})
	if len(xy) != 16 {
		t.Fatalf("expected 16 coordinates, got %d", len(xy))
	}
	if len(ends) != 2 || ends[0] != 4 || ends[1] != 8 {
		t.Errorf("unexpected ends %v", ends)
	}
}

func TestPrimitives(t *testing.T) {
	cats := topology.NewCats(topology.Cat{Layer: 1, Value: 7})
	square := orb.Ring{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}}
	hole := orb.Ring{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}}

	tests := []struct {
		name      string
		geom      orb.Geometry
		lineType  topology.LineType
		centroids bool
		want      []topology.LineType
	}{
		{"point", orb.Point{1, 1}, topology.TypeLine, true, []topology.LineType{topology.TypePoint}},
		{"multipoint", orb.MultiPoint{{1, 1}, {2, 2}}, topology.TypeLine, true, []topology.LineType{topology.TypePoint, topology.TypePoint}},
		{"line", orb.LineString{{0, 0}, {1, 1}}, topology.TypeLine, true, []topology.LineType{topology.TypeLine}},
		{"line as boundary", orb.LineString{{0, 0}, {1, 1}}, topology.TypeBoundary, true, []topology.LineType{topology.TypeBoundary}},
		{"polygon", orb.Polygon{square, hole}, topology.TypeLine, true, []topology.LineType{topology.TypeBoundary, topology.TypeBoundary, topology.TypeCentroid}},
		{"polygon without centroid", orb.Polygon{square}, topology.TypeLine, false, []topology.LineType{topology.TypeBoundary}},
		{"collection", orb.Collection{orb.Point{1, 1}, orb.MultiLineString{{{0, 0}, {1, 0}}}}, topology.TypeLine, true, []topology.LineType{topology.TypePoint, topology.TypeLine}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prims, err := primitives(tt.geom, cats, tt.lineType, tt.centroids)
			if err != nil {
				t.Fatalf("primitives failed: %v", err)
			}
			if len(prims) != len(tt.want) {
				t.Fatalf("expected %d primitives, got %d", len(tt.want), len(prims))
			}
			for i, p := range prims {
				if p.Type != tt.want[i] {
					t.Errorf("primitive %d: expected %v, got %v", i, tt.want[i], p.Type)
				}
				hasCats := p.Cats.Has(1, 7)
				if hasCats == (p.Type == topology.TypeBoundary && tt.geom.GeoJSONType() == "Polygon") {
					t.Errorf("primitive %d (%v): unexpected categories %v", i, p.Type, p.Cats)
				}
			}
		})
	}

	if _, err := primitives(orb.Bound{}, nil, topology.TypeLine, true); err != ErrUnsupportedType {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestInteriorPoint(t *testing.T) {
	tests := []struct {
		name string
		poly orb.Polygon
	}{
		{"square", orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}},
		{"u shape", orb.Polygon{{{0, 0}, {0, 3}, {1, 3}, {1, 1}, {2, 1}, {2, 3}, {3, 3}, {3, 0}, {0, 0}}}},
		{"hole in the middle", orb.Polygon{
			{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
			{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := interiorPoint(tt.poly)
			if !ok {
				t.Fatal("no interior point")
			}
			if !planar.PolygonContains(tt.poly, p) {
				t.Errorf("%v is not inside", p)
			}
			for _, r := range tt.poly {
				for _, v := range r {
					if v == p {
						t.Errorf("%v is a vertex", p)
					}
				}
			}
		})
	}

	if _, ok := interiorPoint(orb.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}); ok {
		t.Error("expected no interior point for a flat ring")
	}
}
