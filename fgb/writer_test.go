package fgb

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	topology "github.com/tingold/orb-topology"
)

// square returns the closed clockwise ring of the square (x, y)-(x+s, y+s).
func square(x, y, s float64) orb.LineString {
	return orb.LineString{{x, y}, {x, y + s}, {x + s, y + s}, {x + s, y}, {x, y}}
}

// nestedMap builds a 10x10 area holding a 2x2 area, each with a centroid
// in layer 1.
func nestedMap(t testing.TB) *topology.Map {
	t.Helper()
	m := topology.New(nil)
	prims := []topology.Primitive{
		{Type: topology.TypeBoundary, Points: square(0, 0, 10)},
		{Type: topology.TypeBoundary, Points: square(4, 4, 2)},
		{Type: topology.TypeCentroid, Points: orb.LineString{{1, 1}}, Cats: topology.NewCats(topology.Cat{Layer: 1, Value: 100})},
		{Type: topology.TypeCentroid, Points: orb.LineString{{5, 5}}, Cats: topology.NewCats(topology.Cat{Layer: 1, Value: 200})},
		{Type: topology.TypeLine, Points: orb.LineString{{20, 0}, {30, 0}}, Cats: topology.NewCats(topology.Cat{Layer: 1, Value: 300})},
		{Type: topology.TypePoint, Points: orb.LineString{{20, 5}}},
	}
	if _, err := topology.Ingest(context.Background(), m, topology.NewSliceSource(prims), nil); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if _, err := m.Build(context.Background()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return m
}

func TestWriteFeatures_Empty(t *testing.T) {
	if err := WriteFeatures(&bytes.Buffer{}, geojson.NewFeatureCollection(), nil); err != ErrNothingToWrite {
		t.Errorf("expected ErrNothingToWrite, got %v", err)
	}
	if err := WriteAreas(&bytes.Buffer{}, topology.New(nil), nil); err != ErrNothingToWrite {
		t.Errorf("expected ErrNothingToWrite, got %v", err)
	}
}

func TestWriteFeatures_Magic(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))

	var buf bytes.Buffer
	if err := WriteFeatures(&buf, fc, nil); err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}

	data := buf.Bytes()
	expectedMagic := []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}
	if len(data) < len(expectedMagic) {
		t.Fatal("output too short")
	}
	for i, b := range expectedMagic {
		if data[i] != b {
			t.Errorf("magic byte %d: expected 0x%02x, got 0x%02x", i, b, data[i])
		}
	}
}

func TestAreaFeatures(t *testing.T) {
	m := nestedMap(t)
	fc, err := AreaFeatures(m, 1, "cat")
	if err != nil {
		t.Fatalf("AreaFeatures failed: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}

	outer := fc.Features[0]
	poly, ok := outer.Geometry.(orb.Polygon)
	if !ok || len(poly) != 2 {
		t.Fatalf("expected a polygon with a hole, got %v", outer.Geometry)
	}
	if outer.Properties["cat"] != 100 || outer.Properties["isles"] != 1 {
		t.Errorf("unexpected properties %v", outer.Properties)
	}
	if outer.Properties["size"] != 96.0 {
		t.Errorf("expected size 96, got %v", outer.Properties["size"])
	}
	if fc.Features[1].Properties["cat"] != 200 {
		t.Errorf("unexpected properties %v", fc.Features[1].Properties)
	}
}

func TestLineFeatures(t *testing.T) {
	m := nestedMap(t)
	fc, err := LineFeatures(m, topology.TypeLine|topology.TypePoint, 1, "cat")
	if err != nil {
		t.Fatalf("LineFeatures failed: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if _, ok := fc.Features[0].Geometry.(orb.LineString); !ok {
		t.Errorf("expected a line string, got %T", fc.Features[0].Geometry)
	}
	if fc.Features[0].Properties["cat"] != 300 || fc.Features[0].Properties["type"] != "line" {
		t.Errorf("unexpected properties %v", fc.Features[0].Properties)
	}
	if _, ok := fc.Features[1].Geometry.(orb.Point); !ok {
		t.Errorf("expected a point, got %T", fc.Features[1].Geometry)
	}
	if _, ok := fc.Features[1].Properties["cat"]; ok {
		t.Errorf("unexpected category on %v", fc.Features[1].Properties)
	}

	fc, err = LineFeatures(m, topology.TypeBoundary, 1, "cat")
	if err != nil {
		t.Fatalf("LineFeatures failed: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(fc.Features))
	}
	for _, f := range fc.Features {
		if f.Properties["left"] == 0 || f.Properties["right"] == 0 {
			t.Errorf("boundary without faces: %v", f.Properties)
		}
	}
}
