package fgb

import (
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	topology "github.com/tingold/orb-topology"
)

// orbToFGBGeometryType converts an orb.Geometry to its FlatGeobuf GeometryType.
func orbToFGBGeometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// geometryToFGB converts an orb.Geometry to a FlatGeobuf writer.Geometry.
// It returns nil for types the exporter never produces.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(appendXY(nil, v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(appendXY(nil, v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := xyEnds(parts)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		return geometryToFGB(orb.Polygon{v}, builder)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonToXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

func appendXY(xy []float64, pts []orb.Point) []float64 {
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// xyEnds flattens parts into one coordinate array and the cumulative point
// count at the end of each part.
func xyEnds(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		xy = appendXY(xy, p)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return xyEnds(parts)
}

// geometryFromFGB converts a FlatGeobuf flattypes.Geometry to an orb.Geometry.
func geometryFromFGB(g *flattypes.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	switch g.Type() {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsFromXY(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsFromXY(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		var mls orb.MultiLineString
		for _, pts := range partsFromXYEnds(g) {
			mls = append(mls, orb.LineString(pts))
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(g)

	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			return orb.MultiPolygon{polygonFromXYEnds(g)}
		}
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, polygonFromXYEnds(&part))
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		coll := make(orb.Collection, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll

	default:
		return nil
	}
}

// pointsFromXY reads points [start, end) of the coordinate array.
func pointsFromXY(g *flattypes.Geometry, start, end int) []orb.Point {
	if n := g.XyLength() / 2; end > n {
		end = n
	}
	if end <= start {
		return nil
	}
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// partsFromXYEnds splits the coordinate array at the ends array. Without
// ends the whole array is one part.
func partsFromXYEnds(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil
		}
		return [][]orb.Point{pointsFromXY(g, 0, n)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		parts = append(parts, pointsFromXY(g, start, end))
		start = end
	}
	return parts
}

func polygonFromXYEnds(g *flattypes.Geometry) orb.Polygon {
	var poly orb.Polygon
	for _, pts := range partsFromXYEnds(g) {
		poly = append(poly, orb.Ring(pts))
	}
	return poly
}

// primitives breaks a feature geometry into topology primitives. Polygon
// rings become boundaries; unless centroids is false each polygon also gets
// a centroid inside it carrying cats. Other primitives carry cats directly.
func primitives(geom orb.Geometry, cats topology.Cats, lineType topology.LineType, centroids bool) ([]topology.Primitive, error) {
	var out []topology.Primitive
	var walk func(orb.Geometry) error
	walk = func(geom orb.Geometry) error {
		switch v := geom.(type) {
		case orb.Point:
			out = append(out, topology.Primitive{Type: topology.TypePoint, Points: orb.LineString{v}, Cats: cats.Clone()})
		case orb.MultiPoint:
			for _, p := range v {
				out = append(out, topology.Primitive{Type: topology.TypePoint, Points: orb.LineString{p}, Cats: cats.Clone()})
			}
		case orb.LineString:
			out = append(out, topology.Primitive{Type: lineType, Points: v, Cats: cats.Clone()})
		case orb.MultiLineString:
			for _, ls := range v {
				out = append(out, topology.Primitive{Type: lineType, Points: ls, Cats: cats.Clone()})
			}
		case orb.Polygon:
			if len(v) == 0 {
				return ErrUnsupportedType
			}
			for _, r := range v {
				out = append(out, topology.Primitive{Type: topology.TypeBoundary, Points: orb.LineString(r)})
			}
			if centroids {
				if p, ok := interiorPoint(v); ok {
					out = append(out, topology.Primitive{Type: topology.TypeCentroid, Points: orb.LineString{p}, Cats: cats.Clone()})
				}
			}
		case orb.MultiPolygon:
			for _, poly := range v {
				if err := walk(poly); err != nil {
					return err
				}
			}
		case orb.Collection:
			for _, g := range v {
				if err := walk(g); err != nil {
					return err
				}
			}
		default:
			return ErrUnsupportedType
		}
		return nil
	}
	if err := walk(geom); err != nil {
		return nil, err
	}
	return out, nil
}

// interiorPoint returns a point strictly inside poly: the middle of the
// widest interior span on the horizontal line through the middle of the
// outer ring's bound.
func interiorPoint(poly orb.Polygon) (orb.Point, bool) {
	if len(poly) == 0 {
		return orb.Point{}, false
	}
	b := poly[0].Bound()
	y := (b.Min[1] + b.Max[1]) / 2

	var xs []float64
	for _, r := range poly {
		for i := 0; i+1 < len(r); i++ {
			a, c := r[i], r[i+1]
			if (a[1] > y) == (c[1] > y) {
				continue
			}
			xs = append(xs, a[0]+(y-a[1])*(c[0]-a[0])/(c[1]-a[1]))
		}
	}
	sort.Float64s(xs)

	best, width := orb.Point{}, 0.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > width {
			best, width = orb.Point{(xs[i] + xs[i+1]) / 2, y}, w
		}
	}
	return best, width > 0
}
