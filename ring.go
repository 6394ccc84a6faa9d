package topology

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// ringPoints concatenates the coordinates of a ring of directed lines into
// a closed orb.Ring.
func (m *Map) ringPoints(ring []DirLine) orb.Ring {
	var out orb.Ring
	for _, d := range ring {
		pts := m.points(d.ID)
		if len(pts) == 0 {
			continue
		}
		n := len(pts)
		for k := 0; k < n; k++ {
			i := k
			if d.Reversed {
				i = n - 1 - k
			}
			if k == 0 && len(out) > 0 && out[len(out)-1] == pts[i] {
				continue
			}
			out = append(out, pts[i])
		}
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

// ringArea returns the signed area of r: positive when clockwise.
func ringArea(r orb.Ring) float64 {
	if len(r) < 4 {
		return 0
	}
	return -planar.Area(r)
}

// AreaRing returns the outer ring of area id, clockwise and closed.
func (m *Map) AreaRing(id AreaID) (orb.Ring, error) {
	if !m.areaAlive(id) {
		return nil, errors.Wrapf(ErrNotFound, "area %d", id)
	}
	return m.ringPoints(m.areas[id].Lines), nil
}

// IsleRing returns the ring of isle id, counter-clockwise and closed.
func (m *Map) IsleRing(id IsleID) (orb.Ring, error) {
	if !m.isleAlive(id) {
		return nil, errors.Wrapf(ErrNotFound, "isle %d", id)
	}
	return m.ringPoints(m.isles[id].Lines), nil
}

// AreaPolygon returns area id as a polygon whose holes are its isles.
// The outer ring is counter-clockwise and holes clockwise, as GeoJSON expects.
func (m *Map) AreaPolygon(id AreaID) (orb.Polygon, error) {
	outer, err := m.AreaRing(id)
	if err != nil {
		return nil, err
	}
	outer.Reverse()
	poly := orb.Polygon{outer}
	for _, iid := range m.areas[id].Isles {
		if !m.isleAlive(iid) {
			continue
		}
		hole := m.ringPoints(m.isles[iid].Lines)
		hole.Reverse()
		poly = append(poly, hole)
	}
	return poly, nil
}

// AreaSize returns the planar area of id minus the area of its isles.
func (m *Map) AreaSize(id AreaID) (float64, error) {
	outer, err := m.AreaRing(id)
	if err != nil {
		return 0, err
	}
	size := math.Abs(ringArea(outer))
	for _, iid := range m.areas[id].Isles {
		if m.isleAlive(iid) {
			size -= math.Abs(ringArea(m.ringPoints(m.isles[iid].Lines)))
		}
	}
	return size, nil
}
