package topology

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"github.com/tingold/orb-topology/spatial"
)

// AddLine inserts a primitive and returns its handle. Line ends are matched
// to existing nodes within the map's tolerance; new nodes are created
// otherwise. Point types (point, centroid, kernel) take a single node.
// A boundary invalidates the areas and isles around its end nodes; call
// Build to restore them.
//
// Geometry with no points, a line type with fewer than two points, or any
// non-finite coordinate is rejected with ErrInvalidGeometry and the map is
// left unchanged.
func (m *Map) AddLine(typ LineType, pts orb.LineString, z []float64, cats Cats) (LineID, error) {
	if err := checkGeometry(typ, pts, z); err != nil {
		return 0, err
	}
	cats = cats.normalized()

	id := LineID(len(m.lines))
	l := Line{
		Type:   typ,
		Bound:  pts.Bound(),
		Offset: m.geom.append(pts, z, cats),
		alive:  true,
	}

	if typ&TypePoints != 0 {
		n := m.nodeAt(pts[0], zAt(z, 0))
		m.attach(n, NodeLine{Line: DirLine{ID: id}, Angle: DegenerateAngle})
		l.N1, l.N2 = n, n
		l.angles = [2]float64{DegenerateAngle, DegenerateAngle}
	} else {
		last := len(pts) - 1
		l.N1 = m.nodeAt(pts[0], zAt(z, 0))
		l.N2 = m.nodeAt(pts[last], zAt(z, last))
		begin, end := beginAngle(pts), endAngle(pts)
		if typ == TypeBoundary && begin != DegenerateAngle {
			m.dropFacesAt(l.N1)
			m.dropFacesAt(l.N2)
		}
		m.attach(l.N1, NodeLine{Line: DirLine{ID: id}, Angle: begin})
		m.attach(l.N2, NodeLine{Line: DirLine{ID: id, Reversed: true}, Angle: end})
		l.angles = [2]float64{begin, end}
	}

	m.lines = append(m.lines, l)
	m.nLines++
	m.spidx.Insert(spatial.Line, int(id), l.Bound)
	for _, c := range cats {
		m.cidx.Add(c.Layer, c.Value, int(typ), int(id))
	}
	return id, nil
}

// DeleteLine tombstones line id. It is removed from its nodes (nodes left
// without lines die), from both indexes, and every area or isle bounded by
// it is invalidated; call Build to restore them.
//
// Deleting a missing or already dead line returns ErrNothingToDelete.
func (m *Map) DeleteLine(id LineID) error {
	if !m.lineAlive(id) {
		return errors.Wrapf(ErrNothingToDelete, "line %d", id)
	}
	l := m.lines[id]

	switch l.Type {
	case TypeBoundary:
		m.dropFace(l.Left)
		m.dropFace(l.Right)
	case TypeCentroid:
		if aid, ok := l.Left.Area(); ok && m.areaAlive(aid) && m.areas[aid].Centroid == id {
			m.areas[aid].Centroid = 0
			m.cidx.RemoveElement(int(TypeArea), int(aid))
		}
	}

	m.detach(l.N1, id)
	if l.N2 != l.N1 {
		m.detach(l.N2, id)
	}

	_, _, cats, err := m.geom.read(l.Offset)
	if err == nil {
		for _, c := range cats {
			m.cidx.Remove(c.Layer, c.Value, int(l.Type), int(id))
		}
	}
	m.geom.dead += m.geom.size(l.Offset)

	m.spidx.Delete(spatial.Line, int(id))
	m.lines[id].alive = false
	m.lines[id].Left, m.lines[id].Right = 0, 0
	m.nLines--
	return nil
}

// RewriteLine replaces line id with new geometry. The old handle becomes a
// tombstone and the new handle is returned.
func (m *Map) RewriteLine(id LineID, typ LineType, pts orb.LineString, z []float64, cats Cats) (LineID, error) {
	if !m.lineAlive(id) {
		return 0, errors.Wrapf(ErrNotFound, "line %d", id)
	}
	if err := checkGeometry(typ, pts, z); err != nil {
		return 0, err
	}
	if err := m.DeleteLine(id); err != nil {
		return 0, err
	}
	return m.AddLine(typ, pts, z, cats)
}

func checkGeometry(typ LineType, pts orb.LineString, z []float64) error {
	if !typ.valid() {
		return errors.Wrapf(ErrInvalidGeometry, "type %v", typ)
	}
	if len(pts) == 0 {
		return errors.Wrap(ErrInvalidGeometry, "no points")
	}
	if typ&TypeLines != 0 && len(pts) < 2 {
		return errors.Wrapf(ErrInvalidGeometry, "%v with %d point", typ, len(pts))
	}
	if z != nil && len(z) != len(pts) {
		return errors.Wrapf(ErrInvalidGeometry, "%d z values for %d points", len(z), len(pts))
	}
	for i, p := range pts {
		if !finite(p[0]) || !finite(p[1]) || (z != nil && !finite(z[i])) {
			return errors.Wrapf(ErrInvalidGeometry, "non-finite coordinate at vertex %d", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// nodeAt returns the node matching p, creating one if none is within tolerance.
func (m *Map) nodeAt(p orb.Point, z float64) NodeID {
	if id, ok := m.FindNode(p, m.opts.Tolerance); ok {
		return id
	}
	id := NodeID(len(m.nodes))
	m.nodes = append(m.nodes, Node{Point: p, Z: z, alive: true})
	m.nNodes++
	m.spidx.Insert(spatial.Node, int(id), p.Bound())
	return id
}

// attach inserts a line end into the node's angle-sorted list, after any
// entries with the same angle.
func (m *Map) attach(id NodeID, nl NodeLine) {
	lines := m.nodes[id].Lines
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Angle > nl.Angle })
	lines = append(lines, NodeLine{})
	copy(lines[i+1:], lines[i:])
	lines[i] = nl
	m.nodes[id].Lines = lines
}

// dropFacesAt invalidates the areas and isles bounded by any boundary at
// the node. A new boundary there splits or joins them.
func (m *Map) dropFacesAt(id NodeID) {
	for _, nl := range m.nodes[id].Lines {
		if l := m.lines[nl.Line.ID]; l.Type == TypeBoundary {
			m.dropFace(l.Left)
			m.dropFace(l.Right)
		}
	}
}

// detach removes every end of line from the node and kills the node once empty.
func (m *Map) detach(id NodeID, line LineID) {
	if !m.nodeAlive(id) {
		return
	}
	n := &m.nodes[id]
	kept := n.Lines[:0]
	for _, nl := range n.Lines {
		if nl.Line.ID != line {
			kept = append(kept, nl)
		}
	}
	n.Lines = kept
	if len(n.Lines) == 0 {
		n.alive = false
		n.Lines = nil
		m.nNodes--
		m.spidx.Delete(spatial.Node, int(id))
	}
}

// position returns the index of d in the node's list, found by binary
// search on the end's angle.
func (m *Map) position(id NodeID, d DirLine) (int, bool) {
	lines := m.nodes[id].Lines
	angle := m.storedAngle(d)
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Angle >= angle })
	for ; i < len(lines) && lines[i].Angle == angle; i++ {
		if lines[i].Line == d {
			return i, true
		}
	}
	return 0, false
}

// storedAngle is the angle of d at the node it leaves.
func (m *Map) storedAngle(d DirLine) float64 {
	if d.Reversed {
		return m.lines[d.ID].angles[1]
	}
	return m.lines[d.ID].angles[0]
}

// angleAt returns the angle of d where it leaves its start node.
func (m *Map) angleAt(d DirLine) float64 {
	n := m.tail(d)
	if i, ok := m.position(n, d); ok {
		return m.nodes[n].Lines[i].Angle
	}
	return DegenerateAngle
}

// tail is the node a directed line leaves from; head the node it arrives at.
func (m *Map) tail(d DirLine) NodeID {
	if d.Reversed {
		return m.lines[d.ID].N2
	}
	return m.lines[d.ID].N1
}

func (m *Map) head(d DirLine) NodeID {
	if d.Reversed {
		return m.lines[d.ID].N1
	}
	return m.lines[d.ID].N2
}

// beginAngle is the direction of the first segment of non-zero length.
func beginAngle(pts orb.LineString) float64 {
	p0 := pts[0]
	for _, p := range pts[1:] {
		if p != p0 {
			return math.Atan2(p[1]-p0[1], p[0]-p0[0])
		}
	}
	return DegenerateAngle
}

// endAngle is the direction from the last vertex back along the line.
func endAngle(pts orb.LineString) float64 {
	pn := pts[len(pts)-1]
	for i := len(pts) - 2; i >= 0; i-- {
		if pts[i] != pn {
			return math.Atan2(pts[i][1]-pn[1], pts[i][0]-pn[0])
		}
	}
	return DegenerateAngle
}

// distance between two points: planar units, or meters in geodesic mode.
func (m *Map) distance(a, b orb.Point) float64 {
	if m.opts.Geodesic {
		return latLng(a).Distance(latLng(b)).Radians() * orb.EarthRadius
	}
	return planar.Distance(a, b)
}

// lineDistance returns the distance from p to the nearest segment of pts.
func (m *Map) lineDistance(p orb.Point, pts orb.LineString) float64 {
	if len(pts) == 1 {
		return m.distance(p, pts[0])
	}
	if !m.opts.Geodesic {
		return planar.DistanceFrom(pts, p)
	}
	x := s2.PointFromLatLng(latLng(p))
	best := s1.InfAngle()
	for i := 1; i < len(pts); i++ {
		a := s2.PointFromLatLng(latLng(pts[i-1]))
		b := s2.PointFromLatLng(latLng(pts[i]))
		if d := s2.DistanceFromSegment(x, a, b); d < best {
			best = d
		}
	}
	return best.Radians() * orb.EarthRadius
}

// searchBound returns a box around p covering every point within dist.
func (m *Map) searchBound(p orb.Point, dist float64) orb.Bound {
	dx, dy := dist, dist
	if m.opts.Geodesic {
		dy = dist / orb.EarthRadius * 180 / math.Pi
		c := math.Cos(p[1] * math.Pi / 180)
		if c < 1e-6 {
			dx = 360
		} else {
			dx = dy / c
		}
	}
	return orb.Bound{
		Min: orb.Point{p[0] - dx, p[1] - dy},
		Max: orb.Point{p[0] + dx, p[1] + dy},
	}
}

func latLng(p orb.Point) s2.LatLng {
	return s2.LatLngFromDegrees(p[1], p[0])
}
