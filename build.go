package topology

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tingold/orb-topology/spatial"
)

// BuildFailure classifies why a ring could not be closed.
type BuildFailure int

// Ring build failures.
const (
	NoArea BuildFailure = iota + 1
	Ambiguous
	Unclosed
)

func (f BuildFailure) String() string {
	switch f {
	case NoArea:
		return "no area"
	case Ambiguous:
		return "ambiguous angle"
	case Unclosed:
		return "unclosed area"
	default:
		return fmt.Sprintf("BuildFailure(%d)", int(f))
	}
}

func (f BuildFailure) sentinel() error {
	switch f {
	case Ambiguous:
		return ErrAmbiguous
	case Unclosed:
		return ErrUnclosed
	default:
		return ErrNoArea
	}
}

// BuildError reports a ring that could not be built from Line on Side.
// Node is where the walk stopped, zero if it never left the start.
type BuildError struct {
	Kind BuildFailure
	Line LineID
	Side Side
	Node NodeID
}

func (e *BuildError) Error() string {
	if e.Node == 0 {
		return fmt.Sprintf("topology: %s: line %d %s", e.Kind, e.Line, e.Side)
	}
	return fmt.Sprintf("topology: %s: line %d %s at node %d", e.Kind, e.Line, e.Side, e.Node)
}

// Unwrap lets errors.Is match ErrNoArea, ErrAmbiguous or ErrUnclosed.
func (e *BuildError) Unwrap() error { return e.Kind.sentinel() }

// builder holds buffers reused across ring walks.
type builder struct {
	ring  []DirLine
	rings map[AreaID]orb.Ring

	// visited[id] == walk marks a line taken by the current walk
	visited []uint32
	walk    uint32
}

// startWalk begins a new walk over a map with n line slots.
func (b *builder) startWalk(n int) {
	if len(b.visited) < n {
		b.visited = append(b.visited, make([]uint32, n-len(b.visited))...)
	}
	b.walk++
	if b.walk == 0 {
		clear(b.visited)
		b.walk = 1
	}
}

func (b *builder) visit(id LineID) { b.visited[id] = b.walk }

func (b *builder) seen(id LineID) bool { return b.visited[id] == b.walk }

// BuildAreaFromLine walks the boundary graph from line, keeping the face on
// side of the line's stored direction, and returns the closed ring. At each
// node the walk turns to the next boundary end around the node from the
// line it arrived by, so the face stays on the right of the walking
// direction. The ring is clockwise when it bounds an area and
// counter-clockwise when it is the outer edge of a connected component
// (an isle).
//
// Failures are *BuildError: NoArea for a degenerate start line or a dead
// end, Ambiguous when two boundary ends at a node share an angle, Unclosed
// when the walk runs into a line it has already taken.
func (m *Map) BuildAreaFromLine(line LineID, side Side) ([]DirLine, error) {
	fail := func(kind BuildFailure, node NodeID) error {
		return &BuildError{Kind: kind, Line: line, Side: side, Node: node}
	}
	if side != Left && side != Right {
		return nil, errors.Errorf("topology: invalid side %d", side)
	}
	if !m.lineAlive(line) || m.lines[line].Type != TypeBoundary {
		return nil, fail(NoArea, 0)
	}

	first := DirLine{ID: line, Reversed: side == Left}
	if m.angleAt(first) == DegenerateAngle {
		return nil, fail(NoArea, 0)
	}

	ring := append(m.scratch.ring[:0], first)
	m.scratch.startWalk(len(m.lines))
	m.scratch.visit(first.ID)
	prev := first
	for {
		node := m.head(prev)
		next, err := m.nextBoundary(node, prev.Reverse())
		if err != nil {
			m.scratch.ring = ring
			if err == errAmbiguousNode {
				return nil, fail(Ambiguous, node)
			}
			return nil, err
		}
		if next == first {
			m.scratch.ring = ring
			return append([]DirLine(nil), ring...), nil
		}
		if next == prev.Reverse() {
			m.scratch.ring = ring
			return nil, fail(NoArea, node)
		}
		if m.scratch.seen(next.ID) {
			m.scratch.ring = ring
			return nil, fail(Unclosed, node)
		}
		m.scratch.visit(next.ID)
		ring = append(ring, next)
		prev = next
	}
}

var errAmbiguousNode = errors.New("ambiguous node")

// nextBoundary returns the boundary end following arrival counter-clockwise
// around node, skipping other types and degenerate ends. It wraps back to
// arrival itself when nothing else leaves the node.
func (m *Map) nextBoundary(node NodeID, arrival DirLine) (DirLine, error) {
	lines := m.nodes[node].Lines
	pos, ok := m.position(node, arrival)
	if !ok {
		return DirLine{}, errors.Wrapf(ErrCorrupt, "line %d missing at node %d", arrival.ID, node)
	}
	n := len(lines)
	at := -1
	for k := 1; k <= n; k++ {
		i := (pos + k) % n
		if lines[i].Angle == DegenerateAngle || m.lines[lines[i].Line.ID].Type != TypeBoundary {
			continue
		}
		at = i
		break
	}
	if at < 0 {
		return DirLine{}, errors.Wrapf(ErrCorrupt, "no boundary end at node %d", node)
	}
	if m.sharesAngle(lines, at) || m.sharesAngle(lines, pos) {
		return DirLine{}, errAmbiguousNode
	}
	return lines[at].Line, nil
}

// sharesAngle reports whether another boundary end at the node has the same
// angle as lines[i]. Equal angles are adjacent in the sorted list.
func (m *Map) sharesAngle(lines []NodeLine, i int) bool {
	a := lines[i].Angle
	for j := i - 1; j >= 0 && lines[j].Angle == a; j-- {
		if m.lines[lines[j].Line.ID].Type == TypeBoundary {
			return true
		}
	}
	for j := i + 1; j < len(lines) && lines[j].Angle == a; j++ {
		if m.lines[lines[j].Line.ID].Type == TypeBoundary {
			return true
		}
	}
	return false
}

// BuildStats summarises a Build.
type BuildStats struct {
	Areas, Isles int // created by this build
	Failures     []error
	// centroids falling outside every area, or into an area that already has one
	OutsideCentroids   []LineID
	DuplicateCentroids []LineID
}

// Build closes every ring not yet built, then re-attaches isles to their
// enclosing areas and centroids to their areas. A ring that cannot be closed
// is recorded in BuildStats.Failures and skipped. The context is checked
// between rings; a cancelled build leaves every completed ring in place.
func (m *Map) Build(ctx context.Context) (BuildStats, error) {
	var stats BuildStats
	for id := LineID(1); int(id) < len(m.lines); id++ {
		l := &m.lines[id]
		if !l.alive || l.Type != TypeBoundary {
			continue
		}
		for _, side := range []Side{Right, Left} {
			if m.faceOf(id, side) != 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			ring, err := m.BuildAreaFromLine(id, side)
			if err != nil {
				stats.Failures = append(stats.Failures, err)
				m.log.Debug("ring not built", "line", id, "side", side, "err", err)
				continue
			}
			pts := m.ringPoints(ring)
			switch a := ringArea(pts); {
			case a > 0:
				m.addArea(ring)
				stats.Areas++
			case a < 0:
				m.addIsle(ring)
				stats.Isles++
			default:
				err := &BuildError{Kind: NoArea, Line: id, Side: side}
				stats.Failures = append(stats.Failures, err)
				m.log.Debug("zero-area ring", "line", id, "side", side)
			}
		}
	}
	m.attachIsles()
	m.attachCentroids(&stats)
	m.log.Info("topology built",
		"areas", m.nAreas, "isles", m.nIsles,
		"new_areas", stats.Areas, "new_isles", stats.Isles,
		"failures", len(stats.Failures))
	return stats, nil
}

func (m *Map) faceOf(id LineID, side Side) FaceRef {
	if side == Left {
		return m.lines[id].Left
	}
	return m.lines[id].Right
}

// setFace records f on the side of d that the walk kept on its right.
func (m *Map) setFace(d DirLine, f FaceRef) {
	if d.Reversed {
		m.lines[d.ID].Left = f
	} else {
		m.lines[d.ID].Right = f
	}
}

func (m *Map) ringBound(ring []DirLine) orb.Bound {
	b := m.lines[ring[0].ID].Bound
	for _, d := range ring[1:] {
		b = b.Union(m.lines[d.ID].Bound)
	}
	return b
}

func (m *Map) addArea(ring []DirLine) AreaID {
	id := AreaID(len(m.areas))
	a := Area{Lines: ring, Bound: m.ringBound(ring), alive: true}
	m.areas = append(m.areas, a)
	m.nAreas++
	for _, d := range ring {
		m.setFace(d, AreaRef(id))
	}
	m.spidx.Insert(spatial.Area, int(id), a.Bound)
	return id
}

func (m *Map) addIsle(ring []DirLine) IsleID {
	id := IsleID(len(m.isles))
	i := Isle{Lines: ring, Bound: m.ringBound(ring), alive: true}
	m.isles = append(m.isles, i)
	m.nIsles++
	for _, d := range ring {
		m.setFace(d, IsleRef(id))
	}
	m.spidx.Insert(spatial.Isle, int(id), i.Bound)
	return id
}

// dropFace invalidates the referenced area or isle.
func (m *Map) dropFace(f FaceRef) {
	if a, ok := f.Area(); ok {
		m.deleteArea(a)
	} else if i, ok := f.Isle(); ok {
		m.deleteIsle(i)
	}
}

func (m *Map) deleteArea(id AreaID) {
	if !m.areaAlive(id) {
		return
	}
	a := &m.areas[id]
	for _, d := range a.Lines {
		if m.lineAlive(d.ID) && m.sideRef(d) == AreaRef(id) {
			m.setFace(d, 0)
		}
	}
	for _, iid := range a.Isles {
		if m.isleAlive(iid) {
			m.isles[iid].Area = 0
		}
	}
	for _, c := range m.spidx.Query(spatial.Line, a.Bound) {
		if l := &m.lines[c]; l.alive && l.Type == TypeCentroid && l.Left == AreaRef(id) {
			l.Left = 0
		}
	}
	m.cidx.RemoveElement(int(TypeArea), int(id))
	m.spidx.Delete(spatial.Area, int(id))
	a.alive = false
	a.Isles = nil
	a.Centroid = 0
	m.nAreas--
	delete(m.scratch.rings, id)
}

func (m *Map) deleteIsle(id IsleID) {
	if !m.isleAlive(id) {
		return
	}
	i := &m.isles[id]
	for _, d := range i.Lines {
		if m.lineAlive(d.ID) && m.sideRef(d) == IsleRef(id) {
			m.setFace(d, 0)
		}
	}
	if m.areaAlive(i.Area) {
		a := &m.areas[i.Area]
		a.Isles = lo.Without(a.Isles, id)
	}
	m.spidx.Delete(spatial.Isle, int(id))
	i.alive = false
	i.Area = 0
	m.nIsles--
}

func (m *Map) sideRef(d DirLine) FaceRef {
	if d.Reversed {
		return m.lines[d.ID].Left
	}
	return m.lines[d.ID].Right
}

// attachIsles assigns every isle to the smallest area whose outer ring
// contains it.
func (m *Map) attachIsles() {
	m.scratch.rings = make(map[AreaID]orb.Ring)
	for id := 1; id < len(m.areas); id++ {
		m.areas[id].Isles = nil
	}
	for id := IsleID(1); int(id) < len(m.isles); id++ {
		isle := &m.isles[id]
		if !isle.alive {
			continue
		}
		isle.Area = m.isleOwner(id)
		if isle.Area != 0 {
			m.areas[isle.Area].Isles = append(m.areas[isle.Area].Isles, id)
		}
	}
}

func (m *Map) isleOwner(id IsleID) AreaID {
	isle := m.isles[id]
	pt := m.nodes[m.tail(isle.Lines[0])].Point
	inner := make(map[LineID]bool, len(isle.Lines))
	for _, d := range isle.Lines {
		inner[d.ID] = true
	}

	var best AreaID
	bestSize := math.Inf(1)
	for _, c := range m.spidx.Query(spatial.Area, isle.Bound) {
		aid := AreaID(c)
		a := m.areas[aid]
		if !a.alive || !boundCovers(a.Bound, isle.Bound) {
			continue
		}
		// areas sharing a line with the isle lie inside it
		if lo.ContainsBy(a.Lines, func(d DirLine) bool { return inner[d.ID] }) {
			continue
		}
		ring := m.cachedRing(aid)
		if !planar.RingContains(ring, pt) {
			continue
		}
		if size := math.Abs(ringArea(ring)); size < bestSize {
			best, bestSize = aid, size
		}
	}
	return best
}

func (m *Map) cachedRing(id AreaID) orb.Ring {
	if m.scratch.rings == nil {
		m.scratch.rings = make(map[AreaID]orb.Ring)
	}
	if r, ok := m.scratch.rings[id]; ok {
		return r
	}
	r := m.ringPoints(m.areas[id].Lines)
	m.scratch.rings[id] = r
	return r
}

// attachCentroids links each centroid to the area containing it. The first
// centroid of an area wins; the area's categories are those of its centroid.
func (m *Map) attachCentroids(stats *BuildStats) {
	m.cidx.RemoveType(int(TypeArea))
	for id := 1; id < len(m.areas); id++ {
		m.areas[id].Centroid = 0
	}
	for id := LineID(1); int(id) < len(m.lines); id++ {
		l := &m.lines[id]
		if !l.alive || l.Type != TypeCentroid {
			continue
		}
		aid, ok := m.FindArea(m.nodes[l.N1].Point)
		if !ok {
			l.Left = 0
			stats.OutsideCentroids = append(stats.OutsideCentroids, id)
			continue
		}
		l.Left = AreaRef(aid)
		a := &m.areas[aid]
		if a.Centroid != 0 {
			stats.DuplicateCentroids = append(stats.DuplicateCentroids, id)
			continue
		}
		a.Centroid = id
		if _, _, cats, err := m.geom.read(l.Offset); err == nil {
			for _, c := range cats {
				m.cidx.Add(c.Layer, c.Value, int(TypeArea), int(aid))
			}
		}
	}
}

// ClearAreas removes every area and isle and resets all face references,
// leaving nodes and lines untouched. Handles restart at 1 on the next Build.
func (m *Map) ClearAreas() {
	m.areas = make([]Area, 1)
	m.isles = make([]Isle, 1)
	m.nAreas, m.nIsles = 0, 0
	for id := 1; id < len(m.lines); id++ {
		m.lines[id].Left, m.lines[id].Right = 0, 0
	}
	m.spidx.Rebuild(spatial.Area, nil)
	m.spidx.Rebuild(spatial.Isle, nil)
	m.cidx.RemoveType(int(TypeArea))
	m.scratch.rings = nil
}

// Rebuild re-creates the map from the geometry of its live lines: slots of
// dead elements are reclaimed, garbage geometry dropped and the topology
// built from scratch. It is the recovery path for a map failing Validate.
// The returned table maps old line handles to new ones.
func (m *Map) Rebuild(ctx context.Context) (map[LineID]LineID, BuildStats, error) {
	fresh := New(&m.opts)
	fresh.id = m.id
	remap := make(map[LineID]LineID, m.nLines)
	for id := LineID(1); int(id) < len(m.lines); id++ {
		if !m.lines[id].alive {
			continue
		}
		pts, z, cats, err := m.geom.read(m.lines[id].Offset)
		if err != nil {
			return nil, BuildStats{}, errors.Wrapf(err, "line %d", id)
		}
		nid, err := fresh.AddLine(m.lines[id].Type, pts, z, cats)
		if err != nil {
			return nil, BuildStats{}, errors.Wrapf(err, "line %d", id)
		}
		remap[id] = nid
	}
	stats, err := fresh.Build(ctx)
	if err != nil {
		return nil, stats, err
	}
	*m = *fresh
	return remap, stats, nil
}

func boundCovers(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}
