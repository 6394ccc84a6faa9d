package topology

import (
	"fmt"

	"github.com/tingold/orb-topology/spatial"
)

// ConsistencyError is a dangling or contradictory cross-reference found by
// Validate.
type ConsistencyError struct {
	Element string // "node", "line", "area", "isle" or "category"
	ID      int
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("topology: %s %d: %s", e.Element, e.ID, e.Reason)
}

// Unwrap lets errors.Is match ErrCorrupt.
func (e *ConsistencyError) Unwrap() error { return ErrCorrupt }

// Validate checks every cross-reference of the map and returns one
// *ConsistencyError per problem. A map that fails validation can be repaired
// with Rebuild.
func (m *Map) Validate() []error {
	var errs []error
	report := func(elem string, id int, format string, args ...any) {
		errs = append(errs, &ConsistencyError{Element: elem, ID: id, Reason: fmt.Sprintf(format, args...)})
	}

	var nodes, lines, areas, isles int
	for id := NodeID(1); int(id) < len(m.nodes); id++ {
		n := m.nodes[id]
		if !n.alive {
			continue
		}
		nodes++
		if len(n.Lines) == 0 {
			report("node", int(id), "no lines")
		}
		for i, nl := range n.Lines {
			if !m.lineAlive(nl.Line.ID) {
				report("node", int(id), "dead line %d", nl.Line.ID)
				continue
			}
			if m.tail(nl.Line) != id {
				report("node", int(id), "line %v does not start here", nl.Line)
			}
			if i > 0 && n.Lines[i-1].Angle > nl.Angle {
				report("node", int(id), "lines not sorted by angle")
			}
		}
		if !m.spidx.Has(spatial.Node, int(id)) {
			report("node", int(id), "missing from spatial index")
		}
	}

	for id := LineID(1); int(id) < len(m.lines); id++ {
		l := m.lines[id]
		if !l.alive {
			if m.spidx.Has(spatial.Line, int(id)) {
				report("line", int(id), "dead line in spatial index")
			}
			continue
		}
		lines++
		for _, n := range []NodeID{l.N1, l.N2} {
			if !m.nodeAlive(n) {
				report("line", int(id), "dead node %d", n)
			}
		}
		if m.nodeAlive(l.N1) {
			if _, ok := m.position(l.N1, DirLine{ID: id}); !ok {
				report("line", int(id), "start missing at node %d", l.N1)
			}
		}
		if m.nodeAlive(l.N2) && l.Type&TypeLines != 0 {
			if _, ok := m.position(l.N2, DirLine{ID: id, Reversed: true}); !ok {
				report("line", int(id), "end missing at node %d", l.N2)
			}
		}
		for _, f := range []FaceRef{l.Left, l.Right} {
			if !m.faceAlive(f) {
				report("line", int(id), "dead face %d", f)
			}
		}
		if _, _, _, err := m.geom.read(l.Offset); err != nil {
			report("line", int(id), "geometry: %v", err)
		}
		if !m.spidx.Has(spatial.Line, int(id)) {
			report("line", int(id), "missing from spatial index")
		}
	}

	for id := AreaID(1); int(id) < len(m.areas); id++ {
		a := m.areas[id]
		if !a.alive {
			continue
		}
		areas++
		m.checkRing("area", int(id), a.Lines, AreaRef(id), report)
		for _, iid := range a.Isles {
			if !m.isleAlive(iid) || m.isles[iid].Area != id {
				report("area", int(id), "isle %d not linked back", iid)
			}
		}
		if a.Centroid != 0 {
			if !m.lineAlive(a.Centroid) || m.lines[a.Centroid].Left != AreaRef(id) {
				report("area", int(id), "centroid %d not linked back", a.Centroid)
			}
		}
		if !m.spidx.Has(spatial.Area, int(id)) {
			report("area", int(id), "missing from spatial index")
		}
	}

	for id := IsleID(1); int(id) < len(m.isles); id++ {
		i := m.isles[id]
		if !i.alive {
			continue
		}
		isles++
		m.checkRing("isle", int(id), i.Lines, IsleRef(id), report)
		if i.Area != 0 && !m.areaAlive(i.Area) {
			report("isle", int(id), "dead area %d", i.Area)
		}
		if !m.spidx.Has(spatial.Isle, int(id)) {
			report("isle", int(id), "missing from spatial index")
		}
	}

	for _, layer := range m.cidx.Layers() {
		for _, e := range m.cidx.Layer(layer) {
			ok := m.lineAlive(LineID(e.ID)) && int(m.lines[e.ID].Type) == e.Type
			if LineType(e.Type) == TypeArea {
				ok = m.areaAlive(AreaID(e.ID))
			}
			if !ok {
				report("category", e.Cat, "layer %d: dangling %v %d", layer, LineType(e.Type), e.ID)
			}
		}
	}

	if nodes != m.nNodes || lines != m.nLines || areas != m.nAreas || isles != m.nIsles {
		report("map", 0, "live counts %d/%d/%d/%d, recorded %d/%d/%d/%d",
			nodes, lines, areas, isles, m.nNodes, m.nLines, m.nAreas, m.nIsles)
	}
	return errs
}

func (m *Map) checkRing(elem string, id int, ring []DirLine, ref FaceRef, report func(string, int, string, ...any)) {
	if len(ring) == 0 {
		report(elem, id, "empty ring")
		return
	}
	for i, d := range ring {
		if !m.lineAlive(d.ID) {
			report(elem, id, "dead line %d", d.ID)
			return
		}
		if m.sideRef(d) != ref {
			report(elem, id, "line %v faces %d", d, m.sideRef(d))
		}
		next := ring[(i+1)%len(ring)]
		if m.lineAlive(next.ID) && m.head(d) != m.tail(next) {
			report(elem, id, "ring open between %v and %v", d, next)
		}
	}
}
