package topology

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
	"github.com/tingold/orb-topology/catindex"
	"github.com/tingold/orb-topology/spatial"
)

// SelectNodes returns the live nodes inside b, ascending.
func (m *Map) SelectNodes(b orb.Bound) []NodeID {
	return lo.FilterMap(m.spidx.Query(spatial.Node, b), func(id int, _ int) (NodeID, bool) {
		return NodeID(id), m.nodeAlive(NodeID(id))
	})
}

// SelectLines returns the live lines of mask whose bound overlaps b, ascending.
func (m *Map) SelectLines(b orb.Bound, mask LineType) []LineID {
	return lo.FilterMap(m.spidx.Query(spatial.Line, b), func(id int, _ int) (LineID, bool) {
		lid := LineID(id)
		return lid, m.lineAlive(lid) && m.lines[lid].Type&mask != 0
	})
}

// SelectAreas returns the live areas whose bound overlaps b, ascending.
func (m *Map) SelectAreas(b orb.Bound) []AreaID {
	return lo.FilterMap(m.spidx.Query(spatial.Area, b), func(id int, _ int) (AreaID, bool) {
		return AreaID(id), m.areaAlive(AreaID(id))
	})
}

// SelectIsles returns the live isles whose bound overlaps b, ascending.
func (m *Map) SelectIsles(b orb.Bound) []IsleID {
	return lo.FilterMap(m.spidx.Query(spatial.Isle, b), func(id int, _ int) (IsleID, bool) {
		return IsleID(id), m.isleAlive(IsleID(id))
	})
}

// FindNode returns the node nearest to p within maxDist. Ties go to the
// lowest handle.
func (m *Map) FindNode(p orb.Point, maxDist float64) (NodeID, bool) {
	var best NodeID
	bestDist := math.Inf(1)
	for _, c := range m.spidx.Query(spatial.Node, m.searchBound(p, maxDist)) {
		id := NodeID(c)
		if !m.nodeAlive(id) {
			continue
		}
		if d := m.distance(p, m.nodes[id].Point); d <= maxDist && d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != 0
}

// FindLine returns the line of mask nearest to p within maxDist, skipping
// the lines in exclude.
func (m *Map) FindLine(p orb.Point, mask LineType, maxDist float64, exclude ...LineID) (LineID, bool) {
	var best LineID
	bestDist := math.Inf(1)
	for _, c := range m.spidx.Query(spatial.Line, m.searchBound(p, maxDist)) {
		id := LineID(c)
		if !m.lineAlive(id) || m.lines[id].Type&mask == 0 || lo.Contains(exclude, id) {
			continue
		}
		if d := m.lineDistance(p, m.points(id)); d <= maxDist && d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != 0
}

// FindArea returns the area containing p: inside its outer ring and outside
// all of its isles. A point on a boundary shared by two areas resolves to
// the lower handle.
func (m *Map) FindArea(p orb.Point) (AreaID, bool) {
	for _, c := range m.spidx.Query(spatial.Area, orb.Bound{Min: p, Max: p}) {
		id := AreaID(c)
		if m.areaAlive(id) && m.areaContains(id, p) {
			return id, true
		}
	}
	return 0, false
}

func (m *Map) areaContains(id AreaID, p orb.Point) bool {
	if !planar.RingContains(m.cachedRing(id), p) {
		return false
	}
	for _, iid := range m.areas[id].Isles {
		if !m.isleAlive(iid) || !m.isles[iid].Bound.Contains(p) {
			continue
		}
		ring := m.ringPoints(m.isles[iid].Lines)
		if planar.RingContains(ring, p) && !onRing(ring, p) {
			return false
		}
	}
	return true
}

// onRing reports whether p lies on one of the ring's segments.
func onRing(r orb.Ring, p orb.Point) bool {
	for i := 1; i < len(r); i++ {
		if planar.DistanceFromSegment(r[i-1], r[i], p) == 0 {
			return true
		}
	}
	return false
}

// LookupCat returns every element of layer carrying category cat, as
// category-index entries. Area entries have type TypeArea.
func (m *Map) LookupCat(layer, cat int) []catindex.Entry {
	return m.cidx.Lookup(layer, cat)
}

// LookupLines returns the live lines of mask carrying (layer, cat).
func (m *Map) LookupLines(layer, cat int, mask LineType) []LineID {
	return lo.FilterMap(m.cidx.Lookup(layer, cat), func(e catindex.Entry, _ int) (LineID, bool) {
		return LineID(e.ID), LineType(e.Type)&mask != 0 && LineType(e.Type) != TypeArea
	})
}

// LookupAreas returns the areas whose centroid carries (layer, cat).
func (m *Map) LookupAreas(layer, cat int) []AreaID {
	return lo.FilterMap(m.cidx.Lookup(layer, cat), func(e catindex.Entry, _ int) (AreaID, bool) {
		return AreaID(e.ID), LineType(e.Type) == TypeArea
	})
}

// NextCat returns the first entry of layer with category >= cat whose type
// is in mask.
func (m *Map) NextCat(layer, cat int, mask LineType) (catindex.Entry, bool) {
	return m.cidx.Next(layer, cat, int(mask))
}

// NextUnusedCat returns the smallest category >= from unused in layer.
func (m *Map) NextUnusedCat(layer, from int) int {
	return m.cidx.NextUnused(layer, from)
}

// CatsInLayer returns the distinct categories of layer, ascending.
func (m *Map) CatsInLayer(layer int) []int {
	return lo.Uniq(lo.Map(m.cidx.Layer(layer), func(e catindex.Entry, _ int) int { return e.Cat }))
}

// Layers returns the layers present in the category index.
func (m *Map) Layers() []int { return m.cidx.Layers() }

// SelectLinesByCatList returns the live lines of mask having a category of
// layer in list, ascending.
func (m *Map) SelectLinesByCatList(layer int, list CatList, mask LineType) []LineID {
	var out []LineID
	for _, e := range m.cidx.Layer(layer) {
		if LineType(e.Type)&mask == 0 || LineType(e.Type) == TypeArea || !list.Has(e.Cat) {
			continue
		}
		out = append(out, LineID(e.ID))
	}
	out = lo.Uniq(out)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
