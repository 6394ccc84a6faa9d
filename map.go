package topology

import (
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/tingold/orb-topology/catindex"
	"github.com/tingold/orb-topology/spatial"
)

// Map is a planar topology. It is not safe for concurrent use; a
// multi-threaded host must serialise all calls.
type Map struct {
	opts Options
	log  *slog.Logger
	id   uuid.UUID

	// slot 0 of each arena is unused so that 0 can mean "none"
	nodes []Node
	lines []Line
	areas []Area
	isles []Isle

	nNodes, nLines, nAreas, nIsles int

	geom  geomStore
	spidx *spatial.Index
	cidx  *catindex.Index

	scratch builder
}

// New returns an empty map.
func New(opts *Options) *Map {
	if opts == nil {
		opts = DefaultOptions()
	}
	m := &Map{
		opts:  *opts,
		log:   opts.logger(),
		id:    uuid.New(),
		spidx: spatial.New(),
		cidx:  catindex.New(),
	}
	m.geom.withZ = opts.WithZ
	m.reset()
	return m
}

func (m *Map) reset() {
	m.nodes = make([]Node, 1)
	m.lines = make([]Line, 1)
	m.areas = make([]Area, 1)
	m.isles = make([]Isle, 1)
	m.nNodes, m.nLines, m.nAreas, m.nIsles = 0, 0, 0, 0
	m.geom.buf = m.geom.buf[:0]
	m.geom.dead = 0
	m.spidx.Reset()
	m.cidx.Reset()
}

// ID returns the map's identity, preserved by Save and Load.
func (m *Map) ID() uuid.UUID { return m.id }

// Options returns the options the map was created with.
func (m *Map) Options() Options { return m.opts }

// NumNodes returns the number of live nodes.
func (m *Map) NumNodes() int { return m.nNodes }

// NumLines returns the number of live lines.
func (m *Map) NumLines() int { return m.nLines }

// NumAreas returns the number of live areas.
func (m *Map) NumAreas() int { return m.nAreas }

// NumIsles returns the number of live isles.
func (m *Map) NumIsles() int { return m.nIsles }

// NodeSlots returns the highest node handle ever issued; dead slots included.
func (m *Map) NodeSlots() int { return len(m.nodes) - 1 }

// LineSlots returns the highest line handle ever issued.
func (m *Map) LineSlots() int { return len(m.lines) - 1 }

// AreaSlots returns the highest area handle ever issued.
func (m *Map) AreaSlots() int { return len(m.areas) - 1 }

// IsleSlots returns the highest isle handle ever issued.
func (m *Map) IsleSlots() int { return len(m.isles) - 1 }

// GarbageBytes returns the size of geometry held by deleted lines; Rebuild
// reclaims it.
func (m *Map) GarbageBytes() int { return m.geom.dead }

// Node returns a copy of node id.
func (m *Map) Node(id NodeID) (Node, bool) {
	if !m.nodeAlive(id) {
		return Node{}, false
	}
	n := m.nodes[id]
	n.Lines = append([]NodeLine(nil), n.Lines...)
	return n, true
}

// Line returns a copy of line id's topology record.
func (m *Map) Line(id LineID) (Line, bool) {
	if !m.lineAlive(id) {
		return Line{}, false
	}
	return m.lines[id], true
}

// Area returns a copy of area id.
func (m *Map) Area(id AreaID) (Area, bool) {
	if !m.areaAlive(id) {
		return Area{}, false
	}
	a := m.areas[id]
	a.Lines = append([]DirLine(nil), a.Lines...)
	a.Isles = append([]IsleID(nil), a.Isles...)
	return a, true
}

// Isle returns a copy of isle id.
func (m *Map) Isle(id IsleID) (Isle, bool) {
	if !m.isleAlive(id) {
		return Isle{}, false
	}
	i := m.isles[id]
	i.Lines = append([]DirLine(nil), i.Lines...)
	return i, true
}

// Geometry returns the coordinates, z values (nil for 2D maps) and
// categories of line id.
func (m *Map) Geometry(id LineID) (orb.LineString, []float64, Cats, error) {
	if !m.lineAlive(id) {
		return nil, nil, nil, errors.Wrapf(ErrNotFound, "line %d", id)
	}
	return m.geom.read(m.lines[id].Offset)
}

// Primitive returns line id as an input primitive, e.g. to copy it elsewhere.
func (m *Map) Primitive(id LineID) (Primitive, error) {
	pts, z, cats, err := m.Geometry(id)
	if err != nil {
		return Primitive{}, err
	}
	return Primitive{Type: m.lines[id].Type, Points: pts, Z: z, Cats: cats}, nil
}

// Bound returns the bound of all live lines.
func (m *Map) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for id := 1; id < len(m.lines); id++ {
		if !m.lines[id].alive {
			continue
		}
		if first {
			b = m.lines[id].Bound
			first = false
			continue
		}
		b = b.Union(m.lines[id].Bound)
	}
	return b
}

// ZRange returns the z extent of all live vertices. It is (0, 0) for 2D maps.
func (m *Map) ZRange() (float64, float64) {
	if !m.opts.WithZ {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for id := 1; id < len(m.lines); id++ {
		if !m.lines[id].alive {
			continue
		}
		_, z, _, err := m.geom.read(m.lines[id].Offset)
		if err != nil {
			continue
		}
		for _, v := range z {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

func (m *Map) nodeAlive(id NodeID) bool {
	return id > 0 && int(id) < len(m.nodes) && m.nodes[id].alive
}

func (m *Map) lineAlive(id LineID) bool {
	return id > 0 && int(id) < len(m.lines) && m.lines[id].alive
}

func (m *Map) areaAlive(id AreaID) bool {
	return id > 0 && int(id) < len(m.areas) && m.areas[id].alive
}

func (m *Map) isleAlive(id IsleID) bool {
	return id > 0 && int(id) < len(m.isles) && m.isles[id].alive
}

func (m *Map) faceAlive(f FaceRef) bool {
	if a, ok := f.Area(); ok {
		return m.areaAlive(a)
	}
	if i, ok := f.Isle(); ok {
		return m.isleAlive(i)
	}
	return true
}

// points returns the coordinates of a live line.
func (m *Map) points(id LineID) orb.LineString {
	pts, _, _, err := m.geom.read(m.lines[id].Offset)
	if err != nil {
		return nil
	}
	return pts
}

// LineIDs returns the live line handles of the given type mask, ascending.
func (m *Map) LineIDs(mask LineType) []LineID {
	var out []LineID
	for id := 1; id < len(m.lines); id++ {
		if m.lines[id].alive && m.lines[id].Type&mask != 0 {
			out = append(out, LineID(id))
		}
	}
	return out
}

// AreaIDs returns the live area handles, ascending.
func (m *Map) AreaIDs() []AreaID {
	var out []AreaID
	for id := 1; id < len(m.areas); id++ {
		if m.areas[id].alive {
			out = append(out, AreaID(id))
		}
	}
	return out
}

// IsleIDs returns the live isle handles, ascending.
func (m *Map) IsleIDs() []IsleID {
	var out []IsleID
	for id := 1; id < len(m.isles); id++ {
		if m.isles[id].alive {
			out = append(out, IsleID(id))
		}
	}
	return out
}

// NodeIDs returns the live node handles, ascending.
func (m *Map) NodeIDs() []NodeID {
	var out []NodeID
	for id := 1; id < len(m.nodes); id++ {
		if m.nodes[id].alive {
			out = append(out, NodeID(id))
		}
	}
	return out
}
