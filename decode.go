package topology

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/tingold/orb-topology/catindex"
	"github.com/tingold/orb-topology/spatial"
)

type decoderState int

const (
	stateClosed decoderState = iota
	stateHeaderRead
	stateBodyStreaming
)

func (s decoderState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateHeaderRead:
		return "header read"
	case stateBodyStreaming:
		return "body streaming"
	}
	return "unknown"
}

// Decoder reads maps written by Encoder. Several maps may follow each other
// in one stream. A decoder that failed part way through a body is unusable.
type Decoder struct {
	r     *bufio.Reader
	opts  Options
	state decoderState

	header *Header
	layout layout
	order  binary.ByteOrder
	pos    uint64 // bytes consumed since the start of the current map
	err    error
}

// NewDecoder returns a decoder reading from r. Only opts.Logger is used;
// everything else comes from the file.
func NewDecoder(r io.Reader, opts *Options) *Decoder {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Decoder{r: bufio.NewReader(r), opts: *opts}
}

// ReadHeader reads and checks the next header. A file whose minimum reader
// version is newer than ReaderVersion fails with ErrVersion; a newer file
// that this reader can still read is accepted with a warning.
func (d *Decoder) ReadHeader() (*Header, error) {
	if d.state != stateClosed {
		return nil, errors.Wrapf(ErrDecoderState, "read header in state %s", d.state)
	}
	h, err := readHeader(d.r)
	if err != nil {
		return nil, err
	}
	lay, err := h.check()
	if err != nil {
		return nil, err
	}
	if ReaderVersion.Less(h.Version) {
		d.opts.logger().Warn("file format newer than reader",
			"file", h.Version.String(), "reader", ReaderVersion.String())
	}
	d.header, d.layout, d.order = h, lay, h.order()
	d.pos = uint64(h.Size)
	d.state = stateHeaderRead
	return h, nil
}

// Decode reads the next map, reading its header first if ReadHeader was not
// called. On error no map is returned.
func (d *Decoder) Decode() (*Map, error) {
	if d.state == stateClosed {
		if _, err := d.ReadHeader(); err != nil {
			return nil, err
		}
	}
	if d.state != stateHeaderRead {
		return nil, errors.Wrapf(ErrDecoderState, "decode in state %s", d.state)
	}
	d.state = stateBodyStreaming
	m, err := d.body()
	if err != nil {
		return nil, err
	}
	d.state = stateClosed
	return m, nil
}

func (d *Decoder) body() (*Map, error) {
	h := d.header
	opts := d.opts
	opts.Tolerance, opts.Geodesic, opts.WithZ = h.Tolerance, h.Geodesic, h.WithZ
	m := New(&opts)
	m.id = h.ID

	m.nodes = make([]Node, h.Nodes+1)
	m.lines = make([]Line, h.Lines+1)
	m.areas = make([]Area, h.Areas+1)
	m.isles = make([]Isle, h.Isles+1)

	d.skipTo(h.NodeOffset)
	d.readNodes(m)
	d.skipTo(h.LineOffset)
	offsets := d.readLines(m)
	d.skipTo(h.AreaOffset)
	d.readAreas(m)
	d.skipTo(h.IsleOffset)
	d.readIsles(m)
	if h.CatOffset != 0 {
		d.skipTo(h.CatOffset)
		d.readCats(m)
	}
	d.skipTo(h.GeomOffset)
	d.readGeometry(m, offsets)
	d.skipTo(uint64(h.Size) + h.BodySize)
	if d.err != nil {
		return nil, d.err
	}
	if err := d.checkRefs(m); err != nil {
		return nil, err
	}
	m.restoreAngles()
	if h.CatOffset == 0 {
		m.reindexCats()
	}
	m.reindexSpatial()
	if h.WithZ && !d.layout.nodeZ {
		m.nodeZFromGeometry()
	}
	m.log.Debug("map loaded", "version", h.Version.String(),
		"nodes", m.nNodes, "lines", m.nLines, "areas", m.nAreas, "isles", m.nIsles)
	return m, nil
}

// Low-level readers. The first error sticks and later reads return zeros.

func (d *Decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = errors.Wrapf(ErrFormat, "truncated at byte %d", d.pos)
		return nil
	}
	d.pos += uint64(n)
	return b
}

func (d *Decoder) u8() uint8 {
	if b := d.read(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) u32() uint32 {
	if b := d.read(4); b != nil {
		return d.order.Uint32(b)
	}
	return 0
}

func (d *Decoder) i32() int { return int(int32(d.u32())) }

func (d *Decoder) u64() uint64 {
	if b := d.read(8); b != nil {
		return d.order.Uint64(b)
	}
	return 0
}

func (d *Decoder) f64() float64 { return math.Float64frombits(d.u64()) }

func (d *Decoder) count() int {
	n := d.u32()
	if n > maxRecordItems && d.err == nil {
		d.err = errors.Wrapf(ErrFormat, "count %d at byte %d", n, d.pos)
		return 0
	}
	return int(n)
}

func (d *Decoder) bound() orb.Bound {
	var b orb.Bound
	b.Min[0], b.Min[1], b.Max[0], b.Max[1] = d.f64(), d.f64(), d.f64(), d.f64()
	return b
}

func (d *Decoder) ring(n int) []DirLine {
	ring := make([]DirLine, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		ring = append(ring, DirLineFromSigned(d.i32()))
	}
	return ring
}

// skipTo discards input up to the absolute offset off, passing over
// sections this reader does not know.
func (d *Decoder) skipTo(off uint64) {
	if d.err != nil {
		return
	}
	if off < d.pos {
		d.err = errors.Wrapf(ErrFormat, "section at %d overlaps byte %d", off, d.pos)
		return
	}
	if off > d.pos {
		n, err := io.CopyN(io.Discard, d.r, int64(off-d.pos))
		d.pos += uint64(n)
		if err != nil {
			d.err = errors.Wrap(ErrFormat, "truncated body")
		}
	}
}

func (d *Decoder) readNodes(m *Map) {
	nodeZ := m.opts.WithZ && d.layout.nodeZ
	for id := 1; id < len(m.nodes) && d.err == nil; id++ {
		n := d.count()
		if n == 0 {
			continue
		}
		node := Node{alive: true}
		node.Point = orb.Point{d.f64(), d.f64()}
		if nodeZ {
			node.Z = d.f64()
		}
		node.Lines = make([]NodeLine, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			node.Lines = append(node.Lines, NodeLine{Line: DirLineFromSigned(d.i32()), Angle: d.f64()})
		}
		m.nodes[id] = node
		m.nNodes++
	}
}

func (d *Decoder) readLines(m *Map) []uint64 {
	offsets := make([]uint64, len(m.lines))
	for id := 1; id < len(m.lines) && d.err == nil; id++ {
		t := LineType(d.u8())
		if t == 0 {
			continue
		}
		if !t.valid() {
			d.err = errors.Wrapf(ErrFormat, "line %d: type %d", id, t)
			return nil
		}
		l := Line{Type: t, alive: true}
		l.N1, l.N2 = NodeID(d.i32()), NodeID(d.i32())
		l.Left, l.Right = FaceRef(d.i32()), FaceRef(d.i32())
		l.Bound = d.bound()
		offsets[id] = d.u64()
		m.lines[id] = l
		m.nLines++
	}
	return offsets
}

func (d *Decoder) readAreas(m *Map) {
	for id := 1; id < len(m.areas) && d.err == nil; id++ {
		n := d.count()
		if n == 0 {
			continue
		}
		a := Area{alive: true, Lines: d.ring(n)}
		ni := d.count()
		for i := 0; i < ni && d.err == nil; i++ {
			a.Isles = append(a.Isles, IsleID(d.i32()))
		}
		a.Centroid = LineID(d.i32())
		a.Bound = d.bound()
		m.areas[id] = a
		m.nAreas++
	}
}

func (d *Decoder) readIsles(m *Map) {
	for id := 1; id < len(m.isles) && d.err == nil; id++ {
		n := d.count()
		if n == 0 {
			continue
		}
		i := Isle{alive: true, Lines: d.ring(n)}
		i.Area = AreaID(d.i32())
		i.Bound = d.bound()
		m.isles[id] = i
		m.nIsles++
	}
}

func (d *Decoder) readCats(m *Map) {
	layers := d.count()
	for i := 0; i < layers && d.err == nil; i++ {
		layer := d.i32()
		n := d.count()
		entries := make([]catindex.Entry, 0, n)
		for j := 0; j < n && d.err == nil; j++ {
			e := catindex.Entry{Cat: d.i32()}
			e.Type = int(d.u8())
			e.ID = d.i32()
			entries = append(entries, e)
		}
		m.cidx.Load(layer, entries)
	}
}

// readGeometry re-encodes the geometry section into the map's store. Lines
// are stored in handle order, so every in-memory offset equals the file's.
func (d *Decoder) readGeometry(m *Map, offsets []uint64) {
	for id := 1; id < len(m.lines) && d.err == nil; id++ {
		if !m.lines[id].alive {
			continue
		}
		if offsets[id] != uint64(len(m.geom.buf)) {
			d.err = errors.Wrapf(ErrFormat, "line %d: geometry offset %d, expected %d", id, offsets[id], len(m.geom.buf))
			return
		}
		pts, z, cats, err := readGeometry(d.r, d.order, m.opts.WithZ)
		if err != nil {
			d.err = errors.Wrapf(err, "line %d", id)
			return
		}
		m.lines[id].Offset = m.geom.append(pts, z, cats)
		d.pos += uint64(len(m.geom.buf) - m.lines[id].Offset)
	}
}

// checkRefs rejects handles pointing outside the arenas, so that no later
// access can go out of range.
func (d *Decoder) checkRefs(m *Map) error {
	bad := func(what string, id, ref int) error {
		return errors.Wrapf(ErrFormat, "%s %d: reference %d out of range", what, id, ref)
	}
	lineOK := func(d DirLine) bool { return d.ID > 0 && int(d.ID) < len(m.lines) }
	faceOK := func(f FaceRef) bool {
		if a, ok := f.Area(); ok {
			return int(a) < len(m.areas)
		}
		if i, ok := f.Isle(); ok {
			return int(i) < len(m.isles)
		}
		return true
	}
	for id, n := range m.nodes {
		for _, nl := range n.Lines {
			if !lineOK(nl.Line) {
				return bad("node", id, int(nl.Line.ID))
			}
		}
	}
	for id, l := range m.lines {
		if !l.alive {
			continue
		}
		for _, n := range []NodeID{l.N1, l.N2} {
			if n <= 0 || int(n) >= len(m.nodes) {
				return bad("line", id, int(n))
			}
		}
		if !faceOK(l.Left) || !faceOK(l.Right) {
			return bad("line", id, int(l.Left))
		}
	}
	for id, a := range m.areas {
		for _, dl := range a.Lines {
			if !lineOK(dl) {
				return bad("area", id, int(dl.ID))
			}
		}
		for _, i := range a.Isles {
			if i <= 0 || int(i) >= len(m.isles) {
				return bad("area", id, int(i))
			}
		}
		if a.Centroid < 0 || int(a.Centroid) >= len(m.lines) {
			return bad("area", id, int(a.Centroid))
		}
	}
	for id, i := range m.isles {
		for _, dl := range i.Lines {
			if !lineOK(dl) {
				return bad("isle", id, int(dl.ID))
			}
		}
		if i.Area < 0 || int(i.Area) >= len(m.areas) {
			return bad("isle", id, int(i.Area))
		}
	}
	return nil
}

// restoreAngles copies the angle of every line end from its node list onto
// the line.
func (m *Map) restoreAngles() {
	for id := 1; id < len(m.nodes); id++ {
		for _, nl := range m.nodes[id].Lines {
			l := &m.lines[nl.Line.ID]
			switch {
			case l.Type&TypePoints != 0:
				l.angles = [2]float64{DegenerateAngle, DegenerateAngle}
			case nl.Line.Reversed:
				l.angles[1] = nl.Angle
			default:
				l.angles[0] = nl.Angle
			}
		}
	}
}

func (m *Map) reindexCats() {
	m.cidx.Reset()
	for id := 1; id < len(m.lines); id++ {
		l := m.lines[id]
		if !l.alive {
			continue
		}
		_, _, cats, err := m.geom.read(l.Offset)
		if err != nil {
			continue
		}
		for _, c := range cats {
			m.cidx.Add(c.Layer, c.Value, int(l.Type), id)
			if l.Type == TypeCentroid {
				if aid, ok := l.Left.Area(); ok && m.areaAlive(aid) && m.areas[aid].Centroid == LineID(id) {
					m.cidx.Add(c.Layer, c.Value, int(TypeArea), int(aid))
				}
			}
		}
	}
}

func (m *Map) reindexSpatial() {
	var items []spatial.Item
	for id := 1; id < len(m.nodes); id++ {
		if m.nodes[id].alive {
			items = append(items, spatial.Item{ID: id, Bound: m.nodes[id].Point.Bound()})
		}
	}
	m.spidx.Rebuild(spatial.Node, items)
	items = nil
	for id := 1; id < len(m.lines); id++ {
		if m.lines[id].alive {
			items = append(items, spatial.Item{ID: id, Bound: m.lines[id].Bound})
		}
	}
	m.spidx.Rebuild(spatial.Line, items)
	items = nil
	for id := 1; id < len(m.areas); id++ {
		if m.areas[id].alive {
			items = append(items, spatial.Item{ID: id, Bound: m.areas[id].Bound})
		}
	}
	m.spidx.Rebuild(spatial.Area, items)
	items = nil
	for id := 1; id < len(m.isles); id++ {
		if m.isles[id].alive {
			items = append(items, spatial.Item{ID: id, Bound: m.isles[id].Bound})
		}
	}
	m.spidx.Rebuild(spatial.Isle, items)
}

// nodeZFromGeometry fills node z from the first vertex of an incident line,
// for files whose node records carry no z.
func (m *Map) nodeZFromGeometry() {
	for id := 1; id < len(m.nodes); id++ {
		n := &m.nodes[id]
		if !n.alive || len(n.Lines) == 0 {
			continue
		}
		d := n.Lines[0].Line
		if !m.lineAlive(d.ID) {
			continue
		}
		_, z, _, err := m.geom.read(m.lines[d.ID].Offset)
		if err != nil || len(z) == 0 {
			continue
		}
		if d.Reversed {
			n.Z = z[len(z)-1]
		} else {
			n.Z = z[0]
		}
	}
}

// Load reads one map from r.
func Load(r io.Reader, opts *Options) (*Map, error) {
	return NewDecoder(r, opts).Decode()
}

// LoadFile reads the map stored at path.
func LoadFile(path string, opts *Options) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Load(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return m, nil
}
