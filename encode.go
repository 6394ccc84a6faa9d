package topology

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Encoder writes maps in the topology file format.
type Encoder struct {
	w io.Writer

	// BigEndian selects big-endian output; readers accept either order.
	BigEndian bool

	// extra header bytes and an unrecognised section, for forward
	// compatibility tests
	headerPad int
	unknown   []byte
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes m. Dead slots are written as tombstones so that handles
// survive a save and load; dead geometry is not written.
func (e *Encoder) Encode(m *Map) error {
	h := &Header{
		Version:   formatVersion,
		MinReader: minReaderFor(m.opts.WithZ),
		BigEndian: e.BigEndian,
		WithZ:     m.opts.WithZ,
		Geodesic:  m.opts.Geodesic,
		ID:        m.id,
		Tolerance: m.opts.Tolerance,
		Bound:     m.Bound(),
		Nodes:     uint32(len(m.nodes) - 1),
		Lines:     uint32(len(m.lines) - 1),
		Areas:     uint32(len(m.areas) - 1),
		Isles:     uint32(len(m.isles) - 1),
	}
	h.MinZ, h.MaxZ = m.ZRange()
	lay, ok := layoutFor(formatVersion, h.MinReader)
	if !ok {
		return errors.Wrapf(ErrVersion, "cannot write %s", formatVersion)
	}
	o := h.appendOrder()

	// geometry first: line records need the file offsets
	var geom []byte
	offsets := make([]uint64, len(m.lines))
	for id := 1; id < len(m.lines); id++ {
		if !m.lines[id].alive {
			continue
		}
		pts, z, cats, err := m.geom.read(m.lines[id].Offset)
		if err != nil {
			return errors.Wrapf(err, "line %d", id)
		}
		offsets[id] = uint64(len(geom))
		geom = appendGeometry(geom, o, m.opts.WithZ, pts, z, cats)
	}

	nodes := e.nodes(m, o, lay)
	lines := e.lines(m, o, offsets)
	areas := e.areas(m, o)
	isles := e.isles(m, o)
	cats, n := e.cats(m, o)
	h.CatEntries = n

	pos := uint64(headerSize + e.headerPad)
	place := func(b []byte) uint64 {
		off := pos
		pos += uint64(len(b))
		return off
	}
	h.NodeOffset = place(nodes)
	h.LineOffset = place(lines)
	h.AreaOffset = place(areas)
	h.IsleOffset = place(isles)
	place(e.unknown)
	h.CatOffset = place(cats)
	h.GeomOffset = place(geom)
	h.BodySize = pos - uint64(headerSize+e.headerPad)

	for _, b := range [][]byte{h.marshal(e.headerPad), nodes, lines, areas, isles, e.unknown, cats, geom} {
		if _, err := e.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func appendF64(b []byte, o binary.AppendByteOrder, fs ...float64) []byte {
	for _, f := range fs {
		b = o.AppendUint64(b, math.Float64bits(f))
	}
	return b
}

func appendI32(b []byte, o binary.AppendByteOrder, v int) []byte {
	return o.AppendUint32(b, uint32(int32(v)))
}

func appendRing(b []byte, o binary.AppendByteOrder, ring []DirLine) []byte {
	b = o.AppendUint32(b, uint32(len(ring)))
	for _, d := range ring {
		b = appendI32(b, o, d.Signed())
	}
	return b
}

func (e *Encoder) nodes(m *Map, o binary.AppendByteOrder, lay layout) []byte {
	var b []byte
	for id := 1; id < len(m.nodes); id++ {
		n := m.nodes[id]
		if !n.alive {
			b = o.AppendUint32(b, 0)
			continue
		}
		b = o.AppendUint32(b, uint32(len(n.Lines)))
		b = appendF64(b, o, n.Point[0], n.Point[1])
		if m.opts.WithZ && lay.nodeZ {
			b = appendF64(b, o, n.Z)
		}
		for _, nl := range n.Lines {
			b = appendI32(b, o, nl.Line.Signed())
			b = appendF64(b, o, nl.Angle)
		}
	}
	return b
}

func (e *Encoder) lines(m *Map, o binary.AppendByteOrder, offsets []uint64) []byte {
	var b []byte
	for id := 1; id < len(m.lines); id++ {
		l := m.lines[id]
		if !l.alive {
			b = append(b, 0)
			continue
		}
		b = append(b, byte(l.Type))
		b = appendI32(b, o, int(l.N1))
		b = appendI32(b, o, int(l.N2))
		b = appendI32(b, o, int(l.Left))
		b = appendI32(b, o, int(l.Right))
		b = appendF64(b, o, l.Bound.Min[0], l.Bound.Min[1], l.Bound.Max[0], l.Bound.Max[1])
		b = o.AppendUint64(b, offsets[id])
	}
	return b
}

func (e *Encoder) areas(m *Map, o binary.AppendByteOrder) []byte {
	var b []byte
	for id := 1; id < len(m.areas); id++ {
		a := m.areas[id]
		if !a.alive {
			b = o.AppendUint32(b, 0)
			continue
		}
		b = appendRing(b, o, a.Lines)
		b = o.AppendUint32(b, uint32(len(a.Isles)))
		for _, i := range a.Isles {
			b = appendI32(b, o, int(i))
		}
		b = appendI32(b, o, int(a.Centroid))
		b = appendF64(b, o, a.Bound.Min[0], a.Bound.Min[1], a.Bound.Max[0], a.Bound.Max[1])
	}
	return b
}

func (e *Encoder) isles(m *Map, o binary.AppendByteOrder) []byte {
	var b []byte
	for id := 1; id < len(m.isles); id++ {
		i := m.isles[id]
		if !i.alive {
			b = o.AppendUint32(b, 0)
			continue
		}
		b = appendRing(b, o, i.Lines)
		b = appendI32(b, o, int(i.Area))
		b = appendF64(b, o, i.Bound.Min[0], i.Bound.Min[1], i.Bound.Max[0], i.Bound.Max[1])
	}
	return b
}

func (e *Encoder) cats(m *Map, o binary.AppendByteOrder) ([]byte, uint32) {
	layers := m.cidx.Layers()
	b := o.AppendUint32(nil, uint32(len(layers)))
	var n uint32
	for _, layer := range layers {
		entries := m.cidx.Layer(layer)
		b = appendI32(b, o, layer)
		b = o.AppendUint32(b, uint32(len(entries)))
		for _, en := range entries {
			b = appendI32(b, o, en.Cat)
			b = append(b, byte(en.Type))
			b = appendI32(b, o, en.ID)
		}
		n += uint32(len(entries))
	}
	return b, n
}

// Save writes m to w in little-endian order.
func Save(w io.Writer, m *Map) error {
	return NewEncoder(w).Encode(m)
}

// SaveFile writes m to path. The file is written next to path and renamed
// into place, so a failed save leaves any previous file intact.
func SaveFile(path string, m *Map) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := Save(f, m); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "save %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
