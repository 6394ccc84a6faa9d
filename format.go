package topology

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// File layout. All multi-byte values after the byte-order byte are in the
// file's byte order; section offsets are absolute.
//
//	0   magic "VTOP"
//	4   version major, minor; minimum reader major, minor (1 byte each)
//	8   byte order (0 little, 1 big), flags, 2 reserved bytes
//	12  header size (4 bytes)
//	16  map UUID (16 bytes)
//	32  node tolerance (8)
//	40  bound: min x, y, z, max x, y, z (6 x 8)
//	88  slot counts: nodes, lines, areas, isles; category entries (5 x 4)
//	108 section offsets: nodes, lines, areas, isles, categories, geometry (6 x 8)
//	156 body size (8)
//	164 end of the 1.x header; a larger header size is skipped
const (
	magic      = "VTOP"
	headerSize = 164
	prefixSize = 16
)

const (
	flagWithZ    = 1 << 0
	flagGeodesic = 1 << 1
)

// Version is a format version.
type Version struct {
	Major, Minor uint8
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Less orders versions.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// ReaderVersion is the newest format this package reads.
var ReaderVersion = Version{1, 1}

// formatVersion is the version the encoder stamps on files.
var formatVersion = Version{1, 1}

// layout describes the record shapes of one format version.
type layout struct {
	// nodeZ: node records of 3D maps carry z
	nodeZ bool
}

var layouts = map[Version]layout{
	{1, 0}: {nodeZ: false},
	{1, 1}: {nodeZ: true},
}

// layoutFor returns the record layout for reading a file of version v that
// readers from minReader on understand. An unknown version is read with the
// newest known layout between minReader and v, whatever its major version.
func layoutFor(v, minReader Version) (layout, bool) {
	if l, ok := layouts[v]; ok {
		return l, true
	}
	best, found := Version{}, false
	for k := range layouts {
		if v.Less(k) || k.Less(minReader) {
			continue
		}
		if !found || best.Less(k) {
			best, found = k, true
		}
	}
	return layouts[best], found
}

// minReaderFor returns the oldest version able to read a map of this shape.
func minReaderFor(withZ bool) Version {
	if withZ {
		return Version{1, 1}
	}
	return Version{1, 0}
}

// Header is the fixed-size preamble of a topology file.
type Header struct {
	Version   Version
	MinReader Version
	BigEndian bool
	WithZ     bool
	Geodesic  bool
	Size      uint32 // header size in bytes
	ID        uuid.UUID
	Tolerance float64
	Bound     orb.Bound
	MinZ      float64
	MaxZ      float64

	// slot counts: dead slots included
	Nodes, Lines, Areas, Isles uint32
	CatEntries                 uint32

	NodeOffset, LineOffset, AreaOffset, IsleOffset uint64
	CatOffset, GeomOffset                          uint64
	BodySize                                       uint64
}

func (h *Header) order() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (h *Header) appendOrder() binary.AppendByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// marshal encodes the header; pad extra zero bytes are appended and
// accounted for in Size.
func (h *Header) marshal(pad int) []byte {
	o := h.appendOrder()
	b := make([]byte, 0, headerSize+pad)
	b = append(b, magic...)
	b = append(b, h.Version.Major, h.Version.Minor, h.MinReader.Major, h.MinReader.Minor)
	var bo, flags byte
	if h.BigEndian {
		bo = 1
	}
	if h.WithZ {
		flags |= flagWithZ
	}
	if h.Geodesic {
		flags |= flagGeodesic
	}
	b = append(b, bo, flags, 0, 0)
	b = o.AppendUint32(b, uint32(headerSize+pad))
	b = append(b, h.ID[:]...)
	for _, f := range []float64{h.Tolerance,
		h.Bound.Min[0], h.Bound.Min[1], h.MinZ, h.Bound.Max[0], h.Bound.Max[1], h.MaxZ} {
		b = o.AppendUint64(b, math.Float64bits(f))
	}
	for _, n := range []uint32{h.Nodes, h.Lines, h.Areas, h.Isles, h.CatEntries} {
		b = o.AppendUint32(b, n)
	}
	for _, off := range []uint64{h.NodeOffset, h.LineOffset, h.AreaOffset, h.IsleOffset,
		h.CatOffset, h.GeomOffset, h.BodySize} {
		b = o.AppendUint64(b, off)
	}
	return append(b, make([]byte, pad)...)
}

// readHeader decodes a header from r, consuming exactly its declared size.
func readHeader(r io.Reader) (*Header, error) {
	var pre [prefixSize]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, errors.Wrap(ErrFormat, "short header")
	}
	if string(pre[:4]) != magic {
		return nil, errors.Wrap(ErrFormat, "bad magic")
	}
	h := &Header{
		Version:   Version{pre[4], pre[5]},
		MinReader: Version{pre[6], pre[7]},
	}
	switch pre[8] {
	case 0:
	case 1:
		h.BigEndian = true
	default:
		return nil, errors.Wrapf(ErrFormat, "byte order %d", pre[8])
	}
	h.WithZ = pre[9]&flagWithZ != 0
	h.Geodesic = pre[9]&flagGeodesic != 0
	o := h.order()
	h.Size = o.Uint32(pre[12:])
	if h.Size < headerSize || h.Size > 1<<20 {
		return nil, errors.Wrapf(ErrFormat, "header size %d", h.Size)
	}

	rest := make([]byte, h.Size-prefixSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, errors.Wrap(ErrFormat, "short header")
	}
	copy(h.ID[:], rest[0:16])
	f := func(i int) float64 { return math.Float64frombits(o.Uint64(rest[16+8*i:])) }
	h.Tolerance = f(0)
	h.Bound = orb.Bound{Min: orb.Point{f(1), f(2)}, Max: orb.Point{f(4), f(5)}}
	h.MinZ, h.MaxZ = f(3), f(6)
	c := func(i int) uint32 { return o.Uint32(rest[72+4*i:]) }
	h.Nodes, h.Lines, h.Areas, h.Isles, h.CatEntries = c(0), c(1), c(2), c(3), c(4)
	u := func(i int) uint64 { return o.Uint64(rest[92+8*i:]) }
	h.NodeOffset, h.LineOffset, h.AreaOffset, h.IsleOffset = u(0), u(1), u(2), u(3)
	h.CatOffset, h.GeomOffset, h.BodySize = u(4), u(5), u(6)
	return h, nil
}

// check validates the header against this reader.
func (h *Header) check() (layout, error) {
	if ReaderVersion.Less(h.MinReader) {
		return layout{}, errors.Wrapf(ErrVersion, "file %s needs reader %s, have %s", h.Version, h.MinReader, ReaderVersion)
	}
	l, ok := layoutFor(h.Version, h.MinReader)
	if !ok {
		return layout{}, errors.Wrapf(ErrVersion, "file %s", h.Version)
	}
	for _, n := range []uint32{h.Nodes, h.Lines, h.Areas, h.Isles, h.CatEntries} {
		if n > maxRecordItems {
			return layout{}, errors.Wrapf(ErrFormat, "count %d", n)
		}
	}
	offs := []uint64{h.NodeOffset, h.LineOffset, h.AreaOffset, h.IsleOffset, h.CatOffset, h.GeomOffset}
	end := uint64(h.Size) + h.BodySize
	prev := uint64(h.Size)
	for _, off := range offs {
		if off == 0 {
			continue
		}
		if off < prev || off > end {
			return layout{}, errors.Wrapf(ErrFormat, "section offset %d", off)
		}
		prev = off
	}
	if h.NodeOffset == 0 || h.LineOffset == 0 || h.AreaOffset == 0 || h.IsleOffset == 0 || h.GeomOffset == 0 {
		return layout{}, errors.Wrap(ErrFormat, "missing section")
	}
	return l, nil
}

// ReadHeaderAt reads the header at the start of ra, e.g. before ReadLineAt.
func ReadHeaderAt(ra io.ReaderAt) (*Header, error) {
	h, err := readHeader(io.NewSectionReader(ra, 0, math.MaxInt64))
	if err != nil {
		return nil, err
	}
	if _, err := h.check(); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadLineAt reads the geometry of one line straight from a topology file,
// without loading the map. offset is the line's Offset as recorded in the
// file, which equals Line.Offset of a freshly loaded map.
func ReadLineAt(ra io.ReaderAt, h *Header, offset int) (orb.LineString, []float64, Cats, error) {
	if offset < 0 || uint64(offset) >= uint64(h.Size)+h.BodySize-h.GeomOffset {
		return nil, nil, nil, errors.Wrapf(ErrNotFound, "geometry offset %d", offset)
	}
	start := int64(h.GeomOffset) + int64(offset)
	return readGeometry(io.NewSectionReader(ra, start, math.MaxInt64-start), h.order(), h.WithZ)
}
