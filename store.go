package topology

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// maxRecordItems caps counts read from untrusted input before allocation.
const maxRecordItems = 1 << 28

// geomStore is the append-only buffer of line coordinates and categories.
// A record is:
//
//	[4-byte cat count] ([4-byte layer][4-byte value])...
//	[4-byte point count] ([8-byte x][8-byte y][8-byte z if 3D])...
//
// In memory the store is little-endian; the file's geometry section uses
// the same layout in the file's byte order.
type geomStore struct {
	buf   []byte
	withZ bool
	dead  int // bytes owned by deleted lines
}

func (s *geomStore) append(pts orb.LineString, z []float64, cats Cats) int {
	off := len(s.buf)
	s.buf = appendGeometry(s.buf, binary.LittleEndian, s.withZ, pts, z, cats)
	return off
}

func (s *geomStore) read(off int) (orb.LineString, []float64, Cats, error) {
	if off < 0 || off >= len(s.buf) {
		return nil, nil, nil, errors.Wrapf(ErrCorrupt, "geometry offset %d out of range", off)
	}
	pts, z, cats, _, err := decodeGeometry(s.buf[off:], binary.LittleEndian, s.withZ)
	return pts, z, cats, err
}

// size returns the encoded size of the record at off.
func (s *geomStore) size(off int) int {
	_, _, _, n, err := decodeGeometry(s.buf[off:], binary.LittleEndian, s.withZ)
	if err != nil {
		return 0
	}
	return n
}

func appendGeometry(buf []byte, order binary.AppendByteOrder, withZ bool, pts orb.LineString, z []float64, cats Cats) []byte {
	buf = order.AppendUint32(buf, uint32(len(cats)))
	for _, c := range cats {
		buf = order.AppendUint32(buf, uint32(int32(c.Layer)))
		buf = order.AppendUint32(buf, uint32(int32(c.Value)))
	}
	buf = order.AppendUint32(buf, uint32(len(pts)))
	for i, p := range pts {
		buf = order.AppendUint64(buf, math.Float64bits(p[0]))
		buf = order.AppendUint64(buf, math.Float64bits(p[1]))
		if withZ {
			buf = order.AppendUint64(buf, math.Float64bits(zAt(z, i)))
		}
	}
	return buf
}

// decodeGeometry decodes one record from the head of buf and returns the
// number of bytes it occupies.
func decodeGeometry(buf []byte, order binary.ByteOrder, withZ bool) (orb.LineString, []float64, Cats, int, error) {
	pos := 0
	need := func(n int) error {
		if n < 0 || pos+n > len(buf) {
			return errors.Wrap(ErrFormat, "truncated geometry record")
		}
		return nil
	}

	if err := need(4); err != nil {
		return nil, nil, nil, 0, err
	}
	ncats := int(order.Uint32(buf[pos:]))
	pos += 4
	if ncats > maxRecordItems {
		return nil, nil, nil, 0, errors.Wrapf(ErrFormat, "category count %d", ncats)
	}
	if err := need(8 * ncats); err != nil {
		return nil, nil, nil, 0, err
	}
	var cats Cats
	if ncats > 0 {
		cats = make(Cats, ncats)
		for i := range cats {
			cats[i].Layer = int(int32(order.Uint32(buf[pos:])))
			cats[i].Value = int(int32(order.Uint32(buf[pos+4:])))
			pos += 8
		}
	}

	if err := need(4); err != nil {
		return nil, nil, nil, 0, err
	}
	npts := int(order.Uint32(buf[pos:]))
	pos += 4
	stride := 16
	if withZ {
		stride = 24
	}
	if npts > maxRecordItems {
		return nil, nil, nil, 0, errors.Wrapf(ErrFormat, "point count %d", npts)
	}
	if err := need(stride * npts); err != nil {
		return nil, nil, nil, 0, err
	}
	pts := make(orb.LineString, npts)
	var z []float64
	if withZ {
		z = make([]float64, npts)
	}
	for i := range pts {
		pts[i][0] = math.Float64frombits(order.Uint64(buf[pos:]))
		pts[i][1] = math.Float64frombits(order.Uint64(buf[pos+8:]))
		if withZ {
			z[i] = math.Float64frombits(order.Uint64(buf[pos+16:]))
		}
		pos += stride
	}
	return pts, z, cats, pos, nil
}

// readGeometry reads one record from r.
func readGeometry(r io.Reader, order binary.ByteOrder, withZ bool) (orb.LineString, []float64, Cats, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, nil, nil, errors.Wrap(ErrFormat, err.Error())
	}
	ncats := int(order.Uint32(head[:]))
	if ncats > maxRecordItems {
		return nil, nil, nil, errors.Wrapf(ErrFormat, "category count %d", ncats)
	}
	rec := make([]byte, 4+8*ncats+4)
	copy(rec, head[:])
	if _, err := io.ReadFull(r, rec[4:]); err != nil {
		return nil, nil, nil, errors.Wrap(ErrFormat, err.Error())
	}
	npts := int(order.Uint32(rec[len(rec)-4:]))
	if npts > maxRecordItems {
		return nil, nil, nil, errors.Wrapf(ErrFormat, "point count %d", npts)
	}
	stride := 16
	if withZ {
		stride = 24
	}
	body := make([]byte, stride*npts)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, nil, errors.Wrap(ErrFormat, err.Error())
	}
	pts, z, cats, _, err := decodeGeometry(append(rec, body...), order, withZ)
	return pts, z, cats, err
}

func zAt(z []float64, i int) float64 {
	if i < len(z) {
		return z[i]
	}
	return 0
}
