package topology

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cheekybits/is"
	"github.com/kr/pretty"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/tingold/orb-topology/catindex"
)

// twoSquares builds two unit squares side by side with a centroid in each,
// two free points and a diagonal line through the left square, then deletes
// the diagonal: 10 nodes, 11 live lines of 12 slots, 2 areas.
func twoSquares(t *testing.T, opts *Options) *Map {
	m := New(opts)
	addSquare(t, m, 0, 0, 1)
	diag := mustAdd(t, m, TypeLine, ls(0, 0, 1, 1), Cat{2, 12})
	mustAdd(t, m, TypeBoundary, ls(1, 1, 2, 1))
	mustAdd(t, m, TypeBoundary, ls(2, 1, 2, 0))
	mustAdd(t, m, TypeBoundary, ls(2, 0, 1, 0))
	mustAdd(t, m, TypeCentroid, ls(0.5, 0.5), Cat{1, 1})
	mustAdd(t, m, TypeCentroid, ls(1.5, 0.5), Cat{1, 2}, Cat{2, 20})
	mustAdd(t, m, TypePoint, ls(5, 5), Cat{2, 10})
	mustAdd(t, m, TypePoint, ls(6, 6), Cat{2, 11})
	mustBuild(t, m)
	if err := m.DeleteLine(diag); err != nil {
		t.Fatalf("DeleteLine failed: %v", err)
	}
	return m
}

type lineSnap struct {
	Type        LineType
	N1, N2      NodeID
	Left, Right FaceRef
	Bound       orb.Bound
	Points      orb.LineString
	Z           []float64
	Cats        Cats
}

type snapshot struct {
	Nodes map[NodeID]Node
	Lines map[LineID]lineSnap
	Areas map[AreaID]Area
	Isles map[IsleID]Isle
	Cats  map[int][]catindex.Entry
}

func snap(t *testing.T, m *Map) snapshot {
	s := snapshot{
		Nodes: map[NodeID]Node{},
		Lines: map[LineID]lineSnap{},
		Areas: map[AreaID]Area{},
		Isles: map[IsleID]Isle{},
		Cats:  map[int][]catindex.Entry{},
	}
	for _, id := range m.NodeIDs() {
		s.Nodes[id], _ = m.Node(id)
	}
	for _, id := range m.LineIDs(TypeAny) {
		l, _ := m.Line(id)
		pts, z, cats, err := m.Geometry(id)
		if err != nil {
			t.Fatalf("Geometry(%d) failed: %v", id, err)
		}
		s.Lines[id] = lineSnap{l.Type, l.N1, l.N2, l.Left, l.Right, l.Bound, pts, z, cats}
	}
	for _, id := range m.AreaIDs() {
		s.Areas[id], _ = m.Area(id)
	}
	for _, id := range m.IsleIDs() {
		s.Isles[id], _ = m.Isle(id)
	}
	for _, layer := range m.Layers() {
		s.Cats[layer] = m.cidx.Layer(layer)
	}
	return s
}

func roundTrip(t *testing.T, m *Map, enc func(*Encoder)) *Map {
	t.Helper()
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	if enc != nil {
		enc(e)
	}
	if err := e.Encode(m); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Load(&buf, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return got
}

func assertSame(t *testing.T, want, got *Map) {
	t.Helper()
	if diff := pretty.Diff(snap(t, want), snap(t, got)); len(diff) > 0 {
		t.Errorf("maps differ:\n%s", strings.Join(diff, "\n"))
	}
}

func TestSaveLoadTombstones(t *testing.T) {
	is := is.New(t)
	m := twoSquares(t, nil)
	is.Equal(m.NumNodes(), 10)
	is.Equal(m.NumLines(), 11)
	is.Equal(m.NumAreas(), 2)

	got := roundTrip(t, m, nil)
	is.Equal(got.NumNodes(), 10)
	is.Equal(got.NumLines(), 11)
	is.Equal(got.NumAreas(), 2)
	is.Equal(got.NumIsles(), 1)
	is.Equal(got.LineSlots(), 12)
	is.Equal(got.ID(), m.ID())
	is.Equal(got.GarbageBytes(), 0)
	assertSame(t, m, got)
	is.Equal(len(got.Validate()), 0)

	const dead = LineID(5)
	_, ok := got.Line(dead)
	is.False(ok)
	for _, id := range got.NodeIDs() {
		n, _ := got.Node(id)
		for _, nl := range n.Lines {
			is.NotEqual(nl.Line.ID, dead)
		}
	}
	for _, id := range got.AreaIDs() {
		a, _ := got.Area(id)
		for _, d := range a.Lines {
			is.NotEqual(d.ID, dead)
		}
		is.NotEqual(a.Centroid, dead)
	}
	for _, id := range got.IsleIDs() {
		i, _ := got.Isle(id)
		for _, d := range i.Lines {
			is.NotEqual(d.ID, dead)
		}
	}
	is.Equal(len(got.LookupCat(2, 12)), 0)

	// the loaded map keeps working
	is.Equal(got.SelectLines(orb.Bound{Min: orb.Point{4, 4}, Max: orb.Point{7, 7}}, TypePoint), []LineID{11, 12})
	aid, ok := got.FindArea(orb.Point{1.5, 0.2})
	is.True(ok)
	is.Equal(got.LookupAreas(1, 2), []AreaID{aid})
}

func TestBuildAfterLoad(t *testing.T) {
	is := is.New(t)
	m := twoSquares(t, nil)
	got := roundTrip(t, m, nil)

	got.ClearAreas()
	stats, err := got.Build(context.Background())
	is.NoErr(err)
	is.Equal(len(stats.Failures), 0)
	is.Equal(got.NumAreas(), 2)
	is.Equal(got.NumIsles(), 1)
	is.Equal(len(got.Validate()), 0)

	// boundaries added to a loaded map find their place in the node lists
	_, err = got.AddLine(TypeBoundary, ls(0, 0, 0.2, 0.8, 1, 1), nil, nil)
	is.NoErr(err)
	stats, err = got.Build(context.Background())
	is.NoErr(err)
	is.Equal(len(stats.Failures), 0)
	is.Equal(got.NumAreas(), 3)
	is.Equal(len(got.Validate()), 0)
}

func TestSaveLoadOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      *Options
		bigEndian bool
	}{
		{"little endian", nil, false},
		{"big endian", nil, true},
		{"3d", &Options{WithZ: true}, false},
		{"3d big endian", &Options{WithZ: true, Tolerance: 0.5}, true},
		{"geodesic", &Options{Geodesic: true, Tolerance: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twoSquares(t, tt.opts)
			got := roundTrip(t, m, func(e *Encoder) { e.BigEndian = tt.bigEndian })
			assertSame(t, m, got)
			if got.Options().WithZ != m.Options().WithZ ||
				got.Options().Geodesic != m.Options().Geodesic ||
				got.Options().Tolerance != m.Options().Tolerance {
				t.Errorf("options not restored: %+v", got.Options())
			}
		})
	}
}

func TestReadLineAt(t *testing.T) {
	is := is.New(t)
	m := twoSquares(t, &Options{WithZ: true})
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.BigEndian = true
	is.NoErr(e.Encode(m))
	data := buf.Bytes()

	got, err := Load(bytes.NewReader(data), nil)
	is.NoErr(err)
	h, err := ReadHeaderAt(bytes.NewReader(data))
	is.NoErr(err)
	is.True(h.BigEndian)
	is.True(h.WithZ)
	is.Equal(h.Lines, uint32(12))
	is.Equal(h.Nodes, uint32(10))

	for _, id := range got.LineIDs(TypeAny) {
		l, _ := got.Line(id)
		pts, z, cats, err := ReadLineAt(bytes.NewReader(data), h, l.Offset)
		is.NoErr(err)
		wp, wz, wc, _ := m.Geometry(id)
		is.Equal(pts, wp)
		is.Equal(z, wz)
		is.True(reflect.DeepEqual(cats, wc)) // is.Equal panics comparing two nil Cats slices
	}

	_, _, _, err = ReadLineAt(bytes.NewReader(data), h, len(data))
	is.True(errors.Is(err, ErrNotFound))
}

func withFormatVersion(v Version) func() {
	old := formatVersion
	formatVersion = v
	return func() { formatVersion = old }
}

func TestLoadNewerVersion(t *testing.T) {
	is := is.New(t)
	defer withFormatVersion(Version{1, 3})()
	m := twoSquares(t, nil)

	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.headerPad = 24
	e.unknown = []byte("a section from the future")
	is.NoErr(e.Encode(m))

	var logs bytes.Buffer
	got, err := Load(&buf, &Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	is.NoErr(err)
	assertSame(t, m, got)
	is.True(strings.Contains(logs.String(), "newer than reader"))
}

func TestLoadVersionMismatch(t *testing.T) {
	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"min reader 1.2", func(b []byte) { b[6], b[7] = 1, 2 }},
		{"major 2", func(b []byte) { b[4], b[5], b[6], b[7] = 2, 0, 2, 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Save(&buf, twoSquares(t, nil)); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			b := buf.Bytes()
			tt.patch(b)
			m, err := Load(bytes.NewReader(b), nil)
			if !errors.Is(err, ErrVersion) {
				t.Fatalf("expected ErrVersion, got %v", err)
			}
			if m != nil {
				t.Error("expected no map")
			}
		})
	}
}

func TestLoadNewerMajorVersion(t *testing.T) {
	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"2.0 readable by 1.0", func(b []byte) { b[4], b[5], b[6], b[7] = 2, 0, 1, 0 }},
		{"3.4 readable by 1.1", func(b []byte) { b[4], b[5], b[6], b[7] = 3, 4, 1, 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twoSquares(t, nil)
			var buf bytes.Buffer
			if err := Save(&buf, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			b := buf.Bytes()
			tt.patch(b)

			var logs bytes.Buffer
			got, err := Load(bytes.NewReader(b), &Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			assertSame(t, m, got)
			if !strings.Contains(logs.String(), "newer than reader") {
				t.Errorf("expected a version warning, got %q", logs.String())
			}
		})
	}
}

func TestLoadVersion10(t *testing.T) {
	is := is.New(t)
	defer withFormatVersion(Version{1, 0})()
	m := New(&Options{WithZ: true})
	_, err := m.AddLine(TypeLine, ls(0, 0, 1, 0), []float64{3, 4}, nil)
	is.NoErr(err)
	_, err = m.AddLine(TypePoint, ls(5, 5), []float64{9}, nil)
	is.NoErr(err)

	var buf bytes.Buffer
	is.NoErr(Save(&buf, m))
	is.Equal(buf.Bytes()[4], byte(1))
	is.Equal(buf.Bytes()[5], byte(0))

	got, err := Load(&buf, nil)
	is.NoErr(err)
	assertSame(t, m, got)
}

func TestLoadCorrupt(t *testing.T) {
	var buf bytes.Buffer
	if err := Save(&buf, twoSquares(t, nil)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	good := buf.Bytes()
	h, err := ReadHeaderAt(bytes.NewReader(good))
	if err != nil {
		t.Fatalf("ReadHeaderAt failed: %v", err)
	}

	tests := []struct {
		name  string
		patch func(b []byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad byte order", func(b []byte) []byte { b[8] = 7; return b }},
		{"short header", func(b []byte) []byte { return b[:100] }},
		{"header only", func(b []byte) []byte { return b[:headerSize] }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-3] }},
		{"line node out of range", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[h.LineOffset+1:], 999)
			return b
		}},
		{"bad line type", func(b []byte) []byte { b[h.LineOffset] = 3; return b }},
		{"huge node count", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[88:], 1<<30)
			return b
		}},
		{"sections out of order", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[108:], h.GeomOffset+1)
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.patch(append([]byte(nil), good...))
			m, err := Load(bytes.NewReader(b), nil)
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
			if m != nil {
				t.Error("expected no map")
			}
		})
	}
}

func TestLoadWithoutCategorySection(t *testing.T) {
	m := twoSquares(t, nil)
	var buf bytes.Buffer
	if err := Save(&buf, m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	b := buf.Bytes()
	binary.LittleEndian.PutUint64(b[140:], 0)

	got, err := Load(bytes.NewReader(b), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSame(t, m, got)
}

func TestDecoderStream(t *testing.T) {
	is := is.New(t)
	a := twoSquares(t, nil)
	b := New(nil)
	addSquare(t, b, 0, 0, 3)
	mustBuild(t, b)

	var buf bytes.Buffer
	is.NoErr(Save(&buf, a))
	is.NoErr(Save(&buf, b))

	d := NewDecoder(&buf, nil)
	h, err := d.ReadHeader()
	is.NoErr(err)
	is.Equal(h.ID, a.ID())
	_, err = d.ReadHeader()
	is.True(errors.Is(err, ErrDecoderState))

	got, err := d.Decode()
	is.NoErr(err)
	assertSame(t, a, got)
	got, err = d.Decode()
	is.NoErr(err)
	assertSame(t, b, got)

	_, err = d.Decode()
	is.True(errors.Is(err, ErrFormat))
}

func TestDecoderUnusableAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	if err := Save(&buf, twoSquares(t, nil)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	d := NewDecoder(bytes.NewReader(buf.Bytes()[:buf.Len()-10]), nil)
	if _, err := d.Decode(); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if _, err := d.Decode(); !errors.Is(err, ErrDecoderState) {
		t.Fatalf("expected ErrDecoderState, got %v", err)
	}
}

func TestSaveLoadFile(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "map.vtop")
	m := twoSquares(t, nil)

	is.NoErr(SaveFile(path, m))
	is.NoErr(SaveFile(path, m))
	got, err := LoadFile(path, nil)
	is.NoErr(err)
	assertSame(t, m, got)

	matches, err := filepath.Glob(path + ".*")
	is.NoErr(err)
	is.Equal(len(matches), 0)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.vtop"), nil)
	is.Err(err)
}
