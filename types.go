package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// LineType is the primitive type of a line. Types are single bits so they can
// be combined into masks.
type LineType uint8

// Primitive types.
const (
	TypePoint LineType = 1 << iota
	TypeLine
	TypeBoundary
	TypeCentroid
	TypeFace
	TypeKernel

	// TypeArea marks category-index entries that belong to areas (through
	// their centroid). It is never the type of a line.
	TypeArea
)

// Type masks.
const (
	TypePoints = TypePoint | TypeCentroid | TypeKernel
	TypeLines  = TypeLine | TypeBoundary | TypeFace
	TypeAny    = TypePoints | TypeLines
)

var typeNames = []struct {
	t    LineType
	name string
}{
	{TypePoint, "point"},
	{TypeLine, "line"},
	{TypeBoundary, "boundary"},
	{TypeCentroid, "centroid"},
	{TypeFace, "face"},
	{TypeKernel, "kernel"},
	{TypeArea, "area"},
}

func (t LineType) String() string {
	var parts []string
	for _, tn := range typeNames {
		if t&tn.t != 0 {
			parts = append(parts, tn.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("LineType(%d)", uint8(t))
	}
	return strings.Join(parts, "|")
}

// ParseLineType parses a single type name as produced by String.
func ParseLineType(s string) (LineType, error) {
	for _, tn := range typeNames {
		if tn.name == strings.ToLower(strings.TrimSpace(s)) && tn.t != TypeArea {
			return tn.t, nil
		}
	}
	return 0, fmt.Errorf("topology: unknown line type %q", s)
}

func (t LineType) valid() bool {
	return t != 0 && t&TypeAny == t && t&(t-1) == 0
}

// Element handles. Zero is "none"; live handles start at 1.
type (
	NodeID int
	LineID int
	AreaID int
	IsleID int
)

// DirLine is a line traversed in a given direction. Reversed means from the
// line's last vertex to its first.
type DirLine struct {
	ID       LineID
	Reversed bool
}

// Reverse returns the same line traversed the other way.
func (d DirLine) Reverse() DirLine {
	return DirLine{ID: d.ID, Reversed: !d.Reversed}
}

// Signed returns the legacy signed encoding: negative when reversed.
func (d DirLine) Signed() int {
	if d.Reversed {
		return -int(d.ID)
	}
	return int(d.ID)
}

// DirLineFromSigned is the inverse of Signed.
func DirLineFromSigned(v int) DirLine {
	if v < 0 {
		return DirLine{ID: LineID(-v), Reversed: true}
	}
	return DirLine{ID: LineID(v)}
}

func (d DirLine) String() string {
	return fmt.Sprintf("%d", d.Signed())
}

// Side selects the side of a line relative to its stored direction.
type Side int

// Sides of a line.
const (
	Left Side = iota + 1
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// FaceRef references what lies on one side of a line: a positive value is an
// area, a negative value an isle, zero nothing.
type FaceRef int

// AreaRef returns the reference to area id.
func AreaRef(id AreaID) FaceRef { return FaceRef(id) }

// IsleRef returns the reference to isle id.
func IsleRef(id IsleID) FaceRef { return FaceRef(-id) }

// Area returns the referenced area, if any.
func (f FaceRef) Area() (AreaID, bool) {
	if f > 0 {
		return AreaID(f), true
	}
	return 0, false
}

// Isle returns the referenced isle, if any.
func (f FaceRef) Isle() (IsleID, bool) {
	if f < 0 {
		return IsleID(-f), true
	}
	return 0, false
}

// Cat attaches an external key Value to an element in Layer.
type Cat struct {
	Layer int
	Value int
}

// Cats is the category set of a line. Pairs are unique and kept sorted.
type Cats []Cat

// NewCats builds a category set from pairs.
func NewCats(pairs ...Cat) Cats {
	var c Cats
	for _, p := range pairs {
		c.Add(p.Layer, p.Value)
	}
	return c
}

// Add inserts the pair unless already present.
func (c *Cats) Add(layer, value int) {
	cat := Cat{Layer: layer, Value: value}
	i := sort.Search(len(*c), func(i int) bool { return !catLess((*c)[i], cat) })
	if i < len(*c) && (*c)[i] == cat {
		return
	}
	*c = append(*c, Cat{})
	copy((*c)[i+1:], (*c)[i:])
	(*c)[i] = cat
}

// Del removes the pair and reports whether it was present.
func (c *Cats) Del(layer, value int) bool {
	for i, cat := range *c {
		if cat.Layer == layer && cat.Value == value {
			*c = append((*c)[:i], (*c)[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether the pair is in the set.
func (c Cats) Has(layer, value int) bool {
	for _, cat := range c {
		if cat.Layer == layer && cat.Value == value {
			return true
		}
	}
	return false
}

// Values returns the category values of layer.
func (c Cats) Values(layer int) []int {
	var out []int
	for _, cat := range c {
		if cat.Layer == layer {
			out = append(out, cat.Value)
		}
	}
	return out
}

// Clone returns an independent copy.
func (c Cats) Clone() Cats {
	if c == nil {
		return nil
	}
	out := make(Cats, len(c))
	copy(out, c)
	return out
}

func (c Cats) normalized() Cats {
	var out Cats
	for _, cat := range c {
		out.Add(cat.Layer, cat.Value)
	}
	return out
}

func catLess(a, b Cat) bool {
	if a.Layer != b.Layer {
		return a.Layer < b.Layer
	}
	return a.Value < b.Value
}

// DegenerateAngle is the incidence angle recorded for point primitives and
// for line ends that have no segment of non-zero length.
const DegenerateAngle = -9.0

// NodeLine is one line end at a node. Line.Reversed is false when the line
// starts at the node, true when it ends there.
type NodeLine struct {
	Line  DirLine
	Angle float64
}

// Node is a point where lines meet or end. Lines is sorted by Angle,
// counter-clockwise from the negative x axis.
type Node struct {
	Point orb.Point
	Z     float64
	Lines []NodeLine
	alive bool
}

// Alive reports whether the node is live.
func (n Node) Alive() bool { return n.alive }

// Line is a primitive's topology record. Its coordinates and categories are
// held in the map's geometry store at Offset.
type Line struct {
	Type   LineType
	N1, N2 NodeID
	Left   FaceRef
	Right  FaceRef
	Bound  orb.Bound
	Offset int
	alive  bool

	// angle of the end at N1 and of the reversed end at N2, for lookups in
	// the node lists
	angles [2]float64
}

// Alive reports whether the line is live.
func (l Line) Alive() bool { return l.alive }

// Area is a closed clockwise ring of boundaries, optionally with holes.
type Area struct {
	Lines    []DirLine
	Isles    []IsleID
	Centroid LineID
	Bound    orb.Bound
	alive    bool
}

// Alive reports whether the area is live.
func (a Area) Alive() bool { return a.alive }

// Isle is a closed counter-clockwise ring of boundaries. Area is the
// smallest area enclosing it, zero if none.
type Isle struct {
	Lines []DirLine
	Area  AreaID
	Bound orb.Bound
	alive bool
}

// Alive reports whether the isle is live.
func (i Isle) Alive() bool { return i.alive }
