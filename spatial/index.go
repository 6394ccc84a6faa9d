// Package spatial provides the bounding-box index the topology engine keeps
// over its nodes, lines, areas and isles. Each element kind has its own R-tree;
// elements are addressed by their integer handle, never by pointer.
package spatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Kind selects which element tree an operation applies to.
type Kind int

// Element kinds tracked by the index.
const (
	Node Kind = iota
	Line
	Area
	Isle
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Node:
		return "node"
	case Line:
		return "line"
	case Area:
		return "area"
	case Isle:
		return "isle"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

const (
	minChildren = 25
	maxChildren = 50
)

// pad widens every stored rectangle so that points and axis-parallel segments
// (zero width or height) still intersect in the tree. Results are filtered
// against the exact bound afterwards.
const pad = 1e-9

// Item is a bulk-load record.
type Item struct {
	ID    int
	Bound orb.Bound
}

type item struct {
	id    int
	bound orb.Bound
	rect  rtreego.Rect
}

func (it *item) Bounds() rtreego.Rect {
	return it.rect
}

// Index is a set of R-trees, one per Kind. The zero value is not usable; call New.
type Index struct {
	trees [numKinds]*rtreego.Rtree
	items [numKinds]map[int]*item
}

// New returns an empty index.
func New() *Index {
	x := &Index{}
	x.Reset()
	return x
}

// Reset drops every entry of every kind.
func (x *Index) Reset() {
	for k := Kind(0); k < numKinds; k++ {
		x.trees[k] = rtreego.NewTree(2, minChildren, maxChildren)
		x.items[k] = make(map[int]*item)
	}
}

// Insert registers id with bound b. An existing entry for the same id is replaced.
func (x *Index) Insert(kind Kind, id int, b orb.Bound) {
	x.check(kind)
	if old, ok := x.items[kind][id]; ok {
		x.trees[kind].Delete(old)
	}
	it := &item{id: id, bound: b, rect: toRect(b)}
	x.items[kind][id] = it
	x.trees[kind].Insert(it)
}

// Delete removes id. It reports whether the id was present.
func (x *Index) Delete(kind Kind, id int) bool {
	x.check(kind)
	it, ok := x.items[kind][id]
	if !ok {
		return false
	}
	delete(x.items[kind], id)
	x.trees[kind].Delete(it)
	return true
}

// Bound returns the bound stored for id.
func (x *Index) Bound(kind Kind, id int) (orb.Bound, bool) {
	x.check(kind)
	it, ok := x.items[kind][id]
	if !ok {
		return orb.Bound{}, false
	}
	return it.bound, true
}

// Has reports whether id has an entry.
func (x *Index) Has(kind Kind, id int) bool {
	x.check(kind)
	_, ok := x.items[kind][id]
	return ok
}

// Len returns the number of entries of the given kind.
func (x *Index) Len(kind Kind) int {
	x.check(kind)
	return len(x.items[kind])
}

// Query returns, in ascending order, the ids whose bounds overlap b.
// Bounds are inclusive: touching boxes overlap.
func (x *Index) Query(kind Kind, b orb.Bound) []int {
	x.check(kind)
	found := x.trees[kind].SearchIntersect(toRect(b))
	ids := make([]int, 0, len(found))
	for _, s := range found {
		it, ok := s.(*item)
		if !ok || !it.bound.Intersects(b) {
			continue
		}
		ids = append(ids, it.id)
	}
	sort.Ints(ids)
	return ids
}

// Nearest returns up to k ids ordered by the distance from p to their bounds.
func (x *Index) Nearest(kind Kind, p orb.Point, k int) []int {
	x.check(kind)
	if k <= 0 || len(x.items[kind]) == 0 {
		return nil
	}
	found := x.trees[kind].NearestNeighbors(k, rtreego.Point{p[0], p[1]})
	ids := make([]int, 0, len(found))
	for _, s := range found {
		if it, ok := s.(*item); ok && it != nil {
			ids = append(ids, it.id)
		}
	}
	return ids
}

// Rebuild replaces every entry of kind with items, bulk-loading the tree.
func (x *Index) Rebuild(kind Kind, items []Item) {
	x.check(kind)
	objs := make([]rtreego.Spatial, 0, len(items))
	x.items[kind] = make(map[int]*item, len(items))
	for _, in := range items {
		it := &item{id: in.ID, bound: in.Bound, rect: toRect(in.Bound)}
		if old, ok := x.items[kind][in.ID]; ok {
			// keep the last bound given for a repeated id
			for i, o := range objs {
				if o == old {
					objs = append(objs[:i], objs[i+1:]...)
					break
				}
			}
		}
		x.items[kind][in.ID] = it
		objs = append(objs, it)
	}
	x.trees[kind] = rtreego.NewTree(2, minChildren, maxChildren, objs...)
}

// IDs returns every id of kind in ascending order.
func (x *Index) IDs(kind Kind) []int {
	x.check(kind)
	ids := make([]int, 0, len(x.items[kind]))
	for id := range x.items[kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (x *Index) check(kind Kind) {
	if kind < 0 || kind >= numKinds {
		panic(fmt.Sprintf("spatial: invalid kind %d", int(kind)))
	}
}

func toRect(b orb.Bound) rtreego.Rect {
	px := pad * math.Max(1, math.Max(math.Abs(b.Min[0]), math.Abs(b.Max[0])))
	py := pad * math.Max(1, math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1])))
	origin := rtreego.Point{b.Min[0] - px, b.Min[1] - py}
	lengths := []float64{b.Max[0] - b.Min[0] + 2*px, b.Max[1] - b.Min[1] + 2*py}
	r, err := rtreego.NewRect(origin, lengths)
	if err != nil {
		// only reachable with non-finite input
		return rtreego.Point{b.Min[0], b.Min[1]}.ToRect(px)
	}
	return r
}
