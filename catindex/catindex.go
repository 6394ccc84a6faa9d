// Package catindex maps external category values to the topological elements
// carrying them. Entries are kept per layer, sorted by (category, type, id),
// so equality lookups and successor searches are binary searches.
package catindex

import (
	"sort"
)

// Entry is one (category, element) pair of a layer. Type is the element type
// bit as defined by the caller; the index only uses it for mask filtering.
type Entry struct {
	Cat  int
	Type int
	ID   int
}

func (e Entry) less(o Entry) bool {
	if e.Cat != o.Cat {
		return e.Cat < o.Cat
	}
	if e.Type != o.Type {
		return e.Type < o.Type
	}
	return e.ID < o.ID
}

// Index is the category index. Its zero value is not usable; call New.
type Index struct {
	layers map[int][]Entry
	n      int
}

// New returns an empty index.
func New() *Index {
	return &Index{layers: make(map[int][]Entry)}
}

// Reset drops all entries.
func (x *Index) Reset() {
	x.layers = make(map[int][]Entry)
	x.n = 0
}

// Len returns the number of entries over all layers.
func (x *Index) Len() int {
	return x.n
}

// Add inserts the entry. It reports false if the exact entry already exists.
func (x *Index) Add(layer, cat, typ, id int) bool {
	e := Entry{Cat: cat, Type: typ, ID: id}
	entries := x.layers[layer]
	i := sort.Search(len(entries), func(i int) bool { return !entries[i].less(e) })
	if i < len(entries) && entries[i] == e {
		return false
	}
	entries = append(entries, Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	x.layers[layer] = entries
	x.n++
	return true
}

// Remove deletes the entry. It reports whether it was present.
func (x *Index) Remove(layer, cat, typ, id int) bool {
	e := Entry{Cat: cat, Type: typ, ID: id}
	entries := x.layers[layer]
	i := sort.Search(len(entries), func(i int) bool { return !entries[i].less(e) })
	if i == len(entries) || entries[i] != e {
		return false
	}
	entries = append(entries[:i], entries[i+1:]...)
	if len(entries) == 0 {
		delete(x.layers, layer)
	} else {
		x.layers[layer] = entries
	}
	x.n--
	return true
}

// RemoveElement deletes every entry of the element in every layer and
// returns how many were removed.
func (x *Index) RemoveElement(typ, id int) int {
	removed := 0
	for layer, entries := range x.layers {
		kept := entries[:0]
		for _, e := range entries {
			if e.Type == typ && e.ID == id {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(x.layers, layer)
		} else {
			x.layers[layer] = kept
		}
	}
	x.n -= removed
	return removed
}

// RemoveType deletes every entry with the given type.
func (x *Index) RemoveType(typ int) {
	for layer, entries := range x.layers {
		kept := entries[:0]
		for _, e := range entries {
			if e.Type != typ {
				kept = append(kept, e)
			}
		}
		x.n -= len(entries) - len(kept)
		if len(kept) == 0 {
			delete(x.layers, layer)
		} else {
			x.layers[layer] = kept
		}
	}
}

// Lookup returns every entry of layer with exactly category cat.
func (x *Index) Lookup(layer, cat int) []Entry {
	entries := x.layers[layer]
	lo := sort.Search(len(entries), func(i int) bool { return entries[i].Cat >= cat })
	hi := sort.Search(len(entries), func(i int) bool { return entries[i].Cat > cat })
	if lo == hi {
		return nil
	}
	out := make([]Entry, hi-lo)
	copy(out, entries[lo:hi])
	return out
}

// Next returns the first entry of layer whose category is >= cat and whose
// type matches mask.
func (x *Index) Next(layer, cat, mask int) (Entry, bool) {
	entries := x.layers[layer]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Cat >= cat })
	for ; i < len(entries); i++ {
		if entries[i].Type&mask != 0 {
			return entries[i], true
		}
	}
	return Entry{}, false
}

// NextUnused returns the smallest category >= from that no element of layer uses.
func (x *Index) NextUnused(layer, from int) int {
	entries := x.layers[layer]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Cat >= from })
	c := from
	for ; i < len(entries); i++ {
		if entries[i].Cat > c {
			break
		}
		if entries[i].Cat == c {
			c++
		}
	}
	return c
}

// Max returns the largest category of layer.
func (x *Index) Max(layer int) (int, bool) {
	entries := x.layers[layer]
	if len(entries) == 0 {
		return 0, false
	}
	return entries[len(entries)-1].Cat, true
}

// Layer returns a copy of the sorted entries of layer.
func (x *Index) Layer(layer int) []Entry {
	entries := x.layers[layer]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Layers returns the layer numbers present, ascending.
func (x *Index) Layers() []int {
	out := make([]int, 0, len(x.layers))
	for l := range x.layers {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Load replaces layer with entries, e.g. when read back from a file.
// Entries need not be sorted; duplicates are collapsed.
func (x *Index) Load(layer int, entries []Entry) {
	if old, ok := x.layers[layer]; ok {
		x.n -= len(old)
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })
	out := sorted[:0]
	for _, e := range sorted {
		if len(out) > 0 && e == out[len(out)-1] {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		delete(x.layers, layer)
		return
	}
	x.layers[layer] = out
	x.n += len(out)
}
