package catindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/cheekybits/is"
)

const (
	typeLine = 1 << 1
	typeArea = 1 << 6
)

func TestAddLookup(t *testing.T) {
	is := is.New(t)

	x := New()
	is.True(x.Add(1, 10, typeLine, 3))
	is.True(x.Add(1, 10, typeLine, 1))
	is.True(x.Add(1, 5, typeLine, 2))
	is.True(x.Add(2, 10, typeArea, 1))
	is.False(x.Add(1, 10, typeLine, 1))

	is.Equal(x.Len(), 4)
	is.Equal(x.Lookup(1, 10), []Entry{{10, typeLine, 1}, {10, typeLine, 3}})
	is.Equal(x.Lookup(2, 10), []Entry{{10, typeArea, 1}})
	is.Nil(x.Lookup(1, 7))
	is.Nil(x.Lookup(3, 10))
	is.Equal(x.Layers(), []int{1, 2})
}

func TestRemove(t *testing.T) {
	is := is.New(t)

	x := New()
	x.Add(1, 1, typeLine, 1)
	x.Add(1, 2, typeLine, 1)
	x.Add(2, 2, typeLine, 1)
	x.Add(1, 2, typeLine, 2)

	is.True(x.Remove(1, 2, typeLine, 2))
	is.False(x.Remove(1, 2, typeLine, 2))
	is.Equal(x.Len(), 3)

	is.Equal(x.RemoveElement(typeLine, 1), 3)
	is.Equal(x.Len(), 0)
	is.Equal(len(x.Layers()), 0)
}

func TestRemoveType(t *testing.T) {
	is := is.New(t)

	x := New()
	x.Add(1, 1, typeLine, 1)
	x.Add(1, 1, typeArea, 1)
	x.Add(2, 4, typeArea, 2)
	x.RemoveType(typeArea)

	is.Equal(x.Len(), 1)
	is.Equal(x.Layers(), []int{1})
}

func TestNext(t *testing.T) {
	x := New()
	x.Add(1, 3, typeLine, 1)
	x.Add(1, 5, typeArea, 2)
	x.Add(1, 9, typeLine, 3)

	tests := []struct {
		name  string
		cat   int
		mask  int
		found bool
		want  Entry
	}{
		{"exact", 3, typeLine, true, Entry{3, typeLine, 1}},
		{"successor", 4, typeLine | typeArea, true, Entry{5, typeArea, 2}},
		{"masked successor", 4, typeLine, true, Entry{9, typeLine, 3}},
		{"past end", 10, typeLine, false, Entry{}},
		{"no type", 0, 1 << 10, false, Entry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := x.Next(1, tt.cat, tt.mask)
			if ok != tt.found || got != tt.want {
				t.Errorf("expected %v %v, got %v %v", tt.want, tt.found, got, ok)
			}
		})
	}
}

func TestNextUnusedAndMax(t *testing.T) {
	is := is.New(t)

	x := New()
	for _, c := range []int{1, 2, 3, 5, 5, 8} {
		x.Add(1, c, typeLine, c*10+len(x.Lookup(1, c)))
	}

	is.Equal(x.NextUnused(1, 1), 4)
	is.Equal(x.NextUnused(1, 5), 6)
	is.Equal(x.NextUnused(1, 8), 9)
	is.Equal(x.NextUnused(2, 1), 1)

	m, ok := x.Max(1)
	is.True(ok)
	is.Equal(m, 8)
	_, ok = x.Max(2)
	is.False(ok)
}

func TestLoad(t *testing.T) {
	is := is.New(t)

	x := New()
	x.Add(1, 1, typeLine, 1)
	x.Load(1, []Entry{{4, typeLine, 2}, {2, typeLine, 1}, {4, typeLine, 2}})

	is.Equal(x.Len(), 2)
	is.Equal(x.Layer(1), []Entry{{2, typeLine, 1}, {4, typeLine, 2}})
}

// Lookup must return exactly the elements carrying the pair.
func TestLookupMatchesBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	x := New()
	truth := map[[2]int]map[int]bool{}
	for id := 1; id <= 300; id++ {
		for k := 0; k < 1+rnd.Intn(3); k++ {
			layer, cat := 1+rnd.Intn(3), rnd.Intn(40)
			x.Add(layer, cat, typeLine, id)
			key := [2]int{layer, cat}
			if truth[key] == nil {
				truth[key] = map[int]bool{}
			}
			truth[key][id] = true
		}
	}
	for id := 1; id <= 300; id += 7 {
		for key, ids := range truth {
			if ids[id] {
				x.Remove(key[0], key[1], typeLine, id)
				delete(ids, id)
			}
		}
	}

	for layer := 1; layer <= 3; layer++ {
		for cat := 0; cat < 40; cat++ {
			var want []int
			for id := range truth[[2]int{layer, cat}] {
				want = append(want, id)
			}
			sort.Ints(want)
			var got []int
			for _, e := range x.Lookup(layer, cat) {
				got = append(got, e.ID)
			}
			if len(got) != len(want) {
				t.Fatalf("layer %d cat %d: expected %v, got %v", layer, cat, want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("layer %d cat %d: expected %v, got %v", layer, cat, want, got)
				}
			}
		}
	}
}
