package topology

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Attributes resolves categories to values held outside the map, typically
// an attribute table keyed by category. The engine never calls it; callers
// use it to classify elements they select.
type Attributes interface {
	CategoryValue(layer, key int) (any, bool)
}

// MapAttributes is an in-memory Attributes keyed by layer then category.
type MapAttributes map[int]map[int]any

// CategoryValue implements Attributes.
func (a MapAttributes) CategoryValue(layer, key int) (any, bool) {
	v, ok := a[layer][key]
	return v, ok
}

// CatRange is an inclusive range of categories.
type CatRange struct {
	Min, Max int
}

// CatList is a set of category ranges, as parsed from "1-5,7,10-12".
// Ranges are sorted by Min and never overlap.
type CatList []CatRange

// ParseCatList parses a comma separated list of categories and inclusive
// ranges. Overlapping or adjacent ranges are merged.
func ParseCatList(s string) (CatList, error) {
	var list CatList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		// a leading '-' is a negative number, not a range
		if isRange && lo == "" {
			if i := strings.Index(hi, "-"); i > 0 {
				lo, hi = "-"+hi[:i], hi[i+1:]
			} else {
				lo, isRange = part, false
			}
		}
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, errors.Wrapf(err, "topology: bad category list %q", s)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, errors.Wrapf(err, "topology: bad category list %q", s)
			}
		}
		if last < first {
			return nil, errors.Errorf("topology: bad category range %q", part)
		}
		list = append(list, CatRange{Min: first, Max: last})
	}
	return list.normalized(), nil
}

func (l CatList) normalized() CatList {
	if len(l) == 0 {
		return l
	}
	sort.Slice(l, func(i, j int) bool { return l[i].Min < l[j].Min })
	out := CatList{l[0]}
	for _, r := range l[1:] {
		last := &out[len(out)-1]
		if r.Min <= last.Max+1 {
			if r.Max > last.Max {
				last.Max = r.Max
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Has reports whether cat is in one of the ranges.
func (l CatList) Has(cat int) bool {
	i := sort.Search(len(l), func(i int) bool { return l[i].Max >= cat })
	return i < len(l) && l[i].Min <= cat
}

func (l CatList) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		if r.Min == r.Max {
			parts[i] = strconv.Itoa(r.Min)
		} else {
			parts[i] = strconv.Itoa(r.Min) + "-" + strconv.Itoa(r.Max)
		}
	}
	return strings.Join(parts, ",")
}

// KeyInRangeList reports whether key is in list.
func KeyInRangeList(key int, list CatList) bool {
	return list.Has(key)
}
