package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cheekybits/is"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	topology "github.com/tingold/orb-topology"
	"github.com/tingold/orb-topology/fgb"
)

func writeInput(t *testing.T, path string) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for i, x := range []float64{0, 3} {
		f := geojson.NewFeature(orb.Polygon{{{x, 0}, {x + 2, 0}, {x + 2, 2}, {x, 2}, {x, 0}}})
		f.Properties["cat"] = i + 1
		f.Properties["name"] = []string{"north", "south"}[i]
		fc.Append(f)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	err = fgb.WriteFeatures(file, fc, nil)
	_ = file.Close()
	if err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}
}

func capture(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	stdout, stderr = &buf, &buf
	defer func() { stdout, stderr = os.Stdout, os.Stderr }()
	if err := run(args); err != nil {
		t.Fatalf("vtopo %s failed: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func TestLoadConfig(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "build.yaml")
	err := os.WriteFile(path, []byte(`
tolerance: 0.5
inputs:
  - path: parcels.fgb
    layer: 2
    cat_column: id
    line_type: boundary
  - path: roads.fgb
`), 0o644)
	is.NoErr(err)

	config, err := LoadConfig(path)
	is.NoErr(err)
	is.Equal(config.Tolerance, 0.5)
	is.False(config.Geodesic)
	is.Equal(len(config.Inputs), 2)

	opts, err := config.Inputs[0].options()
	is.NoErr(err)
	is.Equal(opts.Layer, 2)
	is.Equal(opts.CatColumn, "id")
	is.Equal(opts.LineType.String(), "boundary")

	opts, err = config.Inputs[1].options()
	is.NoErr(err)
	is.Equal(opts.Layer, 1)
	is.Equal(opts.CatColumn, "cat")

	_, err = (&Input{LineType: "river"}).options()
	is.Err(err)
}

func TestCommands(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "parcels.fgb")
	writeInput(t, input)
	config := filepath.Join(dir, "build.yaml")
	is.NoErr(os.WriteFile(config, []byte("inputs:\n  - path: "+input+"\n    layer: 1\n"), 0o644))
	out := filepath.Join(dir, "parcels.vtop")

	res := capture(t, "-q", "build", "-c", config, out)
	is.True(strings.Contains(res, "lines:   4 added, 0 malformed, 0 rejected"))
	is.True(strings.Contains(res, "areas:   2"))

	res = capture(t, "info", "--validate", out)
	is.True(strings.Contains(res, "areas:    2 (2 slots)"))
	is.True(strings.Contains(res, "layer 1:  2 categories"))
	is.True(strings.Contains(res, "valid"))

	res = capture(t, "query", "--at", "4,1", out)
	is.True(strings.Contains(res, "cats [2]"))

	export := filepath.Join(dir, "areas.fgb")
	capture(t, "export", out, export)
	reader, err := fgb.NewReader(export)
	is.NoErr(err)
	defer reader.Close()
	is.Equal(reader.Header().FeaturesCount, uint64(2))
	is.Equal(reader.Header().Name, "areas")

	compacted := filepath.Join(dir, "compacted.vtop")
	res = capture(t, "rebuild", out, compacted)
	is.True(strings.Contains(res, "areas: 2, isles: 2, rings not built: 0"))
	_, err = os.Stat(compacted)
	is.NoErr(err)
}

func TestBuildWithoutOutput(t *testing.T) {
	var buf bytes.Buffer
	stdout, stderr = &buf, &buf
	defer func() { stdout, stderr = os.Stdout, os.Stderr }()
	if err := run([]string{"build"}); err == nil {
		t.Error("expected an error without an output file")
	}
}

func TestCentroidCats(t *testing.T) {
	is := is.New(t)
	m := topology.New(nil)
	c, err := m.AddLine(topology.TypeCentroid, orb.LineString{{1, 1}}, nil, topology.NewCats(topology.Cat{Layer: 1, Value: 5}))
	is.NoErr(err)

	cats, err := centroidCats(m, topology.Area{Centroid: c})
	is.NoErr(err)
	is.Equal(cats.Values(1), []int{5})

	cats, err = centroidCats(m, topology.Area{})
	is.NoErr(err)
	is.Equal(len(cats), 0)

	_, err = centroidCats(m, topology.Area{Centroid: c + 1})
	is.True(errors.Is(err, topology.ErrNotFound))
}
