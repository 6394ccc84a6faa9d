package main

import (
	"context"
	"fmt"

	"github.com/cheggaaa/pb"
	topology "github.com/tingold/orb-topology"
	"github.com/tingold/orb-topology/fgb"
	"golang.org/x/sync/errgroup"
)

type CmdBuild struct {
	global *GlobalOptions

	Config    string  `short:"c" long:"config" description:"YAML build configuration"`
	Tolerance float64 `short:"t" long:"tolerance" description:"Node snapping distance"`
	Geodesic  bool    `short:"g" long:"geodesic" description:"Coordinates are longitude/latitude"`
	LineType  string  `long:"line-type" description:"Type of line features: line or boundary"`
}

func init() {
	_, err := parser.AddCommand("build",
		"Build a topology",
		"Build a topology from FlatGeobuf files\n\nPolygon rings become boundaries with a centroid inside each polygon; points and lines are kept as they are.",
		&CmdBuild{global: &globalOpts})
	if err != nil {
		panic(err)
	}
}

func (cmd CmdBuild) Usage() string {
	return "[-c config.yaml] output.vtop [input.fgb...]"
}

func (cmd CmdBuild) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("No output file specified, Usage: %s", cmd.Usage())
	}

	config := &BuildConfig{}
	if cmd.Config != "" {
		c, err := LoadConfig(cmd.Config)
		if err != nil {
			return fmt.Errorf("Failed to load config: %s", err)
		}
		config = c
	}
	if cmd.Tolerance != 0 {
		config.Tolerance = cmd.Tolerance
	}
	config.Geodesic = config.Geodesic || cmd.Geodesic
	for _, path := range args[1:] {
		config.Inputs = append(config.Inputs, &Input{Path: path, LineType: cmd.LineType})
	}
	if len(config.Inputs) == 0 {
		return fmt.Errorf("No inputs specified, Usage: %s", cmd.Usage())
	}

	sources, err := openSources(config.Inputs)
	if err != nil {
		return err
	}

	opts := cmd.global.mapOptions()
	opts.Tolerance = config.Tolerance
	opts.Geodesic = config.Geodesic
	m := topology.New(opts)

	stats, err := ingest(m, sources, cmd.global.Quiet)
	if err != nil {
		return err
	}
	build, err := m.Build(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "lines:   %d added, %d malformed, %d rejected\n", stats.Added, stats.Malformed, stats.Rejected)
	fmt.Fprintf(stdout, "areas:   %d\n", m.NumAreas())
	fmt.Fprintf(stdout, "isles:   %d\n", m.NumIsles())
	if n := len(build.Failures); n > 0 {
		fmt.Fprintf(stdout, "rings not built: %d\n", n)
	}
	if n := len(build.OutsideCentroids) + len(build.DuplicateCentroids); n > 0 {
		fmt.Fprintf(stdout, "centroids without area: %d\n", n)
	}

	if err := topology.SaveFile(args[0], m); err != nil {
		return fmt.Errorf("Failed to save: %s", err)
	}
	return nil
}

// openSources reads every input concurrently.
func openSources(inputs []*Input) ([]*fgb.Source, error) {
	sources := make([]*fgb.Source, len(inputs))
	var g errgroup.Group
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			opts, err := in.options()
			if err != nil {
				return fmt.Errorf("%s: %s", in.Path, err)
			}
			src, err := fgb.OpenSource(in.Path, opts)
			if err != nil {
				return fmt.Errorf("Failed to read %s: %s", in.Path, err)
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// ingest adds every source to m in order. Maps are not safe for concurrent
// use, so sources are read in parallel but inserted one at a time.
func ingest(m *topology.Map, sources []*fgb.Source, quiet bool) (topology.IngestStats, error) {
	total := 0
	for _, src := range sources {
		total += src.Len()
	}
	bar := pb.New(total)
	bar.Output = stderr
	bar.NotPrint = quiet
	bar.Start()
	defer bar.Finish()

	var sum topology.IngestStats
	done := 0
	for _, src := range sources {
		src := src
		stats, err := topology.Ingest(context.Background(), m, src, func(topology.IngestStats) {
			bar.Set(done + src.Pos())
		})
		if err != nil {
			return sum, err
		}
		done += src.Len()
		sum.Added += stats.Added
		sum.Malformed += stats.Malformed
		sum.Rejected += stats.Rejected
	}
	return sum, nil
}

