package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	topology "github.com/tingold/orb-topology"
)

type CmdRebuild struct {
	global *GlobalOptions
}

func init() {
	_, err := parser.AddCommand("rebuild",
		"Compact and rebuild a topology",
		"Drop tombstones and dead geometry, renumber lines and rebuild all areas.\n\nLine handles change; the mapping is printed as old new pairs.",
		&CmdRebuild{global: &globalOpts})
	if err != nil {
		panic(err)
	}
}

func (cmd CmdRebuild) Usage() string {
	return "file.vtop [output.vtop]"
}

func (cmd CmdRebuild) Execute(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("No file specified, Usage: %s", cmd.Usage())
	}
	out := args[0]
	if len(args) == 2 {
		out = args[1]
	}

	m, err := cmd.global.load(args[0])
	if err != nil {
		return err
	}
	remap, stats, err := m.Rebuild(context.Background())
	if err != nil {
		return err
	}

	olds := lo.Keys(remap)
	sort.Slice(olds, func(i, j int) bool { return olds[i] < olds[j] })
	for _, old := range olds {
		if remap[old] != old {
			fmt.Fprintf(stdout, "%d %d\n", old, remap[old])
		}
	}
	fmt.Fprintf(stdout, "areas: %d, isles: %d, rings not built: %d\n", stats.Areas, stats.Isles, len(stats.Failures))
	return topology.SaveFile(out, m)
}
