package main

import (
	"fmt"
	"os"

	topology "github.com/tingold/orb-topology"
	"github.com/tingold/orb-topology/fgb"
)

type CmdExport struct {
	global *GlobalOptions

	Lines     bool   `long:"lines" description:"Export lines instead of areas"`
	Type      string `long:"type" description:"Line type to export with --lines"`
	Layer     int    `short:"l" long:"layer" default:"1" description:"Category layer"`
	CatColumn string `long:"cat-column" default:"cat" description:"Property holding the category"`
	NoIndex   bool   `long:"no-index" description:"Do not write a spatial index"`
}

func init() {
	_, err := parser.AddCommand("export",
		"Export to FlatGeobuf",
		"Export the areas (with their holes) or lines of a topology file to FlatGeobuf",
		&CmdExport{global: &globalOpts})
	if err != nil {
		panic(err)
	}
}

func (cmd CmdExport) Usage() string {
	return "[--lines [--type t]] file.vtop output.fgb"
}

func (cmd CmdExport) Execute(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("Input or output file not specified, Usage: %s", cmd.Usage())
	}

	m, err := cmd.global.load(args[0])
	if err != nil {
		return err
	}

	opts := fgb.DefaultOptions()
	opts.IncludeIndex = !cmd.NoIndex
	opts.Layer = cmd.Layer
	opts.CatColumn = cmd.CatColumn
	if m.Options().Geodesic {
		opts.CRS = fgb.WGS84()
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	if cmd.Lines {
		mask := topology.TypeAny
		if cmd.Type != "" {
			if mask, err = topology.ParseLineType(cmd.Type); err != nil {
				return err
			}
		}
		opts.Name = "lines"
		err = fgb.WriteLines(out, m, mask, opts)
	} else {
		opts.Name = "areas"
		err = fgb.WriteAreas(out, m, opts)
	}
	if err != nil {
		return fmt.Errorf("Failed to export: %s", err)
	}
	return out.Close()
}
