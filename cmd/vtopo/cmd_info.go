package main

import (
	"fmt"
	"os"

	topology "github.com/tingold/orb-topology"
)

type CmdInfo struct {
	global *GlobalOptions

	Validate bool `long:"validate" description:"Check cross-references"`
}

func init() {
	_, err := parser.AddCommand("info",
		"Describe a topology file",
		"Print the header, element counts and layers of a topology file",
		&CmdInfo{global: &globalOpts})
	if err != nil {
		panic(err)
	}
}

func (cmd CmdInfo) Usage() string {
	return "[--validate] file.vtop"
}

func (cmd CmdInfo) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("No file specified, Usage: %s", cmd.Usage())
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	h, err := topology.ReadHeaderAt(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("Failed to read header: %s", err)
	}

	m, err := cmd.global.load(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "id:       %s\n", h.ID)
	fmt.Fprintf(stdout, "version:  %s (readable from %s)\n", h.Version, h.MinReader)
	fmt.Fprintf(stdout, "bound:    %v %v\n", h.Bound.Min, h.Bound.Max)
	fmt.Fprintf(stdout, "3d:       %t\n", h.WithZ)
	fmt.Fprintf(stdout, "geodesic: %t\n", h.Geodesic)
	fmt.Fprintf(stdout, "nodes:    %d (%d slots)\n", m.NumNodes(), m.NodeSlots())
	fmt.Fprintf(stdout, "lines:    %d (%d slots)\n", m.NumLines(), m.LineSlots())
	for _, t := range []topology.LineType{topology.TypePoint, topology.TypeLine, topology.TypeBoundary, topology.TypeCentroid} {
		fmt.Fprintf(stdout, "  %-9s %d\n", t.String()+":", len(m.LineIDs(t)))
	}
	fmt.Fprintf(stdout, "areas:    %d (%d slots)\n", m.NumAreas(), m.AreaSlots())
	fmt.Fprintf(stdout, "isles:    %d (%d slots)\n", m.NumIsles(), m.IsleSlots())
	for _, layer := range m.Layers() {
		fmt.Fprintf(stdout, "layer %d:  %d categories\n", layer, len(m.CatsInLayer(layer)))
	}

	if cmd.Validate {
		errs := m.Validate()
		for _, err := range errs {
			fmt.Fprintln(stdout, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%d consistency errors, run rebuild to repair", len(errs))
		}
		fmt.Fprintln(stdout, "valid")
	}
	return nil
}
