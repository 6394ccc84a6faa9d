package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	topology "github.com/tingold/orb-topology"
)

type CmdQuery struct {
	global *GlobalOptions

	At    string `long:"at" description:"Find the area at x,y"`
	Layer int    `short:"l" long:"layer" default:"1" description:"Category layer"`
	Cats  string `long:"cats" description:"List lines with categories in this list, e.g. 1-5,7"`
	Type  string `long:"type" description:"Restrict --cats to one line type"`
}

func init() {
	_, err := parser.AddCommand("query",
		"Query a topology file",
		"Find the area containing a point, or the lines carrying given categories",
		&CmdQuery{global: &globalOpts})
	if err != nil {
		panic(err)
	}
}

func (cmd CmdQuery) Usage() string {
	return "(--at x,y | --cats list) file.vtop"
}

func (cmd CmdQuery) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("No file specified, Usage: %s", cmd.Usage())
	}
	if cmd.At == "" && cmd.Cats == "" {
		return fmt.Errorf("Nothing to query, Usage: %s", cmd.Usage())
	}

	m, err := cmd.global.load(args[0])
	if err != nil {
		return err
	}

	if cmd.At != "" {
		p, err := parsePoint(cmd.At)
		if err != nil {
			return err
		}
		id, ok := m.FindArea(p)
		if !ok {
			fmt.Fprintf(stdout, "%v: no area\n", p)
		} else {
			a, _ := m.Area(id)
			cats, err := centroidCats(m, a)
			if err != nil {
				return fmt.Errorf("Failed to read area %d: %s", id, err)
			}
			fmt.Fprintf(stdout, "%v: area %d cats %v\n", p, id, cats.Values(cmd.Layer))
		}
	}

	if cmd.Cats != "" {
		list, err := topology.ParseCatList(cmd.Cats)
		if err != nil {
			return err
		}
		mask := topology.TypeAny
		if cmd.Type != "" {
			if mask, err = topology.ParseLineType(cmd.Type); err != nil {
				return err
			}
		}
		for _, id := range m.SelectLinesByCatList(cmd.Layer, list, mask) {
			l, _ := m.Line(id)
			_, _, cats, _ := m.Geometry(id)
			fmt.Fprintf(stdout, "line %d %s cats %v\n", id, l.Type, cats.Values(cmd.Layer))
		}
	}
	return nil
}

func parsePoint(s string) (orb.Point, error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return orb.Point{}, errors.New("point must be x,y")
	}
	px, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return orb.Point{}, err
	}
	py, err := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{px, py}, nil
}

// centroidCats returns the categories of the area's centroid, if it has one.
func centroidCats(m *topology.Map, a topology.Area) (topology.Cats, error) {
	if a.Centroid == 0 {
		return nil, nil
	}
	_, _, cats, err := m.Geometry(a.Centroid)
	return cats, err
}
