// Command vtopo builds, inspects and exports vector topology files.
package main

import (
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	topology "github.com/tingold/orb-topology"
)

type GlobalOptions struct {
	Verbose bool `short:"v" long:"verbose" description:"Log build diagnostics"`
	Quiet   bool `short:"q" long:"quiet" description:"Hide progress bars"`
}

var globalOpts = GlobalOptions{}
var parser = flags.NewParser(&globalOpts, flags.HelpFlag|flags.PassDoubleDash)

// output streams, replaced in tests
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err.Error())
	}
}

func run(args []string) error {
	_, err := parser.ParseArgs(args)
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		parser.WriteHelp(stdout)
		return nil
	}
	return err
}

func (g *GlobalOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// mapOptions returns map options for files read by the CLI.
func (g *GlobalOptions) mapOptions() *topology.Options {
	opts := topology.DefaultOptions()
	opts.Logger = g.logger()
	return opts
}

// load reads a topology file.
func (g *GlobalOptions) load(path string) (*topology.Map, error) {
	return topology.LoadFile(path, g.mapOptions())
}
