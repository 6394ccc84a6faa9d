package main

import (
	"os"

	topology "github.com/tingold/orb-topology"
	"github.com/tingold/orb-topology/fgb"
	yaml "gopkg.in/yaml.v2"
)

// BuildConfig describes a build: map options and the inputs to read.
type BuildConfig struct {
	Tolerance float64  `yaml:"tolerance"`
	Geodesic  bool     `yaml:"geodesic"`
	Inputs    []*Input `yaml:"inputs"`
}

// Input is one FlatGeobuf file and how to read it.
type Input struct {
	Path        string `yaml:"path"`
	Layer       int    `yaml:"layer"`
	CatColumn   string `yaml:"cat_column"`
	LineType    string `yaml:"line_type"`
	NoCentroids bool   `yaml:"no_centroids"`
}

func LoadConfig(configPath string) (*BuildConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	config := &BuildConfig{}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// options returns the reader options for in.
func (in *Input) options() (*fgb.Options, error) {
	opts := fgb.DefaultOptions()
	if in.Layer != 0 {
		opts.Layer = in.Layer
	}
	if in.CatColumn != "" {
		opts.CatColumn = in.CatColumn
	}
	if in.LineType != "" {
		t, err := topology.ParseLineType(in.LineType)
		if err != nil {
			return nil, err
		}
		opts.LineType = t
	}
	opts.NoCentroids = in.NoCentroids
	return opts, nil
}
