// Package fgb moves topology data in and out of FlatGeobuf files.
//
// A Source turns the features of a .fgb file into topology primitives:
// points, lines, polygon rings as boundaries and one centroid per polygon
// carrying its category. WriteAreas and WriteLines export a built map back to
// FlatGeobuf, one feature per area or line.
package fgb

import (
	"errors"

	topology "github.com/tingold/orb-topology"
)

// Common errors returned by this package.
var (
	ErrNothingToWrite  = errors.New("fgb: nothing to write")
	ErrUnsupportedType = errors.New("fgb: unsupported geometry type")
	ErrNoIndex         = errors.New("fgb: file has no spatial index")
)

// CRS represents a coordinate reference system.
type CRS struct {
	Code        int    // EPSG code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// Options configures reading and writing.
type Options struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include spatial index (default: true)
	CRS          *CRS   // Coordinate reference system (optional)

	// CatColumn is the integer property holding the category of a feature.
	// Written on export, read on import into Layer.
	CatColumn string
	Layer     int

	// LineType is the primitive type given to line features on import:
	// topology.TypeLine or topology.TypeBoundary.
	LineType topology.LineType

	// NoCentroids skips the centroid normally generated inside each
	// imported polygon.
	NoCentroids bool
}

// DefaultOptions returns default options: indexed output, categories in
// column "cat" on layer 1, lines imported as plain lines.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
		CatColumn:    "cat",
		Layer:        1,
		LineType:     topology.TypeLine,
	}
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name        string // Column name
	Type        string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Title       string // Column title (human-readable)
	Description string // Column description
	Nullable    bool   // Whether the column can contain null values
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string       // Layer name
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	FeaturesCount uint64       // Number of features in the file
	Envelope      [4]float64   // Bounding box [minX, minY, maxX, maxY]
	CRS           *CRS         // Coordinate reference system
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}
