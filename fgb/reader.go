package fgb

import (
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader creates a reader from a file path.
// The file is memory-mapped for efficient access.
func NewReader(path string) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, err
	}
	return &Reader{fgb: fgb}, nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}
	return &Reader{fgb: fgb}, nil
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			header.Columns = append(header.Columns, ColumnInfo{
				Name:        string(col.Name()),
				Type:        flattypes.EnumNamesColumnType[col.Type()],
				Title:       string(col.Title()),
				Description: string(col.Description()),
				Nullable:    col.Nullable(),
			})
		}
	}

	return header
}

// Features returns every feature in the file. Features are located through
// the packed index over the header envelope, so files without an index
// return ErrNoIndex.
func (r *Reader) Features() ([]*geojson.Feature, error) {
	h := r.fgb.Header()
	if h.FeaturesCount() == 0 {
		return nil, nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, ErrNoIndex
	}

	found, err := r.fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, err
	}

	features := make([]*geojson.Feature, 0, len(found))
	for _, f := range found {
		features = append(features, convertFeature(f, h))
	}
	return features, nil
}

// Close releases the reader. The memory mapping is released by the
// finalizer of the underlying buffer once it is unreachable.
func (r *Reader) Close() error {
	r.fgb = nil
	return nil
}

// convertFeature converts a FlatGeobuf feature to a geojson.Feature. A
// feature without a readable geometry keeps a nil Geometry.
func convertFeature(f *flattypes.Feature, header *flattypes.Header) *geojson.Feature {
	feature := &geojson.Feature{Type: "Feature"}
	if f == nil {
		return feature
	}

	var geomObj flattypes.Geometry
	feature.Geometry = geometryFromFGB(f.Geometry(&geomObj))

	if n := f.PropertiesLength(); n > 0 && header.ColumnsLength() > 0 {
		props := make([]byte, n)
		for i := 0; i < n; i++ {
			props[i] = byte(f.Properties(i))
		}
		feature.Properties = decodeProperties(props, header)
	}
	if feature.Properties == nil {
		feature.Properties = geojson.Properties{}
	}
	return feature
}
