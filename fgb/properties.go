package fgb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"
)

// schema is the column layout of a feature collection: names in column
// order and the type of each column.
type schema struct {
	names []string
	types []flattypes.ColumnType
	index map[string]int
}

// inferSchema examines every property of every feature and picks the most
// general type seen for each name. Columns are sorted by name so the layout
// does not depend on map iteration order.
func inferSchema(features []*geojson.Feature) *schema {
	seen := make(map[string]flattypes.ColumnType)
	for _, f := range features {
		if f == nil {
			continue
		}
		for name, value := range f.Properties {
			if value == nil {
				if _, ok := seen[name]; !ok {
					seen[name] = flattypes.ColumnTypeString
				}
				continue
			}
			t := inferColumnType(value)
			if prev, ok := seen[name]; ok {
				t = promoteColumnType(prev, t)
			}
			seen[name] = t
		}
	}

	s := &schema{index: make(map[string]int, len(seen))}
	for name := range seen {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	for i, name := range s.names {
		s.types = append(s.types, seen[name])
		s.index[name] = i
	}
	return s
}

// columns builds the header columns for s.
func (s *schema) columns(builder *flatbuffers.Builder) []*writer.Column {
	columns := make([]*writer.Column, 0, len(s.names))
	for i, name := range s.names {
		col := writer.NewColumn(builder)
		col.SetName(name)
		col.SetTitle(name) // Set title to match name for JS library compatibility
		col.SetType(s.types[i])
		col.SetNullable(true)
		columns = append(columns, col)
	}
	return columns
}

// inferColumnType determines the FlatGeobuf column type for a Go value.
func inferColumnType(value interface{}) flattypes.ColumnType {
	switch v := value.(type) {
	case nil:
		return flattypes.ColumnTypeString
	case bool:
		return flattypes.ColumnTypeBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return flattypes.ColumnTypeInt
		}
		return flattypes.ColumnTypeLong
	case int8, int16, int32:
		return flattypes.ColumnTypeInt
	case int64:
		return flattypes.ColumnTypeLong
	case uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeUInt
	case uint64:
		return flattypes.ColumnTypeULong
	case float32:
		return flattypes.ColumnTypeFloat
	case float64:
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	default:
		return flattypes.ColumnTypeJson
	}
}

// numericRank orders the numeric column types from narrowest to widest.
var numericRank = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   0,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  2,
	flattypes.ColumnTypeShort:  3,
	flattypes.ColumnTypeUShort: 4,
	flattypes.ColumnTypeInt:    5,
	flattypes.ColumnTypeUInt:   6,
	flattypes.ColumnTypeLong:   7,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  9,
	flattypes.ColumnTypeDouble: 10,
}

// promoteColumnType returns the more general type when there's a conflict.
func promoteColumnType(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}
	if a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson {
		return flattypes.ColumnTypeJson
	}
	if a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString {
		return flattypes.ColumnTypeString
	}

	rankA, okA := numericRank[a]
	rankB, okB := numericRank[b]
	if okA && okB {
		if rankA > rankB {
			return a
		}
		return b
	}
	return flattypes.ColumnTypeJson
}

// encodeProperties encodes props in column order.
// The format is: [2-byte column index][value bytes]... repeated for each property.
func encodeProperties(props geojson.Properties, s *schema) []byte {
	var buf bytes.Buffer
	for i, name := range s.names {
		value, ok := props[name]
		if !ok || value == nil {
			continue
		}
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(i))
		buf.Write(idx[:])
		writePropertyValue(&buf, value, s.types[i])
	}
	return buf.Bytes()
}

// writePropertyValue writes value as colType.
func writePropertyValue(buf *bytes.Buffer, value interface{}, colType flattypes.ColumnType) {
	le := binary.LittleEndian
	switch colType {
	case flattypes.ColumnTypeBool:
		if v, _ := value.(bool); v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		v, _ := toInt64(value)
		buf.WriteByte(byte(v))

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		v, _ := toInt64(value)
		buf.Write(le.AppendUint16(nil, uint16(v)))

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		v, _ := toInt64(value)
		buf.Write(le.AppendUint32(nil, uint32(v)))

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		v, _ := toInt64(value)
		buf.Write(le.AppendUint64(nil, uint64(v)))

	case flattypes.ColumnTypeFloat:
		v, _ := toFloat64(value)
		buf.Write(le.AppendUint32(nil, math.Float32bits(float32(v))))

	case flattypes.ColumnTypeDouble:
		v, _ := toFloat64(value)
		buf.Write(le.AppendUint64(nil, math.Float64bits(v)))

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		buf.WriteString(toString(value))
		buf.WriteByte(0) // Null terminator

	case flattypes.ColumnTypeJson:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			jsonBytes = []byte("{}")
		}
		buf.Write(jsonBytes)
		buf.WriteByte(0) // Null terminator

	case flattypes.ColumnTypeBinary:
		b, _ := value.([]byte)
		buf.Write(le.AppendUint32(nil, uint32(len(b))))
		buf.Write(b)
	}
}

// decodeProperties decodes FlatGeobuf binary properties to geojson.Properties.
func decodeProperties(data []byte, header *flattypes.Header) geojson.Properties {
	if len(data) == 0 || header == nil {
		return nil
	}

	props := make(geojson.Properties)
	for offset := 0; offset+2 <= len(data); {
		colIndex := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2

		var col flattypes.Column
		if colIndex >= header.ColumnsLength() || !header.Columns(&col, colIndex) {
			break
		}

		value, n := readPropertyValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}
	return props
}

// readPropertyValue reads a property value from the buffer.
// Returns the value and number of bytes read.
func readPropertyValue(data []byte, colType flattypes.ColumnType) (interface{}, int) {
	le := binary.LittleEndian
	need := func(n int) bool { return len(data) >= n }

	switch colType {
	case flattypes.ColumnTypeBool:
		if !need(1) {
			return nil, 0
		}
		return data[0] != 0, 1
	case flattypes.ColumnTypeByte:
		if !need(1) {
			return nil, 0
		}
		return int8(data[0]), 1
	case flattypes.ColumnTypeUByte:
		if !need(1) {
			return nil, 0
		}
		return data[0], 1
	case flattypes.ColumnTypeShort:
		if !need(2) {
			return nil, 0
		}
		return int16(le.Uint16(data)), 2
	case flattypes.ColumnTypeUShort:
		if !need(2) {
			return nil, 0
		}
		return le.Uint16(data), 2
	case flattypes.ColumnTypeInt:
		if !need(4) {
			return nil, 0
		}
		return int32(le.Uint32(data)), 4
	case flattypes.ColumnTypeUInt:
		if !need(4) {
			return nil, 0
		}
		return le.Uint32(data), 4
	case flattypes.ColumnTypeLong:
		if !need(8) {
			return nil, 0
		}
		return int64(le.Uint64(data)), 8
	case flattypes.ColumnTypeULong:
		if !need(8) {
			return nil, 0
		}
		return le.Uint64(data), 8
	case flattypes.ColumnTypeFloat:
		if !need(4) {
			return nil, 0
		}
		return math.Float32frombits(le.Uint32(data)), 4
	case flattypes.ColumnTypeDouble:
		if !need(8) {
			return nil, 0
		}
		return math.Float64frombits(le.Uint64(data)), 8

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson:
		end := bytes.IndexByte(data, 0)
		n := end + 1
		if end == -1 {
			end, n = len(data), len(data)
		}
		if n == 0 {
			return nil, 0
		}
		if colType != flattypes.ColumnTypeJson {
			return string(data[:end]), n
		}
		var v interface{}
		if err := json.Unmarshal(data[:end], &v); err != nil {
			return string(data[:end]), n
		}
		return v, n

	case flattypes.ColumnTypeBinary:
		if !need(4) {
			return nil, 0
		}
		length := int(le.Uint32(data))
		if !need(4 + length) {
			return nil, 0
		}
		return data[4 : 4+length], 4 + length

	default:
		return nil, 0
	}
}

// Type conversion helpers

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
