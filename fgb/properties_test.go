package fgb

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected flattypes.ColumnType
	}{
		{"nil", nil, flattypes.ColumnTypeString},
		{"bool", true, flattypes.ColumnTypeBool},
		{"int", 42, flattypes.ColumnTypeInt},
		{"large int", 1 << 40, flattypes.ColumnTypeLong},
		{"int64", int64(9999999999), flattypes.ColumnTypeLong},
		{"uint32", uint32(7), flattypes.ColumnTypeUInt},
		{"float32", float32(3.14), flattypes.ColumnTypeFloat},
		{"float64", 3.14159, flattypes.ColumnTypeDouble},
		{"string", "hello", flattypes.ColumnTypeString},
		{"json int", json.Number("42"), flattypes.ColumnTypeLong},
		{"json float", json.Number("3.14"), flattypes.ColumnTypeDouble},
		{"map", map[string]interface{}{"key": "value"}, flattypes.ColumnTypeJson},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := inferColumnType(tt.value)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestPromoteColumnType(t *testing.T) {
	tests := []struct {
		name     string
		a, b     flattypes.ColumnType
		expected flattypes.ColumnType
	}{
		{"same type", flattypes.ColumnTypeInt, flattypes.ColumnTypeInt, flattypes.ColumnTypeInt},
		{"int to long", flattypes.ColumnTypeInt, flattypes.ColumnTypeLong, flattypes.ColumnTypeLong},
		{"long to int", flattypes.ColumnTypeLong, flattypes.ColumnTypeInt, flattypes.ColumnTypeLong},
		{"int to double", flattypes.ColumnTypeInt, flattypes.ColumnTypeDouble, flattypes.ColumnTypeDouble},
		{"any to json", flattypes.ColumnTypeInt, flattypes.ColumnTypeJson, flattypes.ColumnTypeJson},
		{"any to string", flattypes.ColumnTypeInt, flattypes.ColumnTypeString, flattypes.ColumnTypeString},
		{"binary and int", flattypes.ColumnTypeBinary, flattypes.ColumnTypeInt, flattypes.ColumnTypeJson},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := promoteColumnType(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestInferSchema(t *testing.T) {
	features := []*geojson.Feature{
		{Geometry: orb.Point{0, 0}, Properties: geojson.Properties{"size": 1, "name": "a"}},
		nil,
		{Geometry: orb.Point{1, 1}, Properties: geojson.Properties{"size": 2.5, "note": nil}},
	}

	for i := 0; i < 10; i++ {
		s := inferSchema(features)
		if !reflect.DeepEqual(s.names, []string{"name", "note", "size"}) {
			t.Fatalf("unexpected column order %v", s.names)
		}
		want := []flattypes.ColumnType{flattypes.ColumnTypeString, flattypes.ColumnTypeString, flattypes.ColumnTypeDouble}
		if !reflect.DeepEqual(s.types, want) {
			t.Fatalf("unexpected column types %v", s.types)
		}
		if s.index["size"] != 2 {
			t.Fatalf("unexpected index %v", s.index)
		}
	}
}

func TestPropertyValueRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		colType flattypes.ColumnType
		want    interface{}
	}{
		{"bool", true, flattypes.ColumnTypeBool, true},
		{"byte", 5, flattypes.ColumnTypeByte, int8(5)},
		{"short", -3, flattypes.ColumnTypeShort, int16(-3)},
		{"int", 42, flattypes.ColumnTypeInt, int32(42)},
		{"int as long", 42, flattypes.ColumnTypeLong, int64(42)},
		{"uint", uint32(9), flattypes.ColumnTypeUInt, uint32(9)},
		{"float", 1.5, flattypes.ColumnTypeFloat, float32(1.5)},
		{"int as double", 3, flattypes.ColumnTypeDouble, 3.0},
		{"string", "forest", flattypes.ColumnTypeString, "forest"},
		{"empty string", "", flattypes.ColumnTypeString, ""},
		{"number as string", 12, flattypes.ColumnTypeString, "12"},
		{"json", map[string]interface{}{"k": "v"}, flattypes.ColumnTypeJson, map[string]interface{}{"k": "v"}},
		{"binary", []byte{1, 2, 3}, flattypes.ColumnTypeBinary, []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writePropertyValue(&buf, tt.value, tt.colType)
			buf.WriteString("trailing")

			got, n := readPropertyValue(buf.Bytes(), tt.colType)
			if n != buf.Len()-len("trailing") {
				t.Errorf("read %d bytes, wrote %d", n, buf.Len()-len("trailing"))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestReadPropertyValue_Short(t *testing.T) {
	for _, ct := range []flattypes.ColumnType{
		flattypes.ColumnTypeInt,
		flattypes.ColumnTypeDouble,
		flattypes.ColumnTypeBinary,
	} {
		if _, n := readPropertyValue([]byte{1, 0}, ct); n != 0 {
			t.Errorf("%v: expected nothing read from a short buffer, got %d bytes", ct, n)
		}
	}
	if _, n := readPropertyValue(nil, flattypes.ColumnTypeString); n != 0 {
		t.Errorf("expected nothing read from an empty buffer, got %d bytes", n)
	}
}
