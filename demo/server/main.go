package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	topology "github.com/tingold/orb-topology"
	"github.com/tingold/orb-topology/fgb"
)

type Parcel struct {
	Name   string
	Cat    int
	Bounds orb.Bound
}

var parcels = []Parcel{
	{"Meadow", 1, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 3}}},
	{"Orchard", 2, orb.Bound{Min: orb.Point{4, 0}, Max: orb.Point{7, 3}}},
	{"Forest", 3, orb.Bound{Min: orb.Point{0, 3}, Max: orb.Point{7, 6}}},
	{"Pond", 4, orb.Bound{Min: orb.Point{1, 4}, Max: orb.Point{2, 5}}},
}

// sampleMap builds a map from parcels. Sides are split into unit segments so
// that sides shared by neighbouring parcels are added once.
func sampleMap() (*topology.Map, error) {
	m := topology.New(nil)
	seen := map[[2]orb.Point]bool{}
	for _, p := range parcels {
		r := p.Bounds.ToRing()
		for i := 0; i+1 < len(r); i++ {
			dx, dy := sign(r[i+1][0]-r[i][0]), sign(r[i+1][1]-r[i][1])
			for a := r[i]; a != r[i+1]; {
				b := orb.Point{a[0] + dx, a[1] + dy}
				if !seen[[2]orb.Point{a, b}] && !seen[[2]orb.Point{b, a}] {
					seen[[2]orb.Point{a, b}] = true
					if _, err := m.AddLine(topology.TypeBoundary, orb.LineString{a, b}, nil, nil); err != nil {
						return nil, err
					}
				}
				a = b
			}
		}
	}
	for _, p := range parcels {
		c := orb.Point{p.Bounds.Min[0] + 0.25, p.Bounds.Min[1] + 0.25}
		if _, err := m.AddLine(topology.TypeCentroid, orb.LineString{c}, nil, topology.NewCats(topology.Cat{Layer: 1, Value: p.Cat})); err != nil {
			return nil, err
		}
	}
	if _, err := m.Build(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func main() {
	var m *topology.Map
	var err error
	if len(os.Args) > 1 {
		m, err = topology.LoadFile(os.Args[1], nil)
	} else {
		m, err = sampleMap()
	}
	if err != nil {
		log.Fatalf("Failed to load topology: %v", err)
	}

	fc, err := fgb.AreaFeatures(m, 1, "cat")
	if err != nil {
		log.Fatalf("Failed to collect areas: %v", err)
	}
	names := map[int]string{}
	for _, p := range parcels {
		names[p.Cat] = p.Name
	}
	for _, f := range fc.Features {
		if cat, ok := f.Properties["cat"].(int); ok && names[cat] != "" {
			f.Properties["name"] = names[cat]
		}
	}

	geojsonData, err := json.Marshal(fc)
	if err != nil {
		log.Fatalf("Failed to encode GeoJSON: %v", err)
	}

	var buf bytes.Buffer
	opts := fgb.DefaultOptions()
	opts.Name = "areas"
	opts.Description = "Areas of the topology"
	if m.Options().Geodesic {
		opts.CRS = fgb.WGS84()
	}
	if err := fgb.WriteFeatures(&buf, fc, opts); err != nil {
		log.Fatalf("Failed to create FlatGeobuf: %v", err)
	}
	flatgeobufData := buf.Bytes()

	http.HandleFunc("/areas.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(geojsonData)
	})
	http.HandleFunc("/areas.fgb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(flatgeobufData)
	})
	http.HandleFunc("/area", func(w http.ResponseWriter, r *http.Request) {
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if errX != nil || errY != nil {
			http.Error(w, "x and y are required", http.StatusBadRequest)
			return
		}
		id, ok := m.FindArea(orb.Point{x, y})
		if !ok {
			http.NotFound(w, r)
			return
		}
		for _, f := range fc.Features {
			if f.Properties["area"] == int(id) {
				w.Header().Set("Content-Type", "application/geo+json")
				json.NewEncoder(w).Encode(f)
				return
			}
		}
		http.NotFound(w, r)
	})

	log.Println("Server starting on http://localhost:8080")
	log.Printf("Serving %d areas", len(fc.Features))
	log.Fatal(http.ListenAndServe(":8080", nil))
}

