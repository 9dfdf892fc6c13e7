package aggregate

import (
	"context"
	"math"
	"sort"

	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// geoNearStage computes a distance from `near` to each document's `key`
// GeoJSON Point field, writes it to distanceField, and sorts the output
// by that distance ascending. Earth radius uses the WGS84 mean radius in
// meters for the `spherical` case; the planar case treats coordinates as
// a flat Cartesian plane, a reasonable simplification since this server
// has no geospatial index to consult.
type geoNearStage struct {
	lon, lat      float64
	distanceField string
	key           string
	spherical     bool
}

const earthRadiusMeters = 6371008.8

func newGeoNearStage(spec *value.Document) (Stage, error) {
	near := spec.Get("near")
	var coords value.Value
	if near.Kind == value.KindDocument {
		if geom := near.Doc.Get("$geometry"); geom.Kind == value.KindDocument {
			coords = geom.Doc.Get("coordinates")
		} else {
			coords = near.Doc.Get("coordinates")
		}
	}
	if coords.Kind != value.KindArray || len(coords.Arr) != 2 {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$geoNear requires near.coordinates [lon, lat]")
	}
	lon, _ := coords.Arr[0].AsFloat64()
	lat, _ := coords.Arr[1].AsFloat64()

	distField := spec.Get("distanceField")
	if distField.Kind != value.KindString {
		return nil, mongoerr.New(mongoerr.CodeBadFrame, "$geoNear requires a string \"distanceField\"")
	}
	key := spec.Get("key")
	keyPath := "location"
	if key.Kind == value.KindString {
		keyPath = key.Str
	}
	return &geoNearStage{
		lon: lon, lat: lat,
		distanceField: distField.Str,
		key:           keyPath,
		spherical:     spec.Get("spherical").Truthy(),
	}, nil
}

func (s *geoNearStage) Apply(_ context.Context, docs []*value.Document) ([]*value.Document, error) {
	out := make([]*value.Document, 0, len(docs))
	for _, d := range docs {
		loc := d.GetPath(s.key)
		if loc.Kind != value.KindDocument {
			continue
		}
		coords := loc.Doc.Get("coordinates")
		if coords.Kind != value.KindArray || len(coords.Arr) != 2 {
			continue
		}
		lon, _ := coords.Arr[0].AsFloat64()
		lat, _ := coords.Arr[1].AsFloat64()
		var dist float64
		if s.spherical {
			dist = haversineMeters(s.lat, s.lon, lat, lon)
		} else {
			dist = math.Hypot(lon-s.lon, lat-s.lat)
		}
		c := d.Clone()
		c.Set(s.distanceField, value.Double(dist))
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Get(s.distanceField).F64 < out[j].Get(s.distanceField).F64
	})
	return out, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
