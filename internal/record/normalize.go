package record

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"hotspot-map/internal/logger"
)

// Sources are the four raw collections as delivered by the data source collaborator.
type Sources struct {
	Hotspots []Raw
	Medical  []Raw
	Markets  []Raw
	Welfare  []Raw
}

func (s Sources) Len() int {
	return len(s.Hotspots) + len(s.Medical) + len(s.Markets) + len(s.Welfare)
}

// coordFields names the latitude key and the longitude keys (first present wins) per source.
type coordFields struct {
	lat string
	lng []string
}

var sourceFields = map[Category]coordFields{
	HotspotArea: {lat: "latitude", lng: []string{"longitude"}},
	Medical:     {lat: "lat", lng: []string{"lng"}},
	Market:      {lat: "lat", lng: []string{"lng"}},
	Welfare:     {lat: "lat", lng: []string{"lon", "lng"}},
}

// Normalize flattens the four collections into uniform records: hotspots, medical,
// markets, welfare, each in source order. Rows without coordinates are kept;
// consumers check Position before drawing.
func Normalize(src Sources) []Record {
	out := make([]Record, 0, src.Len())
	for _, r := range src.Hotspots {
		out = append(out, NormalizeOne(HotspotArea, r))
	}
	for _, r := range src.Medical {
		out = append(out, NormalizeOne(Medical, r))
	}
	for _, r := range src.Markets {
		out = append(out, NormalizeOne(Market, r))
	}
	for _, r := range src.Welfare {
		out = append(out, NormalizeOne(Welfare, r))
	}
	logger.L().Info("records_normalized",
		"total", len(out),
		"elderly", len(src.Hotspots),
		"medical", len(src.Medical),
		"market", len(src.Markets),
		"welfare", len(src.Welfare),
	)
	return out
}

// NormalizeOne converts a single raw row of the given category.
func NormalizeOne(c Category, raw Raw) Record {
	rec := Record{Category: c, Attributes: raw}
	f, ok := sourceFields[c]
	if !ok {
		return rec
	}
	if v, ok := toFloat(raw[f.lat]); ok {
		rec.Latitude = &v
	}
	for _, k := range f.lng {
		if v, ok := toFloat(raw[k]); ok && v != 0 {
			rec.Longitude = &v
			break
		}
	}
	if c != HotspotArea {
		return rec
	}
	if y, ok := YearKey(raw["accident_id"]); ok {
		rec.YearKey = y
		rec.HasYear = true
	}
	if p, ok := raw["polygon"]; ok && p != nil {
		ring, err := outerRing(p)
		if err != nil {
			logger.L().Debug("record_polygon_invalid", "spot", rec.Label(), "err", err)
		} else {
			rec.Polygon = ring
		}
	}
	return rec
}

// YearKey derives the occurrence year from an accident id: the leading four digits
// name the reporting year, one after the accidents happened.
func YearKey(id any) (int, bool) {
	s := toString(id)
	if len(s) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, false
	}
	return y - 1, true
}

// outerRing reads a GeoJSON Polygon or MultiPolygon and keeps the first outer ring.
func outerRing(v any) (orb.Ring, error) {
	var b []byte
	if s, ok := v.(string); ok {
		b = []byte(s)
	} else {
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	g, err := geojson.UnmarshalGeometry(b)
	if err != nil {
		return nil, err
	}
	switch geom := g.Coordinates.(type) {
	case orb.Polygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0], nil
		}
	case orb.MultiPolygon:
		if len(geom) > 0 && len(geom[0]) > 0 && len(geom[0][0]) > 0 {
			return geom[0][0], nil
		}
	}
	return nil, nil
}
