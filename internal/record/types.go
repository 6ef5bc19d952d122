// Package record: the uniform spatial record every data source is normalized into.
package record

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"hotspot-map/internal/surface"
)

// Category tags the source collection a record came from.
type Category int

const (
	Unknown Category = iota
	HotspotArea
	Medical
	Market
	Welfare
)

// wire names match the dataType tags the browser already uses
var categoryNames = map[Category]string{
	HotspotArea: "elderly",
	Medical:     "medical",
	Market:      "market",
	Welfare:     "welfare",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

func ParseCategory(s string) Category {
	for c, name := range categoryNames {
		if strings.EqualFold(s, name) {
			return c
		}
	}
	return Unknown
}

func (c Category) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}

// Categories lists the known categories in normalization order.
func Categories() []Category { return []Category{HotspotArea, Medical, Market, Welfare} }

var ErrMissingCoordinate = errors.New("record has no usable coordinate")

// Raw is one decoded source row; numbers are json.Number when decoded by the dataset package.
type Raw = map[string]any

// Record is the uniform spatial record.
// Only HotspotArea records carry a year key or a polygon.
type Record struct {
	Category   Category       `json:"category"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	Polygon    orb.Ring       `json:"polygon,omitempty"`
	YearKey    int            `json:"yearKey,omitempty"`
	HasYear    bool           `json:"-"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Position validates the coordinate pair. Zero is treated as missing because the
// source exports use 0 for unknown positions.
func (r Record) Position() (surface.LatLng, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return surface.LatLng{}, false
	}
	p := surface.LatLng{Lat: *r.Latitude, Lng: *r.Longitude}
	if p.Lat == 0 || p.Lng == 0 {
		return surface.LatLng{}, false
	}
	if !p.Valid() {
		return surface.LatLng{}, false
	}
	return p, true
}

// Str returns a string attribute; numbers are formatted, anything else is empty.
func (r Record) Str(key string) string {
	return toString(r.Attributes[key])
}

// Int returns an integer attribute and whether it was present and numeric.
func (r Record) Int(key string) (int, bool) {
	f, ok := toFloat(r.Attributes[key])
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Label is the display name used in logs: spot_name for hotspots, name otherwise.
func (r Record) Label() string {
	if s := r.Str("spot_name"); s != "" {
		return s
	}
	return r.Str("name")
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
