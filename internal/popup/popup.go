// Package popup builds info-window content for clicked markers and regions.
package popup

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"hotspot-map/internal/record"
	"hotspot-map/internal/surface"
)

const (
	MaxNameRunes    = 40
	MaxAddressRunes = 50
)

const (
	boxOpen   = `<div style="padding:10px;width:250px;max-height:200px;overflow:hidden;color:#000;white-space:normal;word-break:break-all;box-sizing:border-box;">`
	boxClose  = `</div>`
	titleTmpl = `<strong style="display:block;margin-bottom:5px;font-size:13px;line-height:1.3;%s">%s</strong>`
	bodyOpen  = `<div style="font-size:11px;line-height:1.4;">`
)

var labels = map[record.Category]string{
	record.HotspotArea: "[사고다발지역]",
	record.Medical:     "[의료기관]",
	record.Market:      "[전통시장]",
	record.Welfare:     "[사회복지관]",
}

// Label is the bracketed category tag shown at the top of a popup.
func Label(c record.Category) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return "[위치]"
}

// Truncate cuts s to max runes and appends "..." when it was longer.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

func title(color, text string) string {
	style := ""
	if color != "" {
		style = "color:" + color + ";"
	}
	return fmt.Sprintf(titleTmpl, style, text)
}

// HotspotSummary is the region popup: tag, spot name and accident statistics.
// Empty when the record has no spot name.
func HotspotSummary(r record.Record, color string) string {
	name := r.Str("spot_name")
	if name == "" {
		return boxOpen + boxClose
	}
	var b strings.Builder
	b.WriteString(boxOpen)
	b.WriteString(title(color, Label(record.HotspotArea)))
	writeHotspotBody(&b, r, name)
	b.WriteString(boxClose)
	return b.String()
}

func writeHotspotBody(b *strings.Builder, r record.Record, name string) {
	b.WriteString(title("", html.EscapeString(Truncate(name, MaxNameRunes))))
	b.WriteString(bodyOpen)
	fmt.Fprintf(b, "사고 건수: %s건<br>", stat(r, "accident_count"))
	fmt.Fprintf(b, "사상자: %s명<br>", stat(r, "casualties"))
	fmt.Fprintf(b, "사망: %s명<br>", stat(r, "deaths"))
	fmt.Fprintf(b, "중상: %s명", stat(r, "serious_injuries"))
	b.WriteString(boxClose)
}

func stat(r record.Record, key string) string {
	if n, ok := r.Int(key); ok {
		return fmt.Sprint(n)
	}
	return "-"
}

// ForRecord is the marker popup. Hotspots show statistics, named facilities show
// name, address and type, anything else its raw coordinates.
func ForRecord(r record.Record, color string) string {
	var b strings.Builder
	b.WriteString(boxOpen)
	b.WriteString(title(color, Label(r.Category)))
	switch {
	case r.Str("spot_name") != "":
		writeHotspotBody(&b, r, r.Str("spot_name"))
	case r.Str("name") != "":
		b.WriteString(title("", html.EscapeString(Truncate(r.Str("name"), MaxNameRunes))))
		b.WriteString(bodyOpen)
		if addr := r.Str("address"); addr != "" {
			fmt.Fprintf(&b, "주소: %s<br>", html.EscapeString(Truncate(addr, MaxAddressRunes)))
		}
		if typ := r.Str("type"); typ != "" {
			fmt.Fprintf(&b, "유형: %s", html.EscapeString(typ))
		}
		b.WriteString(boxClose)
	default:
		b.WriteString(title("", "위치 정보"))
		b.WriteString(bodyOpen)
		if p, ok := r.Position(); ok {
			fmt.Fprintf(&b, "위도: %.6f<br>경도: %.6f", p.Lat, p.Lng)
		}
		b.WriteString(boxClose)
	}
	b.WriteString(boxClose)
	return b.String()
}

// Centroid is the display anchor of a (lng, lat) ring: its area centroid, or the first
// vertex when the ring is degenerate. ok is false only for an empty ring.
func Centroid(ring orb.Ring) (surface.LatLng, bool) {
	if len(ring) == 0 {
		return surface.LatLng{}, false
	}
	first := surface.LatLng{Lat: ring[0][1], Lng: ring[0][0]}
	if len(ring) < 3 {
		return first, true
	}
	c, area := planar.CentroidArea(orb.Polygon{ring})
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return first, true
	}
	p := surface.LatLng{Lat: c[1], Lng: c[0]}
	if !p.Valid() {
		return first, true
	}
	return p, true
}

// Path converts a ring into surface coordinates.
func Path(ring orb.Ring) []surface.LatLng {
	out := make([]surface.LatLng, len(ring))
	for i, pt := range ring {
		out[i] = surface.LatLng{Lat: pt[1], Lng: pt[0]}
	}
	return out
}
