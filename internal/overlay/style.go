package overlay

import (
	"net/url"
	"strings"

	"hotspot-map/internal/record"
	"hotspot-map/internal/surface"
)

// Glyph names the marker shape drawn for a category.
type Glyph string

const (
	GlyphPin    Glyph = "pin"
	GlyphCross  Glyph = "cross"
	GlyphBasket Glyph = "basket"
	GlyphPeople Glyph = "people"
)

// Style is one row of the category table.
type Style struct {
	Stroke string
	Fill   string
	Glyph  Glyph
}

var styles = map[record.Category]Style{
	record.HotspotArea: {Stroke: "#3366FF", Fill: "#3366FF", Glyph: GlyphPin},
	record.Medical:     {Stroke: "#FF3366", Fill: "#FF3366", Glyph: GlyphCross},
	record.Market:      {Stroke: "#FF9933", Fill: "#FF9933", Glyph: GlyphBasket},
	record.Welfare:     {Stroke: "#33CC66", Fill: "#33CC66", Glyph: GlyphPeople},
}

var fallbackStyle = Style{Stroke: "#3366FF", Fill: "#3366FF", Glyph: GlyphPin}

// StyleFor looks up the category row; unknown categories get a blue pin.
func StyleFor(c record.Category) Style {
	if s, ok := styles[c]; ok {
		return s
	}
	return fallbackStyle
}

// {fill} is replaced with the row's fill color
var glyphSVG = map[Glyph]string{
	GlyphCross: `<svg width="40" height="40" viewBox="0 0 40 40" xmlns="http://www.w3.org/2000/svg">` +
		`<circle cx="20" cy="20" r="18" fill="{fill}" stroke="#ffffff" stroke-width="3"/>` +
		`<path d="M20 8 L20 32 M8 20 L32 20" stroke="#ffffff" stroke-width="5" stroke-linecap="round"/></svg>`,
	GlyphBasket: `<svg width="40" height="40" viewBox="0 0 40 40" xmlns="http://www.w3.org/2000/svg">` +
		`<circle cx="20" cy="20" r="18" fill="{fill}" stroke="#ffffff" stroke-width="3"/>` +
		`<path d="M12 15 L28 15 L26 30 L14 30 Z" fill="#ffffff" stroke="#ffffff" stroke-width="1"/>` +
		`<path d="M15 15 L15 12 C15 10 17 10 17 12 L17 15" stroke="#ffffff" stroke-width="2" fill="none"/>` +
		`<path d="M23 15 L23 12 C23 10 25 10 25 12 L25 15" stroke="#ffffff" stroke-width="2" fill="none"/></svg>`,
	GlyphPeople: `<svg width="40" height="40" viewBox="0 0 40 40" xmlns="http://www.w3.org/2000/svg">` +
		`<circle cx="20" cy="20" r="18" fill="{fill}" stroke="#ffffff" stroke-width="3"/>` +
		`<circle cx="15" cy="15" r="3" fill="#ffffff"/>` +
		`<path d="M10 25 C10 22 12 20 15 20 C18 20 20 22 20 25" stroke="#ffffff" stroke-width="2" fill="none"/>` +
		`<circle cx="25" cy="15" r="3" fill="#ffffff"/>` +
		`<path d="M20 25 C20 22 22 20 25 20 C28 20 30 22 30 25" stroke="#ffffff" stroke-width="2" fill="none"/></svg>`,
	GlyphPin: `<svg width="32" height="40" viewBox="0 0 32 40" xmlns="http://www.w3.org/2000/svg">` +
		`<path d="M16 0C7.163 0 0 7.163 0 16c0 8.837 16 24 16 24s16-15.163 16-24C32 7.163 24.837 0 16 0z" fill="{fill}" stroke="#ffffff" stroke-width="2"/>` +
		`<circle cx="16" cy="16" r="6" fill="#ffffff"/></svg>`,
}

// MarkerImage renders the row's glyph as an SVG data URL, 40x40 centered on the point.
func (s Style) MarkerImage() *surface.MarkerImage {
	svg := strings.ReplaceAll(glyphSVG[s.Glyph], "{fill}", s.Fill)
	enc := strings.ReplaceAll(url.QueryEscape(svg), "+", "%20")
	return &surface.MarkerImage{
		URL:     "data:image/svg+xml," + enc,
		Width:   40,
		Height:  40,
		OffsetX: 20,
		OffsetY: 20,
	}
}

// Polygon options for a hotspot region in this style.
func (s Style) PolygonOptions(path []surface.LatLng) surface.PolygonOptions {
	return surface.PolygonOptions{
		Path:          path,
		StrokeWeight:  2,
		StrokeColor:   s.Stroke,
		StrokeOpacity: 0.8,
		FillColor:     s.Fill,
		FillOpacity:   0.3,
	}
}

func clusterStyle(size, font, border int, shadow string) surface.ClusterStyle {
	return surface.ClusterStyle{
		Width:       size,
		Height:      size,
		Background:  styles[record.HotspotArea].Fill,
		Color:       "#fff",
		FontSize:    font,
		BorderWidth: border,
		Shadow:      shadow,
	}
}

// DefaultClusterer is the hotspot clustering group: pairs and up cluster, three badge
// tiers split at 10 and 100, active from level 5 outward.
func DefaultClusterer() surface.ClustererOptions {
	return surface.ClustererOptions{
		AverageCenter:    true,
		MinLevel:         5,
		MinClusterSize:   2,
		DisableClickZoom: false,
		Calculator:       []int{10, 100},
		Styles: []surface.ClusterStyle{
			clusterStyle(50, 16, 3, "0 2px 6px rgba(0,0,0,0.3)"),
			clusterStyle(60, 18, 3, "0 3px 8px rgba(0,0,0,0.4)"),
			clusterStyle(70, 20, 4, "0 4px 10px rgba(0,0,0,0.5)"),
		},
	}
}
