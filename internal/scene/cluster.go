package scene

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"hotspot-map/internal/surface"
)

const (
	// Kakao level 1 is roughly web zoom 19; each level up halves the scale.
	zoomAtLevelZero = 19
	gridSizePx      = 60
	tileSizePx      = 256
	earthCircumM    = 2 * math.Pi * 6378137
)

// metersPerPixel at the Web Mercator zoom matching a map level.
func metersPerPixel(level int) float64 {
	z := float64(zoomAtLevelZero - level)
	return earthCircumM / (tileSizePx * math.Pow(2, z))
}

func toMercator(p surface.LatLng) orb.Point {
	return project.WGS84.ToMercator(orb.Point{p.Lng, p.Lat})
}

func fromMercator(p orb.Point) surface.LatLng {
	w := project.Mercator.ToWGS84(p)
	return surface.LatLng{Lat: w[1], Lng: w[0]}
}

func approxBounds(center surface.LatLng, level, w, h int) surface.Bounds {
	c := toMercator(center)
	res := metersPerPixel(level)
	dx, dy := float64(w)/2*res, float64(h)/2*res
	sw := fromMercator(orb.Point{c[0] - dx, c[1] - dy})
	ne := fromMercator(orb.Point{c[0] + dx, c[1] + dy})
	if sw.Lng < -180 {
		sw.Lng = -180
	}
	if ne.Lng > 180 {
		ne.Lng = 180
	}
	return surface.Bounds{SW: sw, NE: ne}
}

// ClusterView is one badge drawn for a group of markers.
type ClusterView struct {
	Center    surface.LatLng       `json:"center"`
	Count     int                  `json:"count"`
	Tier      int                  `json:"tier"`
	Style     surface.ClusterStyle `json:"style"`
	MarkerIDs []string             `json:"markerIds"`
}

type cell struct{ x, y int64 }

// groups buckets members into a pixel grid at the current level. Cells holding at least
// MinClusterSize markers become clusters; the rest are returned as singles. Both lists
// follow the members' creation order.
func (c *clusterer) groups(level int) (clusters []ClusterView, singles []*marker) {
	if !c.opts.Active(level) {
		return nil, append(singles, c.members...)
	}
	res := metersPerPixel(level)
	size := gridSizePx * res
	buckets := make(map[cell][]*marker)
	var order []cell
	for _, m := range c.members {
		p := toMercator(m.pos)
		k := cell{int64(math.Floor(p[0] / size)), int64(math.Floor(p[1] / size))}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], m)
	}
	minSize := c.opts.MinClusterSize
	if minSize < 1 {
		minSize = 2
	}
	for _, k := range order {
		ms := buckets[k]
		if len(ms) < minSize {
			singles = append(singles, ms...)
			continue
		}
		clusters = append(clusters, c.view(ms))
	}
	sort.SliceStable(singles, func(i, j int) bool { return singles[i].seq < singles[j].seq })
	return clusters, singles
}

func (c *clusterer) view(ms []*marker) ClusterView {
	v := ClusterView{Count: len(ms), Tier: c.opts.Tier(len(ms)), Center: ms[0].pos}
	if c.opts.AverageCenter {
		var lat, lng float64
		for _, m := range ms {
			lat += m.pos.Lat
			lng += m.pos.Lng
		}
		n := float64(len(ms))
		v.Center = surface.LatLng{Lat: lat / n, Lng: lng / n}
	}
	if len(c.opts.Styles) > 0 {
		i := v.Tier
		if i >= len(c.opts.Styles) {
			i = len(c.opts.Styles) - 1
		}
		v.Style = c.opts.Styles[i]
	}
	v.MarkerIDs = make([]string, len(ms))
	for i, m := range ms {
		v.MarkerIDs[i] = m.id
	}
	return v
}
