// Package filter: the declarative filter state and the pure evaluator that turns it into
// the visible subset of records.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataSource selects how hotspot areas are drawn.
type DataSource int

const (
	// RecordBased draws hotspots from records (markers, polygons, clustering).
	RecordBased DataSource = iota
	// RasterOverlay draws hotspots only through the remote WMS image.
	RasterOverlay
	// Both runs record rendering and the raster overlay side by side.
	Both
)

var dataSourceNames = [...]string{RecordBased: "json", RasterOverlay: "wms", Both: "both"}

func (d DataSource) String() string {
	if int(d) < len(dataSourceNames) && d >= 0 {
		return dataSourceNames[d]
	}
	return "json"
}

func ParseDataSource(s string) (DataSource, error) {
	for i, n := range dataSourceNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return DataSource(i), nil
		}
	}
	return RecordBased, fmt.Errorf("unknown data source %q", s)
}

// UsesRaster reports whether the raster overlay participates.
func (d DataSource) UsesRaster() bool { return d == RasterOverlay || d == Both }

// UsesRecords reports whether hotspot records are drawn as markers.
func (d DataSource) UsesRecords() bool { return d == RecordBased || d == Both }

func (d DataSource) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *DataSource) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDataSource(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

const (
	FirstYear = 2012
	LastYear  = 2024
)

// Years is the selectable year range, newest first, as the panel lists it.
func Years() []int {
	out := make([]int, 0, LastYear-FirstYear+1)
	for y := LastYear; y >= FirstYear; y-- {
		out = append(out, y)
	}
	return out
}

// State is one filter-panel value. It is replaced wholesale on every change;
// the With* helpers return fresh copies and never alias the receiver's slice.
type State struct {
	SelectedYears []int      `json:"selectedYears"`
	ShowMedical   bool       `json:"showMedical"`
	ShowMarket    bool       `json:"showMarket"`
	ShowWelfare   bool       `json:"showWelfare"`
	DataSource    DataSource `json:"dataSource"`
}

// Default is the initial panel value: latest year, all facilities, record-based.
func Default() State {
	return State{
		SelectedYears: []int{LastYear},
		ShowMedical:   true,
		ShowMarket:    true,
		ShowWelfare:   true,
		DataSource:    RecordBased,
	}
}

// Normalize drops duplicate years, keeping first occurrences in order.
func (s State) Normalize() State {
	seen := make(map[int]struct{}, len(s.SelectedYears))
	years := make([]int, 0, len(s.SelectedYears))
	for _, y := range s.SelectedYears {
		if _, dup := seen[y]; dup {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	s.SelectedYears = years
	return s
}

func (s State) HasYear(y int) bool {
	for _, v := range s.SelectedYears {
		if v == y {
			return true
		}
	}
	return false
}

// PrimaryYear is the first selected year; it alone drives the raster overlay.
func (s State) PrimaryYear() (int, bool) {
	if len(s.SelectedYears) == 0 {
		return 0, false
	}
	return s.SelectedYears[0], true
}

func (s State) WithYears(years ...int) State {
	s.SelectedYears = append([]int(nil), years...)
	return s.Normalize()
}

// ToggleYear adds or removes y; the panel keeps its selection sorted newest first.
func (s State) ToggleYear(y int) State {
	out := make([]int, 0, len(s.SelectedYears)+1)
	found := false
	for _, v := range s.SelectedYears {
		if v == y {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, y)
		for i := len(out) - 1; i > 0 && out[i] > out[i-1]; i-- {
			out[i], out[i-1] = out[i-1], out[i]
		}
	}
	s.SelectedYears = out
	return s
}

func (s State) WithAllYears() State { return s.WithYears(Years()...) }

func (s State) WithoutYears() State {
	s.SelectedYears = []int{}
	return s
}

func (s State) WithDataSource(d DataSource) State {
	s.DataSource = d
	s.SelectedYears = append([]int(nil), s.SelectedYears...)
	return s
}

func (s State) Equal(o State) bool {
	if s.ShowMedical != o.ShowMedical || s.ShowMarket != o.ShowMarket ||
		s.ShowWelfare != o.ShowWelfare || s.DataSource != o.DataSource ||
		len(s.SelectedYears) != len(o.SelectedYears) {
		return false
	}
	for i := range s.SelectedYears {
		if s.SelectedYears[i] != o.SelectedYears[i] {
			return false
		}
	}
	return true
}
