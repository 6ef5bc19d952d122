package filter

import (
	"hotspot-map/internal/record"
)

// Evaluate returns the records visible under s, in input order.
// It never mutates records or s and returns the same subset for the same inputs.
func Evaluate(records []record.Record, s State) []record.Record {
	years := make(map[int]struct{}, len(s.SelectedYears))
	for _, y := range s.SelectedYears {
		years[y] = struct{}{}
	}
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if Visible(r, s, years) {
			out = append(out, r)
		}
	}
	return out
}

// Visible applies the per-record rules. years is the set form of s.SelectedYears;
// pass nil to have it derived from s.
func Visible(r record.Record, s State, years map[int]struct{}) bool {
	switch r.Category {
	case record.Medical:
		return s.ShowMedical
	case record.Market:
		return s.ShowMarket
	case record.Welfare:
		return s.ShowWelfare
	case record.HotspotArea:
		if len(s.SelectedYears) == 0 || !r.HasYear {
			return false
		}
		if years == nil {
			return s.HasYear(r.YearKey)
		}
		_, ok := years[r.YearKey]
		return ok
	}
	return true
}

// Counts tallies records per category.
type Counts struct {
	Total   int `json:"total"`
	Elderly int `json:"elderly"`
	Medical int `json:"medical"`
	Market  int `json:"market"`
	Welfare int `json:"welfare"`
}

func Count(records []record.Record) Counts {
	var c Counts
	for _, r := range records {
		c.Total++
		switch r.Category {
		case record.HotspotArea:
			c.Elderly++
		case record.Medical:
			c.Medical++
		case record.Market:
			c.Market++
		case record.Welfare:
			c.Welfare++
		}
	}
	return c
}
