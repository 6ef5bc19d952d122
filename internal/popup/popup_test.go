package popup

import (
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"hotspot-map/internal/record"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 40, "short"},
		{"abcdef", 3, "abc..."},
		{"서울특별시 종로구", 5, "서울특별시..."},
		{"exact", 5, "exact"},
		{"x", 0, ""},
	}
	for _, tc := range tests {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q,%d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestForRecordHotspot(t *testing.T) {
	r := record.Record{Category: record.HotspotArea, Attributes: map[string]any{
		"spot_name": "종로3가역 부근", "accident_count": 7.0, "casualties": 8.0, "deaths": 1.0, "serious_injuries": 3.0,
	}}
	got := ForRecord(r, "#3366FF")
	for _, want := range []string{"[사고다발지역]", "종로3가역 부근", "사고 건수: 7건", "사상자: 8명", "사망: 1명", "중상: 3명", "color:#3366FF;"} {
		if !strings.Contains(got, want) {
			t.Errorf("popup missing %q:\n%s", want, got)
		}
	}
}

func TestForRecordFacilityTruncatesAndEscapes(t *testing.T) {
	long := strings.Repeat("가", 60)
	r := record.Record{Category: record.Medical, Attributes: map[string]any{
		"name": "<b>병원</b>", "address": long, "type": "의원",
	}}
	got := ForRecord(r, "#FF3366")
	if strings.Contains(got, "<b>병원") {
		t.Error("name was not escaped")
	}
	if !strings.Contains(got, strings.Repeat("가", MaxAddressRunes)+"...") {
		t.Error("address not truncated to 50 runes")
	}
	if strings.Contains(got, strings.Repeat("가", MaxAddressRunes+1)) {
		t.Error("address longer than 50 runes")
	}
	if !strings.Contains(got, "유형: 의원") || !strings.Contains(got, "[의료기관]") {
		t.Errorf("unexpected popup: %s", got)
	}
}

func TestForRecordCoordinatesFallback(t *testing.T) {
	lat, lng := 37.1234567, 127.7654321
	r := record.Record{Category: record.Welfare, Latitude: &lat, Longitude: &lng}
	got := ForRecord(r, "")
	if !strings.Contains(got, "위도: 37.123457") || !strings.Contains(got, "경도: 127.765432") {
		t.Fatalf("coordinate fallback missing: %s", got)
	}
}

func TestHotspotSummaryWithoutName(t *testing.T) {
	got := HotspotSummary(record.Record{Category: record.HotspotArea}, "#3366FF")
	if strings.Contains(got, "사고 건수") {
		t.Fatalf("summary for unnamed spot should be empty: %s", got)
	}
}

func TestCentroid(t *testing.T) {
	square := orb.Ring{{127, 37}, {128, 37}, {128, 38}, {127, 38}, {127, 37}}
	c, ok := Centroid(square)
	if !ok || math.Abs(c.Lat-37.5) > 1e-9 || math.Abs(c.Lng-127.5) > 1e-9 {
		t.Fatalf("Centroid(square) = %v,%v", c, ok)
	}

	line := orb.Ring{{127, 37}, {128, 38}, {127, 37}}
	c, ok = Centroid(line)
	if !ok || c.Lat != 37 || c.Lng != 127 {
		t.Fatalf("degenerate ring should fall back to first vertex, got %v", c)
	}

	if _, ok := Centroid(nil); ok {
		t.Fatal("empty ring reported a centroid")
	}
}

func TestPathOrder(t *testing.T) {
	p := Path(orb.Ring{{127.1, 37.2}})
	if p[0].Lat != 37.2 || p[0].Lng != 127.1 {
		t.Fatalf("Path swapped axes: %v", p)
	}
}
