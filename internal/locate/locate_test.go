package locate

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"

	"hotspot-map/internal/surface"
)

type fakeReader map[string]*geoip2.City

func (f fakeReader) City(ip net.IP) (*geoip2.City, error) {
	if c, ok := f[ip.String()]; ok {
		return c, nil
	}
	return nil, errors.New("not found")
}

func (f fakeReader) Close() error { return nil }

func city(iso string, lat, lng float64) *geoip2.City {
	c := &geoip2.City{}
	c.Country.IsoCode = iso
	c.Location.Latitude = lat
	c.Location.Longitude = lng
	return c
}

func TestInitial(t *testing.T) {
	l := &Locator{db: fakeReader{
		"211.234.1.1": city("KR", 35.1796, 129.0756),
		"8.8.8.8":     city("US", 37.751, -97.822),
		"1.1.1.1":     city("KR", 0, 0),
	}}
	tests := []struct {
		ip   string
		want surface.MapOptions
	}{
		{"211.234.1.1", surface.MapOptions{Center: surface.LatLng{Lat: 35.1796, Lng: 129.0756}, Level: CityLevel}},
		{"8.8.8.8", Default()},
		{"1.1.1.1", Default()},
		{"10.0.0.1", Default()},
		{"not-an-ip", Default()},
	}
	for _, tc := range tests {
		if got := l.Initial(tc.ip); got != tc.want {
			t.Errorf("Initial(%s) = %+v, want %+v", tc.ip, got, tc.want)
		}
	}
}

func TestNoDatabase(t *testing.T) {
	var nilLocator *Locator
	if got := nilLocator.Initial("211.234.1.1"); got != Default() {
		t.Fatalf("nil locator = %+v", got)
	}
	l, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Initial("211.234.1.1"); got != Default() {
		t.Fatalf("empty locator = %+v", got)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
