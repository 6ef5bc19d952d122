// Package locate picks a session's initial viewport from the visitor's IP.
package locate

import (
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/scene"
	"hotspot-map/internal/surface"
)

// CityLevel is the map level used when a visitor resolves to a Korean city.
const CityLevel = 8

// cityReader is the part of *geoip2.Reader the locator needs.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Locator resolves IPs against a GeoLite2/GeoIP2 City database. A nil Locator, or one
// without a database, always returns the default viewport.
type Locator struct {
	db cityReader
}

// Open loads the database at path. An empty path yields a Locator with no database.
func Open(path string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Locator{db: r}, nil
}

// OpenFromEnv reads GEOIP_DB_PATH; a missing or unreadable file is logged and ignored.
func OpenFromEnv() *Locator {
	path := os.Getenv("GEOIP_DB_PATH")
	if path == "" {
		return &Locator{}
	}
	l, err := Open(path)
	if err != nil {
		logger.L().Warn("geoip_open_error", "path", path, "err", err)
		return &Locator{}
	}
	logger.L().Info("geoip_ready", "path", path)
	return l
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Default is the whole-country viewport.
func Default() surface.MapOptions {
	return surface.MapOptions{Center: scene.DefaultCenter, Level: scene.DefaultLevel}
}

// Initial centers on the visitor's city when the address resolves inside KR with a
// usable location; anything else gets Default.
func (l *Locator) Initial(ip string) surface.MapOptions {
	if l == nil || l.db == nil {
		return Default()
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return Default()
	}
	rec, err := l.db.City(addr)
	if err != nil || rec == nil {
		return Default()
	}
	if rec.Country.IsoCode != "KR" {
		return Default()
	}
	p := surface.LatLng{Lat: rec.Location.Latitude, Lng: rec.Location.Longitude}
	if !p.Valid() || p == (surface.LatLng{}) {
		return Default()
	}
	logger.L().Debug("geoip_initial", "city", rec.City.Names["en"], "lat", p.Lat, "lng", p.Lng)
	return surface.MapOptions{Center: p, Level: CityLevel}
}
