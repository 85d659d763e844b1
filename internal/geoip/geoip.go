// Package geoip turns a visitor address into a map centre for sessions that open
// without a selected watershed.
package geoip

import (
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
	"github.com/paulmach/orb"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// Locator resolves an IP to a point. The zero Locator resolves nothing.
type Locator struct {
	city *geoip2.Reader
	raw  *maxminddb.Reader
}

// Open loads an mmdb file. MaxMind City databases are read through geoip2; any
// other database type (ipinfo, DB-IP lite and similar location files) falls back to
// the raw reader, which only needs a location.latitude/longitude record. An empty
// path yields a Locator that never resolves, so the feature is optional.
func Open(path string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, err
	}
	kind := raw.Metadata.DatabaseType
	if strings.Contains(kind, "City") {
		city, err := geoip2.FromBytes(b)
		if err == nil {
			_ = raw.Close()
			logger.L().Info("geoip_open", "path", path, "type", kind, "reader", "geoip2")
			return &Locator{city: city}, nil
		}
		logger.L().Debug("geoip_city_fallback", "path", path, "type", kind, "err", err)
	}
	logger.L().Info("geoip_open", "path", path, "type", kind, "reader", "maxminddb")
	return &Locator{raw: raw}, nil
}

// OpenBytes loads any mmdb carrying a location record through the raw reader.
func OpenBytes(b []byte) (*Locator, error) {
	r, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return &Locator{raw: r}, nil
}

type locationRecord struct {
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Locate returns the approximate position of ip. Private and unknown addresses do not resolve.
func (l *Locator) Locate(ip net.IP) (orb.Point, bool) {
	if l == nil || ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return orb.Point{}, false
	}
	var lat, lon float64
	switch {
	case l.city != nil:
		rec, err := l.city.City(ip)
		if err != nil {
			logger.L().Debug("geoip_lookup_error", "ip", ip.String(), "err", err)
			return orb.Point{}, false
		}
		lat, lon = rec.Location.Latitude, rec.Location.Longitude
	case l.raw != nil:
		var rec locationRecord
		if err := l.raw.Lookup(ip, &rec); err != nil {
			logger.L().Debug("geoip_lookup_error", "ip", ip.String(), "err", err)
			return orb.Point{}, false
		}
		lat, lon = rec.Location.Latitude, rec.Location.Longitude
	default:
		return orb.Point{}, false
	}
	if lat == 0 && lon == 0 {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}

// LocateRequest locates the client of r. RemoteAddr is expected to already hold the
// real client address (chi's RealIP middleware).
func (l *Locator) LocateRequest(r *http.Request) (orb.Point, bool) {
	return l.Locate(ClientIP(r))
}

// ClientIP parses the host part of r.RemoteAddr.
func ClientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(strings.Trim(host, "[]"))
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	if l.city != nil {
		return l.city.Close()
	}
	if l.raw != nil {
		return l.raw.Close()
	}
	return nil
}
