// Package visit describes visitor log entries and how request metadata is
// reduced to them.
package visit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MobileBreakpoint is the viewport width below which a visit counts as mobile.
const MobileBreakpoint = 768

const (
	// MaxEntries caps the stored log; older entries are dropped.
	MaxEntries = 1000
	// DefaultLimit is how many entries a listing returns when none is asked for.
	DefaultLimit = 100
)

const (
	DeviceMobile  = "Mobile"
	DeviceDesktop = "Desktop"
	Unknown       = "Unknown"
)

// Geo headers set by the edge proxy in front of the API.
const (
	HeaderCountry = "X-Vercel-IP-Country"
	HeaderCity    = "X-Vercel-IP-City"
)

// Entry is one logged page view.
type Entry struct {
	ID        string    `json:"id,omitempty"`
	IP        string    `json:"ip"`
	Location  string    `json:"location"`
	Path      string    `json:"path"`
	UserAgent string    `json:"userAgent"`
	Device    string    `json:"device"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is what the browser sends.
type Report struct {
	Path        string `json:"path"`
	UserAgent   string `json:"userAgent"`
	ScreenWidth *int   `json:"screenWidth,omitempty"`
}

// DeviceClass buckets a viewport width. An unknown width counts as desktop.
func DeviceClass(screenWidth *int) string {
	if screenWidth != nil && *screenWidth < MobileBreakpoint {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Location formats "City, Country", falling back to the country alone.
func Location(city, country string) string {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	if city != "" && country != "" {
		return city + ", " + country
	}
	if country != "" {
		return country
	}
	return Unknown
}

// ClientIP returns the first X-Forwarded-For hop, else the remote address
// without its port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FromRequest builds an Entry from a report and the request that carried it.
func FromRequest(r *http.Request, report Report, now time.Time) Entry {
	path := report.Path
	if path == "" {
		path = "/"
	}
	userAgent := report.UserAgent
	if userAgent == "" {
		userAgent = Unknown
	}
	return Entry{
		ID:        uuid.NewString(),
		IP:        ClientIP(r),
		Location:  Location(r.Header.Get(HeaderCity), r.Header.Get(HeaderCountry)),
		Path:      path,
		UserAgent: userAgent,
		Device:    DeviceClass(report.ScreenWidth),
		Timestamp: now.UTC(),
	}
}
