package services

import "context"

// Location is a coarse IP-derived geography. Either field may be empty when
// the resolver has no data.
type Location struct {
	Country string
	City    string
}

// Locator resolves a client IP to a coarse location for the risk engine and
// notifications. Implementations must be cheap; a lookup failure is treated
// as "unknown", never as an error that blocks login.
type Locator interface {
	Locate(ctx context.Context, ipAddress string) Location
}

// StaticLocator serves a fixed IP-to-location table. It is the default
// resolver in deployments without a GeoIP backend, typically loaded with
// the campus network ranges, and the injectable seam for tests.
type StaticLocator struct {
	entries map[string]Location
}

func NewStaticLocator(entries map[string]Location) *StaticLocator {
	if entries == nil {
		entries = map[string]Location{}
	}
	return &StaticLocator{entries: entries}
}

func (l *StaticLocator) Locate(_ context.Context, ipAddress string) Location {
	return l.entries[ipAddress]
}
