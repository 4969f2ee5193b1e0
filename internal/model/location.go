package model

import (
	"fmt"
	"strings"
)

// Location identifies the process a log recorder lives in.
type Location int

const (
	LocationClient Location = iota
	LocationServer
	LocationDataServer
	LocationRenderServer
)

var locationNames = [...]struct {
	key     string
	display string
}{
	LocationClient:       {"client", "Client"},
	LocationServer:       {"server", "Server"},
	LocationDataServer:   {"data-server", "Data Server"},
	LocationRenderServer: {"render-server", "Render Server"},
}

// Locations returns every location in declaration order.
func Locations() []Location {
	return []Location{LocationClient, LocationServer, LocationDataServer, LocationRenderServer}
}

// Valid reports whether l is one of the declared locations.
func (l Location) Valid() bool {
	return l >= LocationClient && l <= LocationRenderServer
}

// String returns the machine form used in config keys and socket names.
func (l Location) String() string {
	if !l.Valid() {
		return fmt.Sprintf("location(%d)", int(l))
	}
	return locationNames[l].key
}

// DisplayName returns the operator-facing name, e.g. "Data Server".
func (l Location) DisplayName() string {
	if !l.Valid() {
		return l.String()
	}
	return locationNames[l].display
}

// ParseLocation accepts either the machine or the display form, case-insensitively.
func ParseLocation(s string) (Location, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, l := range Locations() {
		if norm == locationNames[l].key {
			return l, nil
		}
	}
	if norm == "servers" {
		return LocationServer, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLocation, s)
}

func (l Location) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLocation, int(l))
	}
	return []byte(l.String()), nil
}

func (l *Location) UnmarshalText(text []byte) error {
	parsed, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
