package model

import "fmt"

// StreamKey identifies one rank's log stream within a recorder.
type StreamKey struct {
	Location Location
	Rank     int
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s/%d", k.Location, k.Rank)
}

// Title is the pane caption, e.g. "Data Server - Rank 2".
func (k StreamKey) Title() string {
	return fmt.Sprintf("%s - Rank %d", k.Location.DisplayName(), k.Rank)
}

// Entry is one log event delivered by a rank to its process recorder.
type Entry struct {
	Rank      int       `json:"rank"`
	Category  Category  `json:"category"`
	Verbosity Verbosity `json:"level"`
	Message   string    `json:"message"`
	Thread    string    `json:"thread,omitempty"`
	// Uptime is the rank's own clock in seconds. Nil means the recorder
	// stamps the entry with its own uptime.
	Uptime *float64 `json:"uptime,omitempty"`
}

// RecorderInfo describes a recorder's identity.
type RecorderInfo struct {
	Location  Location `json:"location"`
	RankCount int      `json:"rank_count"`
}

// RecorderStatus is a point-in-time view of a recorder's thresholds.
type RecorderStatus struct {
	Location  Location               `json:"location" yaml:"location"`
	RankCount int                    `json:"rank_count" yaml:"rank_count"`
	Verbosity Verbosity              `json:"verbosity" yaml:"verbosity"`
	Overrides map[Category]Verbosity `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}
