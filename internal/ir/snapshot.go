package ir

import "fmt"

// Edge selects which pin transitions trigger a watch.
type Edge string

const (
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
	EdgeBoth    Edge = "both"
)

// ParseEdge accepts the script spellings of an edge policy. An empty
// string means both edges. Numeric forms 1, -1 and 0 are also accepted.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising", "1":
		return EdgeRising, nil
	case "falling", "-1":
		return EdgeFalling, nil
	case "both", "", "0":
		return EdgeBoth, nil
	}
	return "", fmt.Errorf("unknown edge %q (expected rising, falling or both)", s)
}

// TimerRecord is one persisted timer. Remaining is relative to the
// snapshot's Tick.
type TimerRecord struct {
	ID        int64   `json:"id"`
	Remaining int64   `json:"remaining"`
	Interval  int64   `json:"interval"`
	Recurring bool    `json:"recurring"`
	Callback  *Target `json:"callback"`
	Watch     int64   `json:"watch,omitempty"` // ID of the watch this timer debounces
}

// WatchRecord is one persisted watch.
type WatchRecord struct {
	ID        int64   `json:"id"`
	Pin       int     `json:"pin"`
	Edge      Edge    `json:"edge"`
	Recurring bool    `json:"recurring"`
	Debounce  int64   `json:"debounce"`
	Callback  *Target `json:"callback"`
	LastFire  int64   `json:"last_fire"`
	Fired     bool    `json:"fired"`
	LastLevel bool    `json:"last_level"`
}

// Snapshot is the scheduler's table state at one instant, in insertion order.
type Snapshot struct {
	ID      string        `json:"id,omitempty"`
	Tick    int64         `json:"tick"`
	Timers  []TimerRecord `json:"timers"`
	Watches []WatchRecord `json:"watches"`
}
