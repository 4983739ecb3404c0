package model

import (
	"fmt"
	"time"
)

// State is a model's lifecycle state. It is held in memory only.
type State int

const (
	StateRegistered State = iota + 1
	StateLoading
	StateReady
	StateLoadFailed
	StateUnloaded
)

var stateNames = map[State]string{
	StateRegistered: "Registered",
	StateLoading:    "Loading",
	StateReady:      "Ready",
	StateLoadFailed: "LoadFailed",
	StateUnloaded:   "Unloaded",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Health labels reported by GetStatus.
const (
	LabelLoading = "loading"
	LabelError   = "error"
	LabelIdle    = "idle"
)

// healthLabel derives the status label from state and latency.
func healthLabel(state State, latency *float64) string {
	switch {
	case state == StateLoadFailed:
		return LabelError
	case state != StateReady:
		return LabelLoading
	case latency == nil:
		return LabelError
	default:
		return LabelIdle
	}
}

// Status is the read-only view of one registered model.
type Status struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`
	Framework string    `json:"framework"`
	Device    string    `json:"device,omitempty"`
	Language  string    `json:"language,omitempty"`
	Logo      string    `json:"logo,omitempty"`
	State     State     `json:"state"`
	Loaded    bool      `json:"loaded"`
	Latency   *float64  `json:"latency"`
	Label     string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
