package activity

import (
	"time"
)

// Redis keys and channels used by RedisMirror.
const (
	RedisKeyState  = "photobatch:activity:state"
	RedisChannel   = "photobatch:activity:signals"
	stateRetention = 24 * time.Hour
)

// State is the mirrored activity state of one process.
type State struct {
	// InFlight is the coordinator counter at the time of the last signal.
	InFlight int `json:"in_flight"`

	// Busy is InFlight > 0.
	Busy bool `json:"busy"`

	// LastSignal is the name of the last signal ("begin" or "end").
	LastSignal string `json:"last_signal"`

	// LastChange is when the last signal was observed.
	LastChange time.Time `json:"last_change"`

	// Seq orders states of one process; later changes have higher values.
	Seq uint64 `json:"seq"`
}

// IsStale returns true if the state has not changed for longer than maxAge.
// A busy state that went stale usually means the writer process died.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastChange) > maxAge
}

// IdleFor returns how long the process has been idle, or 0 while busy.
func (s *State) IdleFor() time.Duration {
	if s.Busy {
		return 0
	}
	d := time.Since(s.LastChange)
	if d < 0 {
		return 0
	}
	return d
}
