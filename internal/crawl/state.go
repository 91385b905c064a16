package crawl

import "time"

// State is the lifecycle position of a crawl job.
type State int

const (
	Idle State = iota
	Searching
	Listing
	Detailing
	Draining
	Done
	Failed
)

var stateNames = [...]string{"idle", "searching", "listing", "detailing", "draining", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// CanTransition reports whether a job may move from s to next. States only
// move forward; any non-terminal state may fail.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == Failed {
		return true
	}
	return next > s && next <= Done
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
