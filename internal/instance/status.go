package instance

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of an instance. The numeric values match the
// ones persisted by the registry backends.
type Status int

const (
	StatusUnknown Status = -1
	StatusUp      Status = 0
	StatusOffline Status = 1
	StatusDown    Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	case StatusOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus accepts either the persisted decimal form or the name.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		s := Status(n)
		switch s {
		case StatusUp, StatusDown, StatusOffline, StatusUnknown:
			return s, nil
		}
		return StatusUnknown, fmt.Errorf("unknown status value %d", n)
	}

	switch strings.ToUpper(raw) {
	case "UP":
		return StatusUp, nil
	case "DOWN":
		return StatusDown, nil
	case "OFFLINE":
		return StatusOffline, nil
	case "UNKNOWN", "":
		return StatusUnknown, nil
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", raw)
}

// Encode returns the persisted decimal form.
func (s Status) Encode() string {
	return strconv.Itoa(int(s))
}
