package engine

import (
	"fmt"
	"strings"
)

// Status is the termination outcome reported by an engine. Positive values
// are successful terminations, negative values failures.
type Status int

const (
	Unknown         Status = 0
	Success         Status = 1
	StopvalReached  Status = 2
	FtolReached     Status = 3
	XtolReached     Status = 4
	MaxevalReached  Status = 5
	MaxtimeReached  Status = 6
	Failure         Status = -1
	InvalidArgs     Status = -2
	OutOfMemory     Status = -3
	RoundoffLimited Status = -4
	ForcedStop      Status = -5
)

var statusNames = map[Status]string{
	Unknown:         "UNKNOWN",
	Success:         "SUCCESS",
	StopvalReached:  "STOPVAL_REACHED",
	FtolReached:     "FTOL_REACHED",
	XtolReached:     "XTOL_REACHED",
	MaxevalReached:  "MAXEVAL_REACHED",
	MaxtimeReached:  "MAXTIME_REACHED",
	Failure:         "FAILURE",
	InvalidArgs:     "INVALID_ARGS",
	OutOfMemory:     "OUT_OF_MEMORY",
	RoundoffLimited: "ROUNDOFF_LIMITED",
	ForcedStop:      "FORCED_STOP",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// OK reports whether s is a successful termination.
func (s Status) OK() bool { return s > 0 }

// LimitReached reports whether the run stopped on an evaluation or time budget.
func (s Status) LimitReached() bool { return s == MaxevalReached || s == MaxtimeReached }

// ParseStatus maps an engine status name back to a Status. Unrecognized
// names give Unknown.
func ParseStatus(name string) Status {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == name {
			return s
		}
	}
	return Unknown
}

// MarshalText encodes s by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
