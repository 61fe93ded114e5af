package intel

// Status tags a message (and, through it, a map system) with the kind
// of intel it carries. The values are labels, not an ordering.
type Status int

const (
	StatusUnknown Status = iota
	StatusAlarm
	StatusWasAlarmed
	StatusClear
	StatusIgnore
	StatusNotChange
	StatusRequest
	StatusLocation
	StatusKOSRequest
	StatusSoundTest
)

var statusNames = map[Status]string{
	StatusUnknown:    "unknown",
	StatusAlarm:      "alarm",
	StatusWasAlarmed: "was_alarmed",
	StatusClear:      "clear",
	StatusIgnore:     "ignore",
	StatusNotChange:  "no_change",
	StatusRequest:    "request",
	StatusLocation:   "location",
	StatusKOSRequest: "kos_request",
	StatusSoundTest:  "sound_test",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Transient reports whether the status is informational only and must
// never be persisted as a system's state.
func (s Status) Transient() bool {
	return s == StatusRequest || s == StatusNotChange
}
