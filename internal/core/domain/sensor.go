package domain

import (
	"sort"
	"strings"
)

const (
	MOTION_MARKER = "pir"

	STATE_CLOSE  = "close"
	STATE_CLOSED = "closed"
	STATE_CLEAR  = "clear"

	PAYLOAD_ONLINE  = "online"
	PAYLOAD_OFFLINE = "offline"
)

type Sensor struct {
	ID   int
	Name string
}

// IsMotion reports whether the sensor follows the motion naming convention.
// Motion sensors are auto-cleared after the dwell interval, everything else
// is treated as an open/closed contact.
func (s Sensor) IsMotion() bool {
	return strings.Contains(s.Name, MOTION_MARKER)
}

// InitialState is the value published when the bridge starts, before any
// reading has been received.
func (s Sensor) InitialState() string {
	if s.IsMotion() {
		return STATE_CLEAR
	}
	return STATE_CLOSED
}

func NormalizeState(raw string) string {
	if raw == STATE_CLOSE {
		return STATE_CLOSED
	}
	return raw
}

// Registry is the immutable sensor id -> sensor table.
type Registry struct {
	byID    map[int]Sensor
	ordered []Sensor
}

func NewRegistry(names map[int]string) *Registry {
	reg := &Registry{
		byID:    make(map[int]Sensor, len(names)),
		ordered: make([]Sensor, 0, len(names)),
	}
	for id, name := range names {
		s := Sensor{ID: id, Name: name}
		reg.byID[id] = s
		reg.ordered = append(reg.ordered, s)
	}
	sort.Slice(reg.ordered, func(i, j int) bool {
		return reg.ordered[i].ID < reg.ordered[j].ID
	})
	return reg
}

func (r *Registry) Lookup(id int) (Sensor, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Sensors returns a copy of all sensors ordered by id.
func (r *Registry) Sensors() []Sensor {
	out := make([]Sensor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) MotionSensors() []Sensor {
	var out []Sensor
	for _, s := range r.ordered {
		if s.IsMotion() {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.ordered)
}
