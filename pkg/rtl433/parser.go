package rtl433

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
)

const (
	MARKER_TUNED      = "Tuned"
	MARKER_NO_DEVICES = "No supported devices found"
	// rtl_433 only adds a "time" field to data records, status lines lack it
	MARKER_READING = "time"
)

type LineKind int

const (
	LineStatus LineKind = iota
	LineTuned
	LineNoDevices
	LineReading
)

func (k LineKind) String() string {
	switch k {
	case LineTuned:
		return "tuned"
	case LineNoDevices:
		return "no_devices"
	case LineReading:
		return "reading"
	default:
		return "status"
	}
}

type Reading struct {
	ID    int
	State string
	Time  string
	Model string
}

type Line struct {
	Kind    LineKind
	Reading *Reading
}

type record struct {
	ID    *int    `json:"id"`
	State *string `json:"state"`
	Time  string  `json:"time"`
	Model string  `json:"model"`
}

// Parse classifies one line of decoder output. Only lines with a reading
// marker are decoded; those that fail to decode yield a MalformedRecordError.
func Parse(line string) (Line, error) {
	switch {
	case strings.Contains(line, MARKER_TUNED):
		return Line{Kind: LineTuned}, nil
	case strings.Contains(line, MARKER_NO_DEVICES):
		return Line{Kind: LineNoDevices}, nil
	case strings.Contains(line, MARKER_READING):
		reading, err := decodeReading(line)
		if err != nil {
			return Line{Kind: LineReading}, &domain.MalformedRecordError{Line: line, Err: err}
		}
		return Line{Kind: LineReading, Reading: reading}, nil
	default:
		return Line{Kind: LineStatus}, nil
	}
}

func decodeReading(line string) (*Reading, error) {
	var rec record
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &rec); err != nil {
		return nil, err
	}
	if rec.ID == nil {
		return nil, errors.New("missing id")
	}
	if rec.State == nil {
		return nil, errors.New("missing state")
	}
	return &Reading{
		ID:    *rec.ID,
		State: *rec.State,
		Time:  rec.Time,
		Model: rec.Model,
	}, nil
}
