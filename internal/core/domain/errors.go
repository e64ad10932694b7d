package domain

import "fmt"

type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type ConnectionError struct {
	Broker string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("broker %s unreachable: %v", e.Broker, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("could not launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

type MalformedRecordError struct {
	Line string
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %q: %v", e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

type UnknownSensorError struct {
	ID    int
	State string
}

func (e *UnknownSensorError) Error() string {
	return fmt.Sprintf("unknown sensor id %d (state %q)", e.ID, e.State)
}

// ShutdownReason is the fatal condition that ended the main loop.
type ShutdownReason int

const (
	ReasonDecoderExited ShutdownReason = iota
	ReasonNoDevices
	ReasonSignal
	ReasonPanic
)

func (r ShutdownReason) String() string {
	switch r {
	case ReasonDecoderExited:
		return "decoder_exited"
	case ReasonNoDevices:
		return "no_device_found"
	case ReasonSignal:
		return "signal"
	case ReasonPanic:
		return "panic"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
