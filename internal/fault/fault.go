// Package fault classifies errors by the component that raised them.
package fault

import "errors"

// Code is a stable error class. It is comparable and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK Code = "ok"

	Configuration   Code = "configuration"
	Synchronization Code = "synchronization"
	Sensor          Code = "sensor"
	DisplayHardware Code = "display_hardware"
	DisplayRender   Code = "display_render"
	ClockOffset     Code = "clock_offset"

	Unknown Code = "unknown"
)

// E carries a Code together with the operation and the cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, fault.Sensor) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap returns nil when err is nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts the outermost Code from an error chain.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *E
	if errors.As(err, &e) {
		return e.C
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}

// Fatal reports whether errors of class c abort the boot sequence.
func Fatal(c Code) bool {
	return c == Configuration || c == Synchronization
}
