package motorsbus

import (
	"errors"
	"fmt"
)

// Precondition violations (§7). Fatal to the calling operation, recoverable
// by the caller.
var (
	ErrAlreadyConnected = errors.New("motorsbus: bus is already connected")
	ErrNotConnected     = errors.New("motorsbus: bus is not connected")
)

// Configuration-time-only sentinels (§4.5, §7).
var (
	ErrMotorNotFound       = errors.New("motorsbus: no new motor detected on the bus")
	ErrAmbiguousBus        = errors.New("motorsbus: more than one new motor detected on the bus")
	ErrBaudWriteFailed     = errors.New("motorsbus: motor did not accept the canonical baud rate")
	ErrIDWriteFailed       = errors.New("motorsbus: motor did not accept its assigned id")
	ErrCalibrationUnresolvable = errors.New("motorsbus: auto-correct found no integer turn count that resolves the range violation")
)

// OpenFailedError wraps the OS-level failure to open the serial device,
// surfaced with the path per §7.
type OpenFailedError struct {
	Path string
	Err  error
}

func (e *OpenFailedError) Error() string {
	return fmt.Sprintf("motorsbus: failed to open port %q: %v", e.Path, e.Err)
}

func (e *OpenFailedError) Unwrap() error { return e.Err }

// BusCommError reports a transport round trip that failed after exhausting
// its retry budget. It carries the register group key and the transport's
// own diagnostic string (§7).
type BusCommError struct {
	GroupKey string
	Detail   string
}

func (e *BusCommError) Error() string {
	return fmt.Sprintf("motorsbus: communication failure for group %q: %s", e.GroupKey, e.Detail)
}

// JointOutOfRangeError reports a calibrated value that escaped the hard
// bound even after one auto-correct attempt (§7, §4.6).
type JointOutOfRangeError struct {
	MotorName string
	Value     float64
	Lower     float64
	Upper     float64
}

func (e *JointOutOfRangeError) Error() string {
	return fmt.Sprintf(
		"motorsbus: motor %q value %.3f is outside the hard range [%.1f, %.1f]; recalibrate this joint",
		e.MotorName, e.Value, e.Lower, e.Upper,
	)
}

// HeterogeneousBatchError reports motors in the same batched operation that
// disagree on a register's address or width (§4.2, §7). Fatal; a
// configuration bug, never recovered at runtime.
type HeterogeneousBatchError struct {
	Register string
	Models   []string
	Addrs    []uint16
	Widths   []int
}

func (e *HeterogeneousBatchError) Error() string {
	return fmt.Sprintf(
		"motorsbus: models %v disagree on address/width for register %q (addrs=%v widths=%v)",
		e.Models, e.Register, e.Addrs, e.Widths,
	)
}

// UnknownControlEntryError reports a register name or model absent from the
// control-table registry (§4.2, §7).
type UnknownControlEntryError struct {
	Model    string
	Register string
}

func (e *UnknownControlEntryError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("motorsbus: unknown model %q", e.Register)
	}
	return fmt.Sprintf("motorsbus: model %q has no control table entry for register %q", e.Model, e.Register)
}

// UnsupportedWidthError reports a register width outside {1,2,4} (§4.1).
type UnsupportedWidthError struct {
	Width int
}

func (e *UnsupportedWidthError) Error() string {
	return fmt.Sprintf("motorsbus: unsupported register width %d (must be 1, 2, or 4)", e.Width)
}

// errf is a thin fmt.Errorf wrapper kept package-local so call sites read as
// plain sentinel construction rather than repeating the "motorsbus: " prefix.
func errf(format string, args ...interface{}) error {
	return fmt.Errorf("motorsbus: "+format, args...)
}
