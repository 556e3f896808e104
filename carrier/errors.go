// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"errors"
	"fmt"
)

// Outcome is the terminal result of a bootloader operation.
type Outcome uint8

const (
	Success           Outcome = iota // bitstream loaded, FPGA released
	UnlockFailed                     // unlock sequence could not be issued
	StillLocked                      // bootloader not active after unlock
	BitstreamRejected                // image refused or transfer failed
	TimedOut                         // device condition never held
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case UnlockFailed:
		return "unlock-failed"
	case StillLocked:
		return "still-locked"
	case BitstreamRejected:
		return "bitstream-rejected"
	case TimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

var (
	// ErrPrecondition reports a call made without a register window
	// or with an empty bitstream.
	ErrPrecondition = errors.New("svec: precondition failed")

	// ErrProtocol reports a board that did not follow the bootloader
	// handshake.
	ErrProtocol = errors.New("svec: protocol error")

	// ErrTransfer reports a failed register access or a bitstream
	// flagged as erroneous by the bootloader.
	ErrTransfer = errors.New("svec: transfer error")

	// ErrTimeout reports a device condition that did not hold in time.
	ErrTimeout = errors.New("svec: timeout")
)

// Error describes a failed board operation.
//
// errors.Is(err, ErrXXX) matches the kind of the error while
// errors.Unwrap returns its underlying cause, if any.
type Error struct {
	Op      string  // operation: unlock, is-active, load, activate
	Outcome Outcome // outcome of the operation
	Kind    error   // one of ErrPrecondition, ErrProtocol, ErrTransfer, ErrTimeout
	Err     error   // underlying cause, may be nil
	Msg     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("svec: %s: %v", e.Op, e.Outcome)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// OutcomeOf returns the outcome associated with an error returned by a
// bootloader operation.
// A nil error is a Success. Errors not produced by this package are
// reported as BitstreamRejected.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Outcome
	}
	return BitstreamRejected
}

func newError(op string, o Outcome, kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Op:      op,
		Outcome: o,
		Kind:    kind,
		Err:     err,
		Msg:     fmt.Sprintf(format, args...),
	}
}
