package modem

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotRunning is returned when a command is issued while the reader
	// loop is stopped.
	ErrNotRunning = errors.New("modem not running")

	// ErrAlreadyClosed is returned when Close is called on a Modem that
	// has already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrCommandTimeout is returned when no terminal response line
	// arrives within the command timeout. The pending command is
	// abandoned; the next command resets the input buffer first.
	ErrCommandTimeout = errors.New("AT command timed out")

	// ErrDeviceDisconnected indicates the device itself went away
	// (unplugged USB, vanished tty). It is fatal: the reader loop
	// terminates and the connection must be rebuilt.
	ErrDeviceDisconnected = errors.New("device disconnected")

	// ErrSIMPinRequired is returned by Start when the SIM demands a PIN
	// and none was configured.
	ErrSIMPinRequired = errors.New("SIM PIN required but not configured")

	// ErrWriteFailed is returned when writing a command to the transport
	// fails. The command is not retried.
	ErrWriteFailed = errors.New("transport write failed")

	// ErrPromptMissing is returned when the modem does not produce the
	// "> " prompt after AT+CMGS.
	ErrPromptMissing = errors.New("SMS prompt not received")
)

// CommandError is returned when the modem answers a command with ERROR
// (or +CMS ERROR during an SMS send). It carries the issued command and
// the raw response lines for the caller to log or inspect.
type CommandError struct {
	Command  string
	Response []string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q returned ERROR", e.Command)
	if len(e.Response) > 0 {
		msg += " | response: " + strings.Join(e.Response, " / ")
	}
	return msg
}

// ParseError is returned when a response does not match the shape a
// feature manager expects.
type ParseError struct {
	Command  string
	Response []string
	Reason   string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %q response: %s", e.Command, e.Reason)
	if len(e.Response) > 0 {
		msg += " | response: " + strings.Join(e.Response, " / ")
	}
	return msg
}
