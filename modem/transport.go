package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Transport is an established byte stream to a modem.
//
// Reads are terminator-framed: ReadUntil blocks until the terminator
// arrives or its timeout elapses, and a clean timeout yields empty bytes
// rather than an error. Implementations must distinguish device
// disconnection (fatal, reported as ErrDeviceDisconnected) from
// transient I/O errors, so the reader loop can escalate the former and
// retry the latter.
type Transport interface {
	// Write sends data to the modem and returns the number of bytes
	// written.
	Write(data []byte) (int, error)

	// ReadUntil reads until terminator is seen, returning everything up
	// to and including it. A zero timeout uses the transport default.
	// On a clean read timeout it returns an empty slice and no error.
	ReadUntil(terminator []byte, timeout time.Duration) ([]byte, error)

	// ResetInputBuffer discards any unread input.
	ResetInputBuffer() error

	// IsOpen reports whether the transport is usable.
	IsOpen() bool

	// Close releases the transport.
	Close() error
}

// Dialer opens a Transport to a modem. It abstracts how the connection
// is created (serial port, emulator, test double) and is only used
// during construction.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate with a full port configuration.
	Mode *serial.Mode
	// ReadTimeout is the default per-read timeout. Zero means 200ms.
	ReadTimeout time.Duration
}

// Dial opens and configures the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{BaudRate: baud}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 200 * time.Millisecond
	}

	return &SerialTransport{
		port:        port,
		name:        d.PortName,
		readTimeout: readTimeout,
		open:        true,
	}, nil
}

// SerialTransport implements Transport over a serial port.
type SerialTransport struct {
	port        serial.Port
	name        string
	readTimeout time.Duration

	// readMu guards pending and serializes reads. Writes are not held
	// under it so a command can be written while a read is blocked.
	readMu  sync.Mutex
	pending []byte

	stateMu sync.Mutex
	open    bool
}

func (t *SerialTransport) Write(data []byte) (int, error) {
	n, err := t.port.Write(data)
	if err != nil {
		return n, classifyTransportError(err)
	}
	return n, nil
}

func (t *SerialTransport) ReadUntil(terminator []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = t.readTimeout
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)

	for {
		if i := bytes.Index(t.pending, terminator); i >= 0 {
			end := i + len(terminator)
			out := append([]byte(nil), t.pending[:end]...)
			t.pending = t.pending[end:]
			return out, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		step := t.readTimeout
		if step > remaining {
			step = remaining
		}
		if err := t.port.SetReadTimeout(step); err != nil {
			return nil, classifyTransportError(err)
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
		}
		if err != nil {
			return nil, classifyTransportError(err)
		}
	}
}

func (t *SerialTransport) ResetInputBuffer() error {
	t.readMu.Lock()
	t.pending = nil
	t.readMu.Unlock()

	if err := t.port.ResetInputBuffer(); err != nil {
		return classifyTransportError(err)
	}
	return nil
}

func (t *SerialTransport) IsOpen() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.open
}

func (t *SerialTransport) Close() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	return t.port.Close()
}

// classifyTransportError maps serial failures onto the two failure kinds
// the reader loop distinguishes: fatal disconnection and everything
// else. The string checks cover the OS-level errors a vanished USB
// device produces on Linux.
func classifyTransportError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"device disconnected",
		"no such device",
		"device not configured",
		"input/output error",
	} {
		if strings.Contains(msg, phrase) {
			return fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
		}
	}

	return err
}
