// Package modem drives an AT-command cellular modem over a serial
// transport: one reader goroutine demultiplexes solicited responses
// from unsolicited result codes, and feature managers layer typed
// operations on top of the raw command engine.
package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/modemgw/at"
)

// Modem is the top-level handle: it owns the transport, the command
// engine and the feature managers. Construct with New, start the
// reader with Start, and release everything with Close.
type Modem struct {
	core   *Core
	logger *slog.Logger
	simPIN string

	Device  *DeviceManager
	Network *NetworkManager
	SMS     *SMSManager

	mu     sync.Mutex
	closed bool
}

// New dials the configured transport and assembles a Modem. The reader
// loop is not running until Start is called.
func New(ctx context.Context, cfg Config) (*Modem, error) {
	if cfg.Dialer == nil {
		return nil, ErrNoDialer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem transport: %w", err)
	}

	core := NewCore(transport, CoreConfig{
		ATTimeout:    cfg.ATTimeout,
		URCQueueSize: cfg.URCQueueSize,
		Logger:       logger,
		OnDisconnect: cfg.OnDisconnect,
		LogURCs:      cfg.LogURCs,
	})

	return &Modem{
		core:    core,
		logger:  logger,
		simPIN:  cfg.SimPIN,
		Device:  NewDeviceManager(core, logger),
		Network: NewNetworkManager(core, logger),
		SMS:     NewSMSManager(core, logger),
	}, nil
}

// Start launches the reader loop and runs the initialization sequence:
// probe, echo off, verbose errors, SIM readiness.
func (m *Modem) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.mu.Unlock()

	m.core.Start()

	for _, cmd := range []string{at.CmdAt, at.CmdEchoOff, at.CmdVerboseErrors} {
		if _, err := m.core.SendCommand(cmd, CommandOptions{}); err != nil {
			return fmt.Errorf("modem init %q: %w", cmd, err)
		}
	}

	if err := m.ensureSIMReady(); err != nil {
		return err
	}

	m.logger.Info("modem started")
	return nil
}

func (m *Modem) ensureSIMReady() error {
	state, err := m.Device.SIMState()
	if err != nil {
		return fmt.Errorf("query SIM state: %w", err)
	}

	switch state {
	case SIMReady:
		return nil
	case SIMPinRequired:
		if m.simPIN == "" {
			return ErrSIMPinRequired
		}
		m.logger.Info("SIM locked, sending PIN")
		cmd := fmt.Sprintf("AT+CPIN=\"%s\"", m.simPIN)
		if _, err := m.core.SendCommand(cmd, CommandOptions{}); err != nil {
			return fmt.Errorf("unlock SIM: %w", err)
		}
		return m.waitForSIMReady()
	default:
		return fmt.Errorf("unsupported SIM state: %q", state)
	}
}

// waitForSIMReady polls +CPIN after a PIN unlock; the card can take a
// moment to settle.
func (m *Modem) waitForSIMReady() error {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		state, err := m.Device.SIMState()
		if err == nil && state == SIMReady {
			m.logger.Info("SIM unlocked")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("SIM not ready after PIN unlock")
}

// Stop halts the reader loop without closing the transport.
func (m *Modem) Stop() {
	m.core.Stop()
}

// Close stops the reader loop and closes the transport. Safe to call
// more than once; subsequent calls return ErrAlreadyClosed.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	m.mu.Unlock()

	return m.core.Close()
}

// Running reports whether the reader loop is active.
func (m *Modem) Running() bool {
	return m.core.Running()
}

// Disconnected reports whether the device was detected as gone.
func (m *Modem) Disconnected() bool {
	return m.core.Disconnected()
}

// SendCommand issues a raw AT command. Prefer the feature managers for
// anything they cover.
func (m *Modem) SendCommand(cmd string, opts CommandOptions) ([]string, error) {
	return m.core.SendCommand(cmd, opts)
}

// RegisterURC installs a callback for unsolicited lines starting with
// prefix. Registering the same prefix again replaces the callback.
func (m *Modem) RegisterURC(prefix string, callback URCCallback) {
	m.core.RegisterURC(prefix, callback)
}

// UnregisterURC removes a URC callback, reporting whether one existed.
func (m *Modem) UnregisterURC(prefix string) bool {
	return m.core.UnregisterURC(prefix)
}

// SubscribeURC streams every unsolicited line to cb until the returned
// cancel func is called. Unlike RegisterURC, subscriptions are
// independent: concurrent subscribers never displace one another.
func (m *Modem) SubscribeURC(cb URCCallback) (cancel func()) {
	return m.core.SubscribeURC(cb)
}

// URCs exposes the dispatcher for queue inspection.
func (m *Modem) URCs() *Dispatcher {
	return m.core.URCs()
}
