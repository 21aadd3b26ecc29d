package modem

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/modemgw/at"
)

const (
	// maxConsecutiveErrors terminates the reader loop after this many
	// transient read failures with no intervening success.
	maxConsecutiveErrors = 5
	// errorBackoffBase is the first backoff step; it doubles per
	// consecutive failure (0.1s, 0.2s, 0.4s, 0.8s, 1.6s).
	errorBackoffBase = 100 * time.Millisecond
	// stopJoinTimeout bounds how long Stop waits for the reader
	// goroutine to exit.
	stopJoinTimeout = time.Second

	promptTimeout  = 5 * time.Second
	smsSendTimeout = 30 * time.Second
)

var lineTerminator = []byte(at.CRLF)

// CoreConfig carries the knobs for a Core.
type CoreConfig struct {
	// ATTimeout is the default SendCommand timeout.
	ATTimeout time.Duration
	// URCQueueSize bounds the URC queue; zero means DefaultURCQueueSize.
	URCQueueSize int
	// Logger receives structured logs; nil means slog.Default().
	Logger *slog.Logger
	// OnDisconnect, if set, is invoked exactly once when device
	// disconnection is detected.
	OnDisconnect func(error)
	// LogURCs logs every unsolicited line at info level.
	LogURCs bool
}

// Core coordinates the transport, the AT protocol engine and the URC
// dispatcher. It runs the single reader goroutine that pulls lines off
// the transport and routes each one to the pending command or to the
// URC dispatcher.
type Core struct {
	transport    Transport
	protocol     *ATProtocol
	urc          *Dispatcher
	logger       *slog.Logger
	onDisconnect func(error)
	logURCs      bool

	// readGate serializes raw transport reads between the reader loop
	// and the SMS send sequence, which must read the "> " prompt and
	// the send result itself.
	readGate sync.Mutex

	mu           sync.Mutex
	running      bool
	disconnected bool
	stop         chan struct{}
	loopDone     chan struct{}
}

// NewCore wires a Core over transport. Start must be called before
// commands are issued.
func NewCore(transport Transport, cfg CoreConfig) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		transport:    transport,
		protocol:     NewATProtocol(transport, cfg.ATTimeout, logger),
		urc:          NewDispatcher(cfg.URCQueueSize, logger),
		logger:       logger,
		onDisconnect: cfg.OnDisconnect,
		logURCs:      cfg.LogURCs,
	}
}

// Start launches the reader goroutine. It is idempotent: starting a
// running Core is a no-op. Disconnect and error state are reset so a
// Core may be restarted after Stop.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.logger.Warn("reader loop already started")
		return
	}

	c.disconnected = false
	c.running = true
	c.stop = make(chan struct{})
	c.loopDone = make(chan struct{})

	go c.readerLoop(c.stop, c.loopDone)
	c.logger.Info("started reader loop")
}

// Stop signals the reader loop to exit and waits for it with a bounded
// join. A loop that fails to exit in time is logged, not fatal. Safe to
// call from any goroutine, repeatedly.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop, done := c.stop, c.loopDone
	c.mu.Unlock()

	close(stop)

	select {
	case <-done:
		c.logger.Info("stopped reader loop")
	case <-time.After(stopJoinTimeout):
		c.logger.Warn("reader loop did not terminate in time")
	}
}

// Close stops the reader loop and closes the transport.
func (c *Core) Close() error {
	c.Stop()
	return c.transport.Close()
}

// Running reports whether the reader loop is active.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Disconnected reports whether device disconnection was detected. The
// flag latches until the next Start.
func (c *Core) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// SendCommand issues an AT command through the protocol engine. The
// reader loop must be running, otherwise no response can ever complete.
func (c *Core) SendCommand(cmd string, opts CommandOptions) ([]string, error) {
	if !c.Running() {
		return nil, ErrNotRunning
	}
	return c.protocol.SendCommand(cmd, opts)
}

// RegisterURC installs a callback for URC lines starting with prefix.
func (c *Core) RegisterURC(prefix string, callback URCCallback) {
	c.urc.Register(prefix, callback)
}

// UnregisterURC removes a URC callback, reporting whether one existed.
func (c *Core) UnregisterURC(prefix string) bool {
	return c.urc.Unregister(prefix)
}

// SubscribeURC streams every unsolicited line to cb until the returned
// cancel func is called.
func (c *Core) SubscribeURC(cb URCCallback) (cancel func()) {
	return c.urc.Subscribe(cb)
}

// URCs exposes the dispatcher for queue access.
func (c *Core) URCs() *Dispatcher {
	return c.urc
}

func (c *Core) readerLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	consecutive := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		c.readGate.Lock()
		data, err := c.transport.ReadUntil(lineTerminator, 0)
		c.readGate.Unlock()

		if err != nil {
			if errors.Is(err, ErrDeviceDisconnected) {
				c.logger.Error("device disconnected, stopping reader loop", "error", err)
				c.latchDisconnect(err)
				return
			}

			consecutive++
			c.logger.Error("reader loop error",
				"error", err, "consecutive", consecutive, "max", maxConsecutiveErrors)
			if consecutive >= maxConsecutiveErrors {
				c.logger.Error("too many consecutive errors, stopping reader loop")
				c.setStopped()
				return
			}

			backoff := errorBackoffBase << (consecutive - 1)
			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			continue
		}

		consecutive = 0

		line := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
		if line == "" {
			continue
		}

		c.routeLine(line)
	}
}

// routeLine sends a line to the pending command's response buffer or to
// the URC dispatcher. With no command pending every line is treated as
// unsolicited.
func (c *Core) routeLine(line string) {
	if c.protocol.ResponsePending() && !c.protocol.IsURC(line) {
		c.protocol.AppendResponseLine(line)
		return
	}
	if c.logURCs {
		c.logger.Info("URC received", "line", line)
	}
	c.urc.Handle(line)
}

func (c *Core) latchDisconnect(err error) {
	c.mu.Lock()
	c.running = false
	already := c.disconnected
	c.disconnected = true
	hook := c.onDisconnect
	c.mu.Unlock()

	if hook != nil && !already {
		hook(err)
	}
}

func (c *Core) setStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// SendPDU runs the low-level SMS-SUBMIT sequence: AT+CMGS with the PDU
// octet length, wait for the "> " prompt, write the hex PDU terminated
// by Ctrl-Z, then collect lines until OK or an error line. It returns
// the message reference from "+CMGS: <n>", or -1 when the modem said OK
// without a parseable reference.
//
// The command slot and the read gate are held for the whole sequence,
// so no other command can interleave and the reader loop cannot steal
// the prompt or the result lines.
func (c *Core) SendPDU(pduHex string) (int, error) {
	if !c.Running() {
		return 0, ErrNotRunning
	}

	c.protocol.cmdMu.Lock()
	defer c.protocol.cmdMu.Unlock()
	c.readGate.Lock()
	defer c.readGate.Unlock()

	if err := c.transport.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("reset input buffer: %w", err)
	}

	octets := len(pduHex)/2 - 1 // SMSC length byte is not counted
	cmd := fmt.Sprintf("AT+CMGS=%d", octets)

	if _, err := c.transport.Write([]byte(cmd + at.CRLF)); err != nil {
		return 0, fmt.Errorf("%w: command %q: %v", ErrWriteFailed, cmd, err)
	}

	prompt, err := c.transport.ReadUntil([]byte(at.Prompt), promptTimeout)
	if err != nil {
		return 0, fmt.Errorf("read SMS prompt: %w", err)
	}
	if !bytes.Contains(prompt, []byte(">")) {
		return 0, fmt.Errorf("%w: got %q", ErrPromptMissing, prompt)
	}

	if _, err := c.transport.Write([]byte(pduHex + at.CtrlZ)); err != nil {
		return 0, fmt.Errorf("%w: PDU body: %v", ErrWriteFailed, err)
	}

	var lines []string
	deadline := time.Now().Add(smsSendTimeout)
	for time.Now().Before(deadline) {
		data, err := c.transport.ReadUntil(lineTerminator, time.Second)
		if err != nil {
			if errors.Is(err, ErrDeviceDisconnected) {
				return 0, err
			}
			// Transient; the network can take a while to answer.
			continue
		}

		line := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		c.logger.Debug("SMS send response", "line", line)

		if line == at.OK {
			return parseCMGSReference(cmd, lines, c.logger)
		}
		if strings.Contains(line, at.ERROR) {
			return 0, &CommandError{Command: cmd, Response: lines}
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrCommandTimeout, cmd)
}
