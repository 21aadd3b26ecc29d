package modem

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/modemgw/at"
)

// DefaultCommandTimeout bounds how long SendCommand waits for a
// terminal OK/ERROR line when the caller does not override it.
const DefaultCommandTimeout = time.Second

// CommandOptions adjust how SendCommand treats a response.
type CommandOptions struct {
	// StripOK removes the trailing "OK" line from the result.
	StripOK bool
	// RemoveCmdPrefix strips the "+CMD:" response prefix from the first
	// line when present.
	RemoveCmdPrefix bool
	// Timeout overrides DefaultCommandTimeout.
	Timeout time.Duration
}

// pendingCommand is the single in-flight command slot. It is created by
// the sending goroutine and appended to by the reader loop; the done
// channel is closed when a terminal line arrives.
type pendingCommand struct {
	cmd       at.Command
	lines     []string
	done      chan struct{}
	completed bool
}

// ATProtocol owns the solicited side of the AT conversation: it holds
// the single in-flight command slot, classifies incoming lines against
// it, and wakes the sender when the response completes.
//
// Only one command may be in flight at a time. Callers of SendCommand
// serialize on an internal mutex held for the whole command cycle; the
// reader loop never touches that mutex, only the short-held state lock,
// so it always makes progress regardless of sender contention.
type ATProtocol struct {
	transport      Transport
	defaultTimeout time.Duration
	logger         *slog.Logger

	// cmdMu serializes whole command cycles across callers.
	cmdMu sync.Mutex
	// mu guards pending; held only for brief state updates.
	mu      sync.Mutex
	pending *pendingCommand
}

// NewATProtocol creates a protocol engine over transport. A zero
// defaultTimeout means DefaultCommandTimeout.
func NewATProtocol(transport Transport, defaultTimeout time.Duration, logger *slog.Logger) *ATProtocol {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ATProtocol{
		transport:      transport,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// SendCommand normalizes and transmits cmd, then blocks until the
// reader loop observes a terminal OK or ERROR line, or the timeout
// elapses. The transport input buffer is cleared before every command
// so stragglers from an earlier timed-out command cannot leak into this
// one's response.
func (p *ATProtocol) SendCommand(cmd string, opts CommandOptions) ([]string, error) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	parsed := at.ParseCommand(cmd)
	pending := &pendingCommand{cmd: parsed, done: make(chan struct{})}

	p.mu.Lock()
	p.pending = pending
	p.mu.Unlock()

	p.logger.Debug("sending AT command", "command", parsed.Sent)

	if err := p.transport.ResetInputBuffer(); err != nil {
		p.clearPending()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}

	n, err := p.transport.Write([]byte(parsed.Wire))
	if err != nil {
		p.clearPending()
		return nil, fmt.Errorf("%w: command %q: %v", ErrWriteFailed, parsed.Sent, err)
	}
	if n == 0 {
		p.clearPending()
		return nil, fmt.Errorf("%w: command %q: zero bytes written", ErrWriteFailed, parsed.Sent)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pending.done:
	case <-timer.C:
		// The timer can fire in the same instant the terminal line lands.
		// A completed response wins over the timeout.
		select {
		case <-pending.done:
		default:
			p.clearPending()
			p.logger.Error("AT command timed out", "command", parsed.Sent)
			return nil, fmt.Errorf("%w: %s", ErrCommandTimeout, parsed.Sent)
		}
	}

	p.mu.Lock()
	lines := append([]string(nil), pending.lines...)
	p.pending = nil
	p.mu.Unlock()

	// Echo strip is a content match: some modems echo regardless of the
	// configured echo mode.
	if len(lines) > 0 && lines[0] == parsed.Sent {
		lines = lines[1:]
	}

	p.logger.Debug("AT command response", "command", parsed.Sent, "lines", lines)

	if len(lines) > 0 {
		switch lines[len(lines)-1] {
		case at.OK:
			if opts.StripOK {
				lines = lines[:len(lines)-1]
			}
		case at.ERROR:
			return nil, &CommandError{Command: parsed.Sent, Response: lines}
		}
	}

	if opts.RemoveCmdPrefix && len(lines) > 0 &&
		strings.HasPrefix(lines[0], parsed.ResponsePrefix) {
		lines[0] = strings.TrimSpace(lines[0][len(parsed.ResponsePrefix):])
	}

	return lines, nil
}

func (p *ATProtocol) clearPending() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

// ResponsePending reports whether a command is awaiting its terminal
// line.
func (p *ATProtocol) ResponsePending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil && !p.pending.completed
}

// IsURC classifies line while a command is pending. Lines that do not
// start with '+' are never URCs. A '+' line is solicited only when it
// carries the pending command's response prefix; anything else is an
// unrelated URC interleaved with the response.
func (p *ATProtocol) IsURC(line string) bool {
	if !strings.HasPrefix(line, "+") {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != nil && !p.pending.completed && p.pending.cmd.Prefix != "" {
		return !strings.HasPrefix(line, p.pending.cmd.ResponsePrefix)
	}
	return true
}

// AppendResponseLine adds line to the pending response buffer and
// reports whether it completed the response. Lines arriving with no
// pending command (stragglers from a timed-out cycle) are dropped.
func (p *ATProtocol) AppendResponseLine(line string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil || p.pending.completed {
		p.logger.Debug("dropping orphaned response line", "line", line)
		return false
	}

	p.pending.lines = append(p.pending.lines, line)
	if at.IsFinal(line) {
		p.pending.completed = true
		close(p.pending.done)
		return true
	}
	return false
}
