package modem

import (
	"fmt"
	"sync"
	"time"
)

type readEvent struct {
	data []byte
	err  error
}

// TestTransport is a test helper that simulates the modem side of the
// serial link using channels. Reads block until data is fed or the
// timeout elapses, like a real port with a read deadline.
//
// Each FeedLine call becomes exactly one ReadUntil result, so tests
// feed complete terminated lines (or the bare send prompt).
type TestTransport struct {
	readChan  chan readEvent
	writeChan chan []byte

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	open     bool
}

// NewTestTransport creates a test transport, open and ready for use.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan:  make(chan readEvent, 64),
		writeChan: make(chan []byte, 64),
		open:      true,
	}
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, fmt.Errorf("write: %w", ErrDeviceDisconnected)
	}
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	t.writes = append(t.writes, buf)
	select {
	case t.writeChan <- buf:
	default:
	}
	return len(p), nil
}

func (t *TestTransport) ReadUntil(terminator []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 20 * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-t.readChan:
		if !ok {
			return nil, fmt.Errorf("read: %w", ErrDeviceDisconnected)
		}
		return ev.data, ev.err
	case <-timer.C:
		return nil, nil
	}
}

func (t *TestTransport) ResetInputBuffer() error {
	for {
		select {
		case _, ok := <-t.readChan:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (t *TestTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	close(t.readChan)
	return nil
}

func (t *TestTransport) feed(ev readEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		t.readChan <- ev
	}
}

// FeedLine queues one line for the next ReadUntil, appending the line
// terminator. Simulates the modem talking.
func (t *TestTransport) FeedLine(line string) {
	t.feed(readEvent{data: []byte(line + "\r\n")})
}

// FeedRaw queues bytes verbatim, without a terminator. Used for the
// SMS send prompt.
func (t *TestTransport) FeedRaw(data string) {
	t.feed(readEvent{data: []byte(data)})
}

// FeedError queues an error for the next ReadUntil.
func (t *TestTransport) FeedError(err error) {
	t.feed(readEvent{err: err})
}

// SetWriteError makes subsequent writes fail with err.
func (t *TestTransport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Writes returns a copy of everything written so far.
func (t *TestTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// WaitForWrite blocks until the next write arrives or the timeout
// elapses, returning the written bytes.
func (t *TestTransport) WaitForWrite(timeout time.Duration) ([]byte, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case w := <-t.writeChan:
		return w, true
	case <-timer.C:
		return nil, false
	}
}
