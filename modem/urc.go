package modem

import (
	"log/slog"
	"strings"
	"sync"
)

// DefaultURCQueueSize bounds the URC queue when no size is configured.
const DefaultURCQueueSize = 1000

// URCCallback receives the raw text of an unsolicited result code.
type URCCallback func(line string)

// Dispatcher buffers unsolicited result codes and fans them out to
// registered prefix callbacks.
//
// The queue is a bounded FIFO: when full, the oldest entry is dropped
// silently. All registry and queue access is internally synchronized;
// callbacks run outside the lock so a slow callback cannot stall the
// reader loop and a callback may re-enter the dispatcher (for example
// to unregister itself).
type Dispatcher struct {
	logger  *slog.Logger
	maxSize int

	mu          sync.Mutex
	queue       []string
	callbacks   map[string]URCCallback
	subscribers map[int]URCCallback
	nextSubID   int
}

// NewDispatcher creates a dispatcher with the given queue capacity.
// A non-positive maxQueueSize means DefaultURCQueueSize.
func NewDispatcher(maxQueueSize int, logger *slog.Logger) *Dispatcher {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultURCQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:      logger,
		maxSize:     maxQueueSize,
		callbacks:   make(map[string]URCCallback),
		subscribers: make(map[int]URCCallback),
	}
}

// Register installs callback for URC lines starting with prefix.
// Registering the same prefix again replaces the previous callback.
func (d *Dispatcher) Register(prefix string, callback URCCallback) {
	d.mu.Lock()
	d.callbacks[prefix] = callback
	d.mu.Unlock()
	d.logger.Debug("registered URC callback", "prefix", prefix)
}

// Unregister removes the callback for prefix, reporting whether one was
// installed.
func (d *Dispatcher) Unregister(prefix string) bool {
	d.mu.Lock()
	_, ok := d.callbacks[prefix]
	delete(d.callbacks, prefix)
	d.mu.Unlock()
	if ok {
		d.logger.Debug("unregistered URC callback", "prefix", prefix)
	}
	return ok
}

// Subscribe delivers every unsolicited line to cb, independently of the
// prefix registry, so any number of listeners can stream concurrently.
// The returned cancel func removes the subscription; calling it more
// than once is harmless.
func (d *Dispatcher) Subscribe(cb URCCallback) (cancel func()) {
	d.mu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subscribers[id] = cb
	d.mu.Unlock()
	d.logger.Debug("added URC subscriber", "id", id)

	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// ClearCallbacks removes every registered callback.
func (d *Dispatcher) ClearCallbacks() {
	d.mu.Lock()
	d.callbacks = make(map[string]URCCallback)
	d.mu.Unlock()
}

// Handle enqueues line and invokes every callback whose prefix matches.
// A panicking callback is recovered and logged; it never reaches the
// reader loop and never prevents other callbacks from running.
func (d *Dispatcher) Handle(line string) {
	d.mu.Lock()
	if len(d.queue) >= d.maxSize {
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, line)

	matched := make([]URCCallback, 0, len(d.callbacks)+len(d.subscribers))
	for prefix, cb := range d.callbacks {
		if strings.HasPrefix(line, prefix) {
			matched = append(matched, cb)
		}
	}
	for _, cb := range d.subscribers {
		matched = append(matched, cb)
	}
	d.mu.Unlock()

	for _, cb := range matched {
		d.invoke(cb, line)
	}
}

func (d *Dispatcher) invoke(cb URCCallback, line string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("URC callback panicked", "line", line, "panic", r)
		}
	}()
	cb(line)
}

// Queue returns a snapshot of buffered URCs, oldest first.
func (d *Dispatcher) Queue() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queue...)
}

// Pop removes and returns the oldest buffered URC.
func (d *Dispatcher) Pop() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return "", false
	}
	line := d.queue[0]
	d.queue = d.queue[1:]
	return line, true
}

// ClearQueue drops all buffered URCs and returns how many were dropped.
func (d *Dispatcher) ClearQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	d.queue = nil
	return n
}

// QueueSize returns the number of buffered URCs.
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
