package modem_test

import (
	"testing"

	"i4.energy/across/modemgw/modem"
)

func TestDispatcherCallbacks(t *testing.T) {
	t.Run("prefix match", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		var got []string
		d.Register("+CMTI:", func(line string) { got = append(got, line) })

		d.Handle("+CMTI: \"SM\",3")
		d.Handle("+CREG: 0,1")

		if len(got) != 1 || got[0] != "+CMTI: \"SM\",3" {
			t.Errorf("callback saw %v", got)
		}
	})

	t.Run("re-registering replaces the callback", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		first, second := 0, 0
		d.Register("+CMTI:", func(string) { first++ })
		d.Register("+CMTI:", func(string) { second++ })

		d.Handle("+CMTI: \"SM\",1")

		if first != 0 || second != 1 {
			t.Errorf("first=%d second=%d, want 0/1", first, second)
		}
	})

	t.Run("unregister reports presence", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)
		d.Register("+CMTI:", func(string) {})

		if !d.Unregister("+CMTI:") {
			t.Error("expected true for installed callback")
		}
		if d.Unregister("+CMTI:") {
			t.Error("expected false for absent callback")
		}
	})

	t.Run("panicking callback is contained", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		called := false
		d.Register("+CMTI:", func(string) { panic("boom") })
		d.Register("+CMT", func(string) { called = true })

		d.Handle("+CMTI: \"SM\",1")

		if !called {
			t.Error("other matching callbacks should still run")
		}
		if d.QueueSize() != 1 {
			t.Error("line should still be queued")
		}
	})

	t.Run("callback may re-enter the dispatcher", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		d.Register("+CMTI:", func(string) {
			d.Unregister("+CMTI:")
		})

		d.Handle("+CMTI: \"SM\",1")
		d.Handle("+CMTI: \"SM\",2")

		if n := d.QueueSize(); n != 2 {
			t.Errorf("queue size = %d, want 2", n)
		}
	})
}

func TestDispatcherSubscribe(t *testing.T) {
	t.Run("subscribers are independent", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		first, second := 0, 0
		cancelFirst := d.Subscribe(func(string) { first++ })
		d.Subscribe(func(string) { second++ })

		d.Handle("+CMTI: \"SM\",1")
		if first != 1 || second != 1 {
			t.Fatalf("first=%d second=%d, want both to receive", first, second)
		}

		// One listener leaving must not silence the other.
		cancelFirst()
		d.Handle("+CMTI: \"SM\",2")
		if first != 1 || second != 2 {
			t.Errorf("after cancel: first=%d second=%d, want 1/2", first, second)
		}
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		stayed := 0
		cancel := d.Subscribe(func(string) {})
		d.Subscribe(func(string) { stayed++ })

		cancel()
		cancel()

		d.Handle("+CMTI: \"SM\",1")
		if stayed != 1 {
			t.Errorf("surviving subscriber saw %d lines, want 1", stayed)
		}
	})

	t.Run("subscribers see all lines regardless of prefix", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)

		var got []string
		d.Subscribe(func(line string) { got = append(got, line) })
		d.Register("+CMTI:", func(string) {})

		d.Handle("RING")
		d.Handle("+CREG: 0,1")

		if len(got) != 2 {
			t.Errorf("subscriber saw %v, want both lines", got)
		}
	})
}

func TestDispatcherQueue(t *testing.T) {
	t.Run("bounded, oldest dropped", func(t *testing.T) {
		d := modem.NewDispatcher(3, nil)

		for _, line := range []string{"+A: 1", "+A: 2", "+A: 3", "+A: 4"} {
			d.Handle(line)
		}

		queue := d.Queue()
		if len(queue) != 3 {
			t.Fatalf("queue size = %d, want 3", len(queue))
		}
		if queue[0] != "+A: 2" || queue[2] != "+A: 4" {
			t.Errorf("queue = %v", queue)
		}
	})

	t.Run("pop is FIFO", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)
		d.Handle("+A: 1")
		d.Handle("+A: 2")

		line, ok := d.Pop()
		if !ok || line != "+A: 1" {
			t.Errorf("Pop() = %q,%v", line, ok)
		}
		line, ok = d.Pop()
		if !ok || line != "+A: 2" {
			t.Errorf("Pop() = %q,%v", line, ok)
		}
		if _, ok := d.Pop(); ok {
			t.Error("Pop on empty queue should report false")
		}
	})

	t.Run("clear returns dropped count", func(t *testing.T) {
		d := modem.NewDispatcher(10, nil)
		d.Handle("+A: 1")
		d.Handle("+A: 2")

		if n := d.ClearQueue(); n != 2 {
			t.Errorf("ClearQueue() = %d, want 2", n)
		}
		if d.QueueSize() != 0 {
			t.Error("queue should be empty")
		}
	})
}
