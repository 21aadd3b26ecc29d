package modem_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"i4.energy/across/modemgw/modem"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCoreStartStop(t *testing.T) {
	tt := modem.NewTestTransport()
	core := modem.NewCore(tt, modem.CoreConfig{})

	if core.Running() {
		t.Error("core should not run before Start")
	}

	core.Start()
	if !core.Running() {
		t.Error("core should run after Start")
	}

	// Idempotent.
	core.Start()

	core.Stop()
	if core.Running() {
		t.Error("core should not run after Stop")
	}

	// Stopping again is harmless.
	core.Stop()
}

func TestCoreSendCommand(t *testing.T) {
	t.Run("response routed through reader loop", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})
		core.Start()
		defer core.Stop()

		go func() {
			if _, ok := tt.WaitForWrite(time.Second); !ok {
				return
			}
			tt.FeedLine("+CSQ: 24,99")
			tt.FeedLine("OK")
		}()

		lines, err := core.SendCommand("AT+CSQ", modem.CommandOptions{StripOK: true, RemoveCmdPrefix: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(lines) != 1 || lines[0] != "24,99" {
			t.Errorf("lines = %v, want [24,99]", lines)
		}
	})

	t.Run("URC interleaved with a response", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})
		core.Start()
		defer core.Stop()

		urcs := make(chan string, 1)
		core.RegisterURC("+CMTI:", func(line string) { urcs <- line })

		go func() {
			if _, ok := tt.WaitForWrite(time.Second); !ok {
				return
			}
			tt.FeedLine("+CMTI: \"SM\",3")
			tt.FeedLine("+CREG: 0,1")
			tt.FeedLine("OK")
		}()

		lines, err := core.SendCommand("AT+CREG?", modem.CommandOptions{StripOK: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(lines) != 1 || lines[0] != "+CREG: 0,1" {
			t.Errorf("response lines = %v, URC should not leak in", lines)
		}

		select {
		case line := <-urcs:
			if line != "+CMTI: \"SM\",3" {
				t.Errorf("URC callback saw %q", line)
			}
		case <-time.After(time.Second):
			t.Error("URC callback never invoked")
		}
	})

	t.Run("not running", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})

		if _, err := core.SendCommand("AT", modem.CommandOptions{}); !errors.Is(err, modem.ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got %v", err)
		}
	})
}

func TestCoreURCWithoutPendingCommand(t *testing.T) {
	tt := modem.NewTestTransport()
	core := modem.NewCore(tt, modem.CoreConfig{})
	core.Start()
	defer core.Stop()

	tt.FeedLine("RING")
	tt.FeedLine("+CMTI: \"SM\",7")

	waitFor(t, time.Second, func() bool { return core.URCs().QueueSize() == 2 })

	queue := core.URCs().Queue()
	if queue[0] != "RING" || queue[1] != "+CMTI: \"SM\",7" {
		t.Errorf("queue = %v", queue)
	}
}

func TestCoreDisconnect(t *testing.T) {
	tt := modem.NewTestTransport()

	hooked := make(chan error, 2)
	core := modem.NewCore(tt, modem.CoreConfig{
		OnDisconnect: func(err error) { hooked <- err },
	})
	core.Start()

	tt.FeedError(fmt.Errorf("read: %w", modem.ErrDeviceDisconnected))

	select {
	case err := <-hooked:
		if !errors.Is(err, modem.ErrDeviceDisconnected) {
			t.Errorf("hook got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect hook never invoked")
	}

	waitFor(t, time.Second, func() bool { return !core.Running() })
	if !core.Disconnected() {
		t.Error("disconnect flag should latch")
	}

	// The latch survives until the next Start.
	core.Stop()
	if !core.Disconnected() {
		t.Error("Stop should not clear the disconnect flag")
	}

	core.Start()
	if core.Disconnected() {
		t.Error("Start should reset the disconnect flag")
	}
	core.Stop()

	select {
	case <-hooked:
		t.Error("disconnect hook must fire at most once per detection")
	default:
	}
}

func TestCoreConsecutiveErrorsStopLoop(t *testing.T) {
	tt := modem.NewTestTransport()
	core := modem.NewCore(tt, modem.CoreConfig{})
	core.Start()

	for i := 0; i < 5; i++ {
		tt.FeedError(errors.New("transient read failure"))
	}

	// Backoff between failures sums to roughly 1.5s before the loop
	// gives up.
	waitFor(t, 5*time.Second, func() bool { return !core.Running() })

	if core.Disconnected() {
		t.Error("transient-error shutdown is not a disconnect")
	}
}

func TestCoreSendPDU(t *testing.T) {
	// SMS-SUBMIT to +1234567890, "Hello": 17 TPDU octets after the
	// leading SMSC length byte.
	const pduHex = "0001000A912143658709000005C8329BFD06"

	t.Run("full sequence", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})
		core.Start()
		defer core.Stop()

		go func() {
			w, ok := tt.WaitForWrite(time.Second)
			if !ok || string(w) != "AT+CMGS=17\r\n" {
				t.Errorf("CMGS write = %q", w)
				return
			}
			tt.FeedRaw("> ")

			w, ok = tt.WaitForWrite(2 * time.Second)
			if !ok || string(w) != pduHex+"\x1a" {
				t.Errorf("PDU write = %q", w)
				return
			}
			tt.FeedLine("+CMGS: 42")
			tt.FeedLine("OK")
		}()

		ref, err := core.SendPDU(pduHex)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref != 42 {
			t.Errorf("reference = %d, want 42", ref)
		}
	})

	t.Run("missing prompt", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})
		core.Start()
		defer core.Stop()

		go func() {
			if _, ok := tt.WaitForWrite(time.Second); !ok {
				return
			}
			tt.FeedRaw("ERROR\r\n")
		}()

		_, err := core.SendPDU(pduHex)
		if !errors.Is(err, modem.ErrPromptMissing) {
			t.Fatalf("expected ErrPromptMissing, got %v", err)
		}
	})

	t.Run("CMS error after PDU body", func(t *testing.T) {
		tt := modem.NewTestTransport()
		core := modem.NewCore(tt, modem.CoreConfig{})
		core.Start()
		defer core.Stop()

		go func() {
			if _, ok := tt.WaitForWrite(time.Second); !ok {
				return
			}
			tt.FeedRaw("> ")
			if _, ok := tt.WaitForWrite(2 * time.Second); !ok {
				return
			}
			tt.FeedLine("+CMS ERROR: 500")
		}()

		_, err := core.SendPDU(pduHex)
		var cmdErr *modem.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError, got %v", err)
		}
		if !strings.Contains(cmdErr.Error(), "+CMS ERROR: 500") {
			t.Errorf("error should carry the response: %v", cmdErr)
		}
	})
}
