package modem

import (
	"errors"
	"log/slog"
	"testing"
)

func TestParseSignalQuality(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		sq, err := parseSignalQuality([]string{"24,99"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sq.RSSI != 24 || sq.BER != 99 {
			t.Errorf("got RSSI=%d BER=%d, want 24/99", sq.RSSI, sq.BER)
		}
		if dbm, ok := sq.RSSIdBm(); !ok || dbm != -65 {
			t.Errorf("RSSIdBm() = %d,%v, want -65,true", dbm, ok)
		}
	})

	t.Run("unknown signal", func(t *testing.T) {
		sq, err := parseSignalQuality([]string{"99,99"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sq.Valid() {
			t.Error("RSSI 99 should not be valid")
		}
		if _, ok := sq.RSSIdBm(); ok {
			t.Error("RSSIdBm should report no value for RSSI 99")
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		for _, lines := range [][]string{nil, {"24"}, {"a,b"}} {
			if _, err := parseSignalQuality(lines); err == nil {
				t.Errorf("lines %v: expected error", lines)
			}
		}
	})
}

func TestParseRegistration(t *testing.T) {
	t.Run("registered home with cell info", func(t *testing.T) {
		st, err := parseRegistration([]string{`0,1,"1A2B","01F3C4D5"`})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Stat != RegisteredHome {
			t.Errorf("Stat = %d, want RegisteredHome", st.Stat)
		}
		if !st.Registered() {
			t.Error("Registered() should be true")
		}
		if st.LAC != "1A2B" || st.CellID != "01F3C4D5" {
			t.Errorf("got LAC=%q CellID=%q", st.LAC, st.CellID)
		}
	})

	t.Run("searching", func(t *testing.T) {
		st, err := parseRegistration([]string{"0,2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Stat != Searching || st.Registered() {
			t.Errorf("got Stat=%d Registered=%v", st.Stat, st.Registered())
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := parseRegistration([]string{"1"}); err == nil {
			t.Error("expected error for single field")
		}
	})
}

func TestParseOperator(t *testing.T) {
	op, err := parseOperator([]string{`0,0,"Vodafone",7`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Operator != "Vodafone" || op.Act != 7 {
		t.Errorf("got %+v", op)
	}

	op, err = parseOperator([]string{"0"})
	if err != nil {
		t.Fatalf("deregistered form should parse: %v", err)
	}
	if op.Operator != "" {
		t.Errorf("got operator %q, want empty", op.Operator)
	}
}

func TestParseNetworkInfo(t *testing.T) {
	ni, err := parseNetworkInfo([]string{`"FDD LTE","26201","LTE BAND 3",1300`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ni.RAT != "FDD LTE" || ni.Operator != "26201" || ni.Band != "LTE BAND 3" || ni.CellID != 1300 {
		t.Errorf("got %+v", ni)
	}
}

func TestParseModelInfo(t *testing.T) {
	mi, err := parseModelInfo([]string{"Quectel", "EC25", "Revision: EC25EFAR06A11M4G"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mi.Manufacturer != "Quectel" || mi.Model != "EC25" || mi.Revision != "EC25EFAR06A11M4G" {
		t.Errorf("got %+v", mi)
	}

	if _, err := parseModelInfo([]string{"Quectel"}); err == nil {
		t.Error("expected error for short response")
	}
}

func TestParseCMGSReference(t *testing.T) {
	logger := slog.Default()

	ref, err := parseCMGSReference("AT+CMGS=17", []string{"+CMGS: 42", "OK"}, logger)
	if err != nil || ref != 42 {
		t.Errorf("got %d,%v, want 42,nil", ref, err)
	}

	ref, err = parseCMGSReference("AT+CMGS=17", []string{"OK"}, logger)
	if err != nil || ref != -1 {
		t.Errorf("missing reference: got %d,%v, want -1,nil", ref, err)
	}
}

func TestParseCMGRText(t *testing.T) {
	lines := []string{
		`+CMGR: "REC READ","+1234567890",,"23/01/15,10:30:45+00"`,
		"Hello there",
	}
	msg, err := parseCMGRText(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Status != "REC READ" || msg.Sender != "+1234567890" || msg.Content != "Hello there" {
		t.Errorf("got %+v", msg)
	}
	if msg.Timestamp != "23/01/15,10:30:45+00" {
		t.Errorf("Timestamp = %q", msg.Timestamp)
	}

	if _, err := parseCMGRText([]string{"garbage", "body"}); err == nil {
		t.Error("expected error for malformed header")
	}
	var pe *ParseError
	_, err = parseCMGRText(nil)
	if !errors.As(err, &pe) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestParseCMGRPDU(t *testing.T) {
	// SMS-DELIVER from +1234567890, "Hello", 2023-01-15 10:30:45 UTC.
	raw := "00000A912143658709000032105101035400" + "05C8329BFD06"
	msg, err := parseCMGRPDU([]string{"+CMGR: 1,,23", raw}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Index != 3 || msg.Status != "REC READ" {
		t.Errorf("got Index=%d Status=%q", msg.Index, msg.Status)
	}
	if msg.Sender != "+1234567890" || msg.Content != "Hello" {
		t.Errorf("got Sender=%q Content=%q", msg.Sender, msg.Content)
	}
	if msg.PDU != raw {
		t.Error("raw PDU should be preserved")
	}

	if _, err := parseCMGRPDU([]string{"+CMGR: 1,,5", "ZZZZ"}, 0); err == nil {
		t.Error("expected error for undecodable PDU")
	}
}

func TestParseCMGLText(t *testing.T) {
	lines := []string{
		`+CMGL: 1,"REC UNREAD","+1234567890",,"23/01/15,10:30:45+00"`,
		"first message",
		`+CMGL: 2,"REC READ","+0987654321",,"23/01/16,11:00:00+00"`,
		"second message",
		"with two lines",
	}
	msgs := parseCMGLText(lines)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Index != 1 || msgs[0].Content != "first message" {
		t.Errorf("first: %+v", msgs[0])
	}
	if msgs[1].Index != 2 || msgs[1].Content != "second message\nwith two lines" {
		t.Errorf("second: %+v", msgs[1])
	}

	if msgs := parseCMGLText([]string{""}); len(msgs) != 0 {
		t.Errorf("empty input: got %d messages", len(msgs))
	}
}

func TestParseCMGLPDU(t *testing.T) {
	logger := slog.Default()
	good := "00000A912143658709000032105101035400" + "05C8329BFD06"

	lines := []string{
		"+CMGL: 1,0,,23",
		good,
		"+CMGL: 2,1,,5",
		"NOTHEX",
	}
	msgs := parseCMGLPDU(lines, logger)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (malformed entry skipped)", len(msgs))
	}
	if msgs[0].Index != 1 || msgs[0].Status != "REC UNREAD" || msgs[0].Content != "Hello" {
		t.Errorf("got %+v", msgs[0])
	}
}

func TestParseCPMS(t *testing.T) {
	lines := []string{`+CPMS: "ME",5,255,"ME",5,255,"SM",2,50`}
	storages, err := parseCPMS(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [3]SMSStorage{
		{Type: "ME", Used: 5, Total: 255},
		{Type: "ME", Used: 5, Total: 255},
		{Type: "SM", Used: 2, Total: 50},
	}
	if storages != want {
		t.Errorf("got %+v, want %+v", storages, want)
	}

	if _, err := parseCPMS([]string{"garbage"}); err == nil {
		t.Error("expected error for malformed response")
	}
}

func TestParseStorageLocations(t *testing.T) {
	lines := []string{`+CPMS: ("ME","SM","MT"),("ME","SM"),("ME","SM")`}
	got := parseStorageLocations(lines)
	want := []string{"ME", "SM", "MT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("location %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := parseStorageLocations([]string{"no parens"}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestPDUStatusName(t *testing.T) {
	if name := pduStatusName(0); name != "REC UNREAD" {
		t.Errorf("got %q", name)
	}
	if name := pduStatusName(9); name != "UNKNOWN (9)" {
		t.Errorf("got %q", name)
	}
}
