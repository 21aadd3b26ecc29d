package at

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare command", "AT", "AT\r\n"},
		{"missing AT prefix", "+CSQ", "AT+CSQ\r\n"},
		{"lowercase prefix", "at+csq", "at+csq\r\n"},
		{"already terminated", "AT+CREG?\r\n", "AT+CREG?\r\n"},
		{"write command", "+CMGF=1", "AT+CMGF=1\r\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name       string
		in         string
		full       string
		prefix     string
		respPrefix string
	}{
		{"read command", "AT+CREG?", "+CREG?", "+CREG", "+CREG:"},
		{"write command", "AT+CMGF=1", "+CMGF=1", "+CMGF", "+CMGF:"},
		{"execute command", "+CSQ", "+CSQ", "+CSQ", "+CSQ:"},
		{"test command", "AT+CPMS=?", "+CPMS=?", "+CPMS", "+CPMS:"},
		{"plain AT", "AT", "", "", ":"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := ParseCommand(tc.in)
			if c.Full != tc.full {
				t.Errorf("Full = %q, want %q", c.Full, tc.full)
			}
			if c.Prefix != tc.prefix {
				t.Errorf("Prefix = %q, want %q", c.Prefix, tc.prefix)
			}
			if c.ResponsePrefix != tc.respPrefix {
				t.Errorf("ResponsePrefix = %q, want %q", c.ResponsePrefix, tc.respPrefix)
			}
		})
	}
}

func TestParseCommandEchoText(t *testing.T) {
	c := ParseCommand("+CSQ")
	if c.Wire != "AT+CSQ\r\n" {
		t.Errorf("Wire = %q, want %q", c.Wire, "AT+CSQ\r\n")
	}
	if c.Sent != "AT+CSQ" {
		t.Errorf("Sent = %q, want %q", c.Sent, "AT+CSQ")
	}
}

func TestIsFinal(t *testing.T) {
	for line, want := range map[string]bool{
		"OK":            true,
		"ERROR":         true,
		"+CSQ: 24,99":   false,
		"+CME ERROR: 3": false,
		"":              false,
	} {
		if got := IsFinal(line); got != want {
			t.Errorf("IsFinal(%q) = %v, want %v", line, got, want)
		}
	}
}
