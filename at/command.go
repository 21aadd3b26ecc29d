package at

import "strings"

// Command holds the derived strings for one AT command that the protocol
// layer uses to classify incoming lines and strip echoes.
type Command struct {
	// Wire is the normalized command as written to the transport,
	// e.g. "AT+CREG?\r\n".
	Wire string
	// Sent is Wire with trailing whitespace trimmed, used for echo
	// detection by content match.
	Sent string
	// Full is the command body without the AT prefix and terminators,
	// e.g. "+CREG?".
	Full string
	// Prefix is the bare command prefix before any '?' or '=',
	// e.g. "+CREG".
	Prefix string
	// ResponsePrefix is Prefix plus ':', e.g. "+CREG:". Solicited
	// response lines start with it.
	ResponsePrefix string
}

// Normalize ensures cmd starts with "AT" and ends with CRLF.
// The AT prefix check is case-insensitive, so "at+csq" passes through
// unchanged apart from the terminator.
func Normalize(cmd string) string {
	if !strings.HasPrefix(strings.ToUpper(cmd), "AT") {
		cmd = "AT" + cmd
	}
	if !strings.HasSuffix(cmd, CRLF) {
		cmd += CRLF
	}
	return cmd
}

// ParseCommand normalizes cmd and precomputes the derived strings used
// for response-line classification.
func ParseCommand(cmd string) Command {
	wire := Normalize(cmd)
	raw := strings.TrimSpace(wire)

	full := raw
	if strings.HasPrefix(strings.ToUpper(full), "AT") {
		full = full[2:]
	}
	full = strings.NewReplacer("\r", "", "\n", "").Replace(full)

	prefix := strings.SplitN(strings.ReplaceAll(full, "?", ""), "=", 2)[0]

	return Command{
		Wire:           wire,
		Sent:           raw,
		Full:           full,
		Prefix:         prefix,
		ResponsePrefix: prefix + ":",
	}
}
