package modem

import (
	"fmt"
	"log/slog"
	"sync"

	"i4.energy/across/modemgw/pdu"
)

// SMSStatusFilter selects messages for listing and bulk deletion.
type SMSStatusFilter string

const (
	SMSRecUnread SMSStatusFilter = "REC UNREAD"
	SMSRecRead   SMSStatusFilter = "REC READ"
	SMSStoUnsent SMSStatusFilter = "STO UNSENT"
	SMSStoSent   SMSStatusFilter = "STO SENT"
	SMSAll       SMSStatusFilter = "ALL"
)

// deleteFlags maps a status filter to the AT+CMGD=1,<flag> bulk form.
var deleteFlags = map[SMSStatusFilter]int{
	SMSRecRead:   1,
	SMSRecUnread: 2,
	SMSStoSent:   3,
	SMSStoUnsent: 4,
}

// defaultStorageLocations is returned when the modem cannot report its
// supported storages; deliberate fallback, not an error.
var defaultStorageLocations = []string{"ME", "SM", "MT"}

// SMSManager sends, reads and manages stored messages. Sending always
// uses PDU mode; reading and listing follow the modem's current format
// mode.
type SMSManager struct {
	core   *Core
	logger *slog.Logger

	mu           sync.Mutex
	cachedFormat *MessageFormat
}

// NewSMSManager creates an SMSManager over core.
func NewSMSManager(core *Core, logger *slog.Logger) *SMSManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSManager{core: core, logger: logger}
}

// MessageFormat returns the modem's SMS format mode (AT+CMGF?), cached
// after the first query.
func (s *SMSManager) MessageFormat() (MessageFormat, error) {
	s.mu.Lock()
	if s.cachedFormat != nil {
		format := *s.cachedFormat
		s.mu.Unlock()
		return format, nil
	}
	s.mu.Unlock()

	lines, err := s.core.SendCommand("AT+CMGF?", CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return 0, err
	}
	mode, err := parseIntValue("AT+CMGF?", lines)
	if err != nil {
		return 0, err
	}

	format := MessageFormat(mode)
	s.mu.Lock()
	s.cachedFormat = &format
	s.mu.Unlock()
	return format, nil
}

// SetMessageFormat switches the modem's SMS format mode (AT+CMGF).
func (s *SMSManager) SetMessageFormat(mode MessageFormat) error {
	current, err := s.MessageFormat()
	if err == nil && current == mode {
		return nil
	}

	if _, err := s.core.SendCommand(fmt.Sprintf("AT+CMGF=%d", mode), CommandOptions{}); err != nil {
		return err
	}

	s.mu.Lock()
	s.cachedFormat = &mode
	s.mu.Unlock()
	return nil
}

// Send encodes message as an SMS-SUBMIT PDU and transmits it, returning
// the message reference assigned by the modem (or -1 when the modem
// accepted the message without a parseable reference).
//
// Concatenated messages are not supported: text longer than one part is
// truncated to the first part and a warning is logged. Use
// pdu.CalculateParts beforehand to detect this.
func (s *SMSManager) Send(number, message string, opts pdu.SubmitOptions) (int, error) {
	parts, err := pdu.CalculateParts(message, opts.Encoding)
	if err != nil {
		return 0, err
	}
	if parts > 1 {
		s.logger.Warn("message exceeds one SMS part, truncating to the first part",
			"to", number, "parts", parts)
		message = pdu.Truncate(message, opts.Encoding)
	}

	if err := s.SetMessageFormat(PDUMode); err != nil {
		return 0, fmt.Errorf("switch to PDU mode: %w", err)
	}

	encoded, err := pdu.EncodeSubmit(number, message, opts)
	if err != nil {
		return 0, fmt.Errorf("encode SMS-SUBMIT: %w", err)
	}

	ref, err := s.core.SendPDU(encoded)
	if err != nil {
		return 0, err
	}

	s.logger.Info("SMS sent", "to", number, "reference", ref)
	return ref, nil
}

// Read fetches the message at index (AT+CMGR), parsing it according to
// the current format mode.
func (s *SMSManager) Read(index int) (SMSMessage, error) {
	cmd := fmt.Sprintf("AT+CMGR=%d", index)
	lines, err := s.core.SendCommand(cmd, CommandOptions{StripOK: true})
	if err != nil {
		return SMSMessage{}, err
	}
	if len(lines) == 0 {
		return SMSMessage{}, &ParseError{Command: cmd, Reason: "no message at index"}
	}

	mode, err := s.MessageFormat()
	if err != nil {
		return SMSMessage{}, err
	}

	if mode == TextMode {
		msg, err := parseCMGRText(lines)
		if err != nil {
			return SMSMessage{}, err
		}
		msg.Index = index
		return msg, nil
	}
	return parseCMGRPDU(lines, index)
}

// List fetches stored messages matching status (AT+CMGL).
func (s *SMSManager) List(status SMSStatusFilter) ([]SMSMessage, error) {
	mode, err := s.MessageFormat()
	if err != nil {
		return nil, err
	}

	var cmd string
	if mode == TextMode {
		cmd = fmt.Sprintf("AT+CMGL=%q", string(status))
	} else {
		// PDU mode takes the numeric filter; 4 = all.
		cmd = "AT+CMGL=4"
	}

	lines, err := s.core.SendCommand(cmd, CommandOptions{StripOK: true})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return nil, nil
	}

	if mode == TextMode {
		return parseCMGLText(lines), nil
	}
	return parseCMGLPDU(lines, s.logger), nil
}

// Delete removes the message at index (AT+CMGD).
func (s *SMSManager) Delete(index int) error {
	_, err := s.core.SendCommand(fmt.Sprintf("AT+CMGD=%d", index), CommandOptions{})
	return err
}

// DeleteAll removes every message matching status; SMSAll removes
// everything.
func (s *SMSManager) DeleteAll(status SMSStatusFilter) error {
	flag := 4
	if f, ok := deleteFlags[status]; ok {
		flag = f
	}
	_, err := s.core.SendCommand(fmt.Sprintf("AT+CMGD=1,%d", flag), CommandOptions{})
	return err
}

// StorageInfo queries the three preferred-storage slots (AT+CPMS?):
// read/delete, write/send and receive.
func (s *SMSManager) StorageInfo() ([3]SMSStorage, error) {
	lines, err := s.core.SendCommand("AT+CPMS?", CommandOptions{StripOK: true})
	if err != nil {
		return [3]SMSStorage{}, err
	}
	return parseCPMS(lines)
}

// SetPreferredStorage selects the storages used for reading, writing
// and receiving (AT+CPMS=).
func (s *SMSManager) SetPreferredStorage(mem1, mem2, mem3 string) error {
	cmd := fmt.Sprintf(`AT+CPMS="%s","%s","%s"`, mem1, mem2, mem3)
	_, err := s.core.SendCommand(cmd, CommandOptions{})
	return err
}

// StorageLocations queries the storages the modem supports (AT+CPMS=?).
// On any failure it falls back to the common ME/SM/MT set so callers
// can still present a sensible choice.
func (s *SMSManager) StorageLocations() []string {
	lines, err := s.core.SendCommand("AT+CPMS=?", CommandOptions{StripOK: true})
	if err != nil {
		s.logger.Warn("storage location query failed, using defaults", "error", err)
		return defaultStorageLocations
	}
	locations := parseStorageLocations(lines)
	if len(locations) == 0 {
		return defaultStorageLocations
	}
	return locations
}
