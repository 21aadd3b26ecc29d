package modem

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"i4.energy/across/modemgw/pdu"
)

// Response parsers for the AT commands the feature managers issue.
// Each parser returns a *ParseError carrying the command and the raw
// lines when the response does not have the expected shape.

var (
	cmgsRe     = regexp.MustCompile(`\+CMGS:\s*(\d+)`)
	cmgrTextRe = regexp.MustCompile(`\+CMGR:\s*"([^"]+)","([^"]+)",(?:"[^"]*",|,)"([^"]+)"`)
	cmgrPDURe  = regexp.MustCompile(`\+CMGR:\s*(\d+),,?(\d+)`)
	cmglTextRe = regexp.MustCompile(`\+CMGL:\s*(\d+),"([^"]+)","([^"]+)",(?:"[^"]*",|,)"([^"]+)"`)
	cmglPDURe  = regexp.MustCompile(`\+CMGL:\s*(\d+),(\d+),,(\d+)`)
	cpmsRe     = regexp.MustCompile(`\+CPMS:\s*"([^"]+)",(\d+),(\d+),"([^"]+)",(\d+),(\d+),"([^"]+)",(\d+),(\d+)`)
	storageRe  = regexp.MustCompile(`\(([^)]+)\)`)
)

var pduStatusNames = map[int]string{
	0: "REC UNREAD",
	1: "REC READ",
	2: "STO UNSENT",
	3: "STO SENT",
}

func parseIntValue(cmd string, lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, &ParseError{Command: cmd, Reason: "empty response"}
	}
	v, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, &ParseError{Command: cmd, Response: lines, Reason: "not an integer"}
	}
	return v, nil
}

func parseSingleLine(cmd string, lines []string) (string, error) {
	if len(lines) != 1 {
		return "", &ParseError{Command: cmd, Response: lines, Reason: "expected exactly one line"}
	}
	return lines[0], nil
}

func parseModelInfo(lines []string) (ModelInfo, error) {
	if len(lines) != 3 {
		return ModelInfo{}, &ParseError{
			Command: "ATI", Response: lines, Reason: "expected 3 lines",
		}
	}
	return ModelInfo{
		Manufacturer: lines[0],
		Model:        lines[1],
		Revision:     strings.TrimSpace(strings.TrimPrefix(lines[2], "Revision:")),
	}, nil
}

// parseSignalQuality parses the "<rssi>,<ber>" payload of +CSQ.
func parseSignalQuality(lines []string) (SignalQuality, error) {
	if len(lines) == 0 {
		return SignalQuality{}, &ParseError{Command: "AT+CSQ", Reason: "empty response"}
	}
	parts := strings.Split(lines[0], ",")
	if len(parts) != 2 {
		return SignalQuality{}, &ParseError{
			Command: "AT+CSQ", Response: lines, Reason: "expected rssi,ber",
		}
	}
	rssi, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	ber, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return SignalQuality{}, &ParseError{
			Command: "AT+CSQ", Response: lines, Reason: "non-numeric fields",
		}
	}
	return SignalQuality{RSSI: rssi, BER: ber}, nil
}

// parseRegistration parses the "<n>,<stat>[,<lac>,<ci>[,<act>]]"
// payload of +CREG?.
func parseRegistration(lines []string) (RegistrationStatus, error) {
	if len(lines) == 0 {
		return RegistrationStatus{}, &ParseError{Command: "AT+CREG?", Reason: "empty response"}
	}
	parts := strings.Split(lines[0], ",")
	if len(parts) < 2 {
		return RegistrationStatus{}, &ParseError{
			Command: "AT+CREG?", Response: lines, Reason: "expected n,stat",
		}
	}
	mode, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	stat, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return RegistrationStatus{}, &ParseError{
			Command: "AT+CREG?", Response: lines, Reason: "non-numeric fields",
		}
	}

	status := RegistrationStatus{Mode: mode, Stat: RegistrationState(stat)}
	if len(parts) >= 4 {
		status.LAC = strings.Trim(strings.TrimSpace(parts[2]), `"`)
		status.CellID = strings.Trim(strings.TrimSpace(parts[3]), `"`)
	}
	return status, nil
}

// parseOperator parses the "<mode>[,<format>,<oper>[,<act>]]" payload
// of +COPS?.
func parseOperator(lines []string) (CurrentOperator, error) {
	if len(lines) == 0 {
		return CurrentOperator{}, &ParseError{Command: "AT+COPS?", Reason: "empty response"}
	}
	parts := strings.Split(lines[0], ",")

	op := CurrentOperator{}
	var err error
	if op.Mode, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return CurrentOperator{}, &ParseError{
			Command: "AT+COPS?", Response: lines, Reason: "non-numeric mode",
		}
	}
	if len(parts) >= 3 {
		op.Format, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
		op.Operator = strings.Trim(strings.TrimSpace(parts[2]), `"`)
	}
	if len(parts) >= 4 {
		op.Act, _ = strconv.Atoi(strings.TrimSpace(parts[3]))
	}
	return op, nil
}

// parseNetworkInfo parses the '"<rat>","<oper>","<band>",<cid>' payload
// of +QNWINFO.
func parseNetworkInfo(lines []string) (NetworkInfo, error) {
	if len(lines) == 0 {
		return NetworkInfo{}, &ParseError{Command: "AT+QNWINFO", Reason: "empty response"}
	}
	parts := strings.Split(lines[0], ",")
	if len(parts) != 4 {
		return NetworkInfo{}, &ParseError{
			Command: "AT+QNWINFO", Response: lines, Reason: "expected 4 fields",
		}
	}
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}
	cellID, err := strconv.Atoi(parts[3])
	if err != nil {
		return NetworkInfo{}, &ParseError{
			Command: "AT+QNWINFO", Response: lines, Reason: "non-numeric cell id",
		}
	}
	return NetworkInfo{RAT: parts[0], Operator: parts[1], Band: parts[2], CellID: cellID}, nil
}

// parseCMGSReference extracts the message reference from a completed
// CMGS exchange. A response that said OK but carried no parseable
// reference yields -1: the message was accepted either way.
func parseCMGSReference(cmd string, lines []string, logger *slog.Logger) (int, error) {
	for _, line := range lines {
		if m := cmgsRe.FindStringSubmatch(line); m != nil {
			ref, err := strconv.Atoi(m[1])
			if err == nil {
				return ref, nil
			}
		}
	}
	logger.Warn("SMS sent but message reference not found", "response", lines)
	return -1, nil
}

// parseCMGRText parses a text-mode +CMGR response: a header line
// followed by the message body.
func parseCMGRText(lines []string) (SMSMessage, error) {
	if len(lines) < 2 {
		return SMSMessage{}, &ParseError{
			Command: "AT+CMGR", Response: lines, Reason: "expected header and body",
		}
	}
	m := cmgrTextRe.FindStringSubmatch(lines[0])
	if m == nil {
		return SMSMessage{}, &ParseError{
			Command: "AT+CMGR", Response: lines, Reason: "malformed header",
		}
	}
	return SMSMessage{
		Index:     -1,
		Status:    m[1],
		Sender:    m[2],
		Timestamp: m[3],
		Content:   strings.Join(lines[1:], "\n"),
		Encoding:  "text",
	}, nil
}

// parseCMGRPDU parses a PDU-mode +CMGR response and decodes the PDU.
func parseCMGRPDU(lines []string, index int) (SMSMessage, error) {
	if len(lines) < 2 {
		return SMSMessage{}, &ParseError{
			Command: "AT+CMGR", Response: lines, Reason: "expected header and PDU",
		}
	}
	m := cmgrPDURe.FindStringSubmatch(lines[0])
	if m == nil {
		return SMSMessage{}, &ParseError{
			Command: "AT+CMGR", Response: lines, Reason: "malformed PDU header",
		}
	}
	stat, _ := strconv.Atoi(m[1])

	raw := strings.TrimSpace(lines[1])
	decoded, err := pdu.DecodeDeliver(raw)
	if err != nil {
		return SMSMessage{}, &ParseError{
			Command: "AT+CMGR", Response: lines, Reason: "PDU decode: " + err.Error(),
		}
	}

	return SMSMessage{
		Index:     index,
		Status:    pduStatusName(stat),
		Sender:    decoded.Sender,
		Timestamp: decoded.Timestamp,
		Content:   decoded.Text,
		Encoding:  string(decoded.Encoding),
		PDU:       raw,
	}, nil
}

// parseCMGLText walks a text-mode message list: header lines introduce
// messages, following lines up to the next header are body.
func parseCMGLText(lines []string) []SMSMessage {
	var messages []SMSMessage

	for i := 0; i < len(lines); {
		m := cmglTextRe.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}
		index, _ := strconv.Atoi(m[1])

		i++
		var body []string
		for i < len(lines) && !strings.HasPrefix(lines[i], "+CMGL:") {
			body = append(body, lines[i])
			i++
		}

		messages = append(messages, SMSMessage{
			Index:     index,
			Status:    m[2],
			Sender:    m[3],
			Timestamp: m[4],
			Content:   strings.TrimSpace(strings.Join(body, "\n")),
			Encoding:  "text",
		})
	}

	return messages
}

// parseCMGLPDU walks a PDU-mode message list. Entries whose PDU fails
// to decode are skipped.
func parseCMGLPDU(lines []string, logger *slog.Logger) []SMSMessage {
	var messages []SMSMessage

	for i := 0; i < len(lines); i++ {
		m := cmglPDURe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		index, _ := strconv.Atoi(m[1])
		stat, _ := strconv.Atoi(m[2])

		i++
		if i >= len(lines) {
			break
		}
		raw := strings.TrimSpace(lines[i])

		decoded, err := pdu.DecodeDeliver(raw)
		if err != nil {
			logger.Warn("skipping malformed PDU in message list", "index", index, "error", err)
			continue
		}

		messages = append(messages, SMSMessage{
			Index:     index,
			Status:    pduStatusName(stat),
			Sender:    decoded.Sender,
			Timestamp: decoded.Timestamp,
			Content:   decoded.Text,
			Encoding:  string(decoded.Encoding),
			PDU:       raw,
		})
	}

	return messages
}

func pduStatusName(stat int) string {
	if name, ok := pduStatusNames[stat]; ok {
		return name
	}
	return "UNKNOWN (" + strconv.Itoa(stat) + ")"
}

// parseCPMS parses the three storage slots of +CPMS?.
func parseCPMS(lines []string) ([3]SMSStorage, error) {
	var out [3]SMSStorage
	if len(lines) == 0 {
		return out, &ParseError{Command: "AT+CPMS?", Reason: "empty response"}
	}
	m := cpmsRe.FindStringSubmatch(lines[0])
	if m == nil {
		return out, &ParseError{
			Command: "AT+CPMS?", Response: lines, Reason: "malformed response",
		}
	}
	for i := 0; i < 3; i++ {
		used, _ := strconv.Atoi(m[2+i*3])
		total, _ := strconv.Atoi(m[3+i*3])
		out[i] = SMSStorage{Type: m[1+i*3], Used: used, Total: total}
	}
	return out, nil
}

// parseStorageLocations extracts the first parenthesized list from a
// +CPMS=? response.
func parseStorageLocations(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	m := storageRe.FindStringSubmatch(lines[0])
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out
}
