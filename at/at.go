package at

const (
	// Terminal control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Response codes
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"

	// Common commands
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdModelInfo     = "ATI"
	CmdIMEI          = "AT+GSN"
	CmdFirmware      = "AT+QGMR"
	CmdSimStatus     = "AT+CPIN?"
	CmdSignal        = "AT+CSQ"
	CmdRegistration  = "AT+CREG?"
	CmdOperator      = "AT+COPS?"
	CmdNetworkInfo   = "AT+QNWINFO"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg        = "+CMTI:"
	UrcMessageReport = "+CDSI:"
	UrcCall          = "RING"
)

// IsFinal reports whether line terminates a solicited response.
func IsFinal(line string) bool {
	return line == OK || line == ERROR
}
