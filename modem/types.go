package modem

// RegistrationState holds the <stat> value from +CREG.
type RegistrationState int

const (
	NotRegistered       RegistrationState = 0
	RegisteredHome      RegistrationState = 1
	Searching           RegistrationState = 2
	RegistrationDenied  RegistrationState = 3
	RegistrationUnknown RegistrationState = 4
	RegisteredRoaming   RegistrationState = 5
)

// MessageFormat selects the SMS wire format (AT+CMGF).
type MessageFormat int

const (
	PDUMode  MessageFormat = 0
	TextMode MessageFormat = 1
)

// SIMState holds the +CPIN status string.
type SIMState string

const (
	SIMReady       SIMState = "READY"
	SIMPinRequired SIMState = "SIM PIN"
	SIMPukRequired SIMState = "SIM PUK"
)

// ModelInfo is the ATI identification block.
type ModelInfo struct {
	Manufacturer string
	Model        string
	Revision     string
}

// SignalQuality is the +CSQ reading.
//
// RSSI 0 means -113 dBm or less, 31 means -51 dBm or greater, 99 means
// not detectable. BER 99 likewise means unknown.
type SignalQuality struct {
	RSSI int
	BER  int
}

// RSSIdBm converts the RSSI index to dBm. It returns (0, false) when
// the reading is not detectable.
func (s SignalQuality) RSSIdBm() (int, bool) {
	switch {
	case s.RSSI == 99:
		return 0, false
	case s.RSSI <= 0:
		return -113, true
	case s.RSSI >= 31:
		return -51, true
	default:
		return -113 + s.RSSI*2, true
	}
}

// Valid reports whether the signal reading is usable.
func (s SignalQuality) Valid() bool {
	return s.RSSI != 99
}

// RegistrationStatus is the +CREG? reading. LAC and CellID are only
// present when location reporting is enabled.
type RegistrationStatus struct {
	Mode   int
	Stat   RegistrationState
	LAC    string
	CellID string
}

// Registered reports registration on the home network or roaming.
func (r RegistrationStatus) Registered() bool {
	return r.Stat == RegisteredHome || r.Stat == RegisteredRoaming
}

// CurrentOperator is the +COPS? reading.
type CurrentOperator struct {
	Mode     int
	Format   int
	Operator string
	Act      int
}

// NetworkInfo is the Quectel +QNWINFO reading.
type NetworkInfo struct {
	RAT      string
	Operator string
	Band     string
	CellID   int
}

// SMSMessage is one message as stored on the modem. Immutable once
// parsed.
type SMSMessage struct {
	Index     int
	Status    string
	Sender    string
	Timestamp string
	Content   string
	Encoding  string
	// PDU carries the raw hex PDU when the message was read in PDU
	// mode.
	PDU string
}

// SMSStorage describes one preferred-storage slot from +CPMS.
type SMSStorage struct {
	Type  string
	Used  int
	Total int
}
