package modem

import (
	"log/slog"

	"i4.energy/across/modemgw/at"
)

// NetworkManager answers registration and signal questions.
type NetworkManager struct {
	core   *Core
	logger *slog.Logger
}

// NewNetworkManager creates a NetworkManager over core.
func NewNetworkManager(core *Core, logger *slog.Logger) *NetworkManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkManager{core: core, logger: logger}
}

// SignalQuality queries the current RSSI/BER reading (AT+CSQ).
func (n *NetworkManager) SignalQuality() (SignalQuality, error) {
	lines, err := n.core.SendCommand(at.CmdSignal, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return SignalQuality{}, err
	}
	return parseSignalQuality(lines)
}

// RegistrationStatus queries network registration (AT+CREG?).
func (n *NetworkManager) RegistrationStatus() (RegistrationStatus, error) {
	lines, err := n.core.SendCommand(at.CmdRegistration, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return RegistrationStatus{}, err
	}
	return parseRegistration(lines)
}

// Operator queries the currently selected operator (AT+COPS?).
func (n *NetworkManager) Operator() (CurrentOperator, error) {
	lines, err := n.core.SendCommand(at.CmdOperator, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return CurrentOperator{}, err
	}
	return parseOperator(lines)
}

// NetworkInfo queries the serving cell details (AT+QNWINFO, Quectel).
func (n *NetworkManager) NetworkInfo() (NetworkInfo, error) {
	lines, err := n.core.SendCommand(at.CmdNetworkInfo, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return NetworkInfo{}, err
	}
	return parseNetworkInfo(lines)
}
