package modem

import (
	"log/slog"

	"i4.energy/across/modemgw/at"
)

// DeviceManager answers identity and SIM questions about the modem.
type DeviceManager struct {
	core   *Core
	logger *slog.Logger
}

// NewDeviceManager creates a DeviceManager over core.
func NewDeviceManager(core *Core, logger *slog.Logger) *DeviceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceManager{core: core, logger: logger}
}

// ModelInfo queries manufacturer, model and firmware revision (ATI).
func (d *DeviceManager) ModelInfo() (ModelInfo, error) {
	lines, err := d.core.SendCommand(at.CmdModelInfo, CommandOptions{StripOK: true})
	if err != nil {
		return ModelInfo{}, err
	}
	return parseModelInfo(lines)
}

// IMEI queries the device serial number (AT+GSN).
func (d *DeviceManager) IMEI() (string, error) {
	lines, err := d.core.SendCommand(at.CmdIMEI, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return "", err
	}
	return parseSingleLine(at.CmdIMEI, lines)
}

// FirmwareVersion queries the detailed firmware build (AT+QGMR).
func (d *DeviceManager) FirmwareVersion() (string, error) {
	lines, err := d.core.SendCommand(at.CmdFirmware, CommandOptions{StripOK: true})
	if err != nil {
		return "", err
	}
	return parseSingleLine(at.CmdFirmware, lines)
}

// SIMState queries the SIM status (AT+CPIN?).
func (d *DeviceManager) SIMState() (SIMState, error) {
	lines, err := d.core.SendCommand(at.CmdSimStatus, CommandOptions{StripOK: true, RemoveCmdPrefix: true})
	if err != nil {
		return "", err
	}
	state, err := parseSingleLine(at.CmdSimStatus, lines)
	if err != nil {
		return "", err
	}
	return SIMState(state), nil
}
