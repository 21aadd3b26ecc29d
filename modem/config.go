package modem

import (
	"log/slog"
	"time"
)

// Config carries everything needed to construct a Modem.
type Config struct {
	Dialer       Dialer
	ATTimeout    time.Duration
	URCQueueSize int
	Logger       *slog.Logger
	OnDisconnect func(error)
	LogURCs      bool
	SimPIN       string
}

// ConfigBuilder assembles a Config. Zero values are filled with
// defaults at Build time; a Dialer is mandatory.
type ConfigBuilder struct {
	cfg Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.cfg.Dialer = d
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithURCQueueSize(n int) *ConfigBuilder {
	b.cfg.URCQueueSize = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.cfg.Logger = l
	return b
}

// WithOnDisconnect sets a hook invoked once when the reader loop
// detects the device is gone.
func (b *ConfigBuilder) WithOnDisconnect(fn func(error)) *ConfigBuilder {
	b.cfg.OnDisconnect = fn
	return b
}

// WithSimPIN provides the PIN used to unlock the SIM during Start when
// the card reports it as locked.
func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.cfg.SimPIN = pin
	return b
}

// WithLogURCs logs every unsolicited line at info level.
func (b *ConfigBuilder) WithLogURCs(enabled bool) *ConfigBuilder {
	b.cfg.LogURCs = enabled
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if b.cfg.Dialer == nil {
		return Config{}, ErrNoDialer
	}
	cfg := b.cfg
	if cfg.ATTimeout <= 0 {
		cfg.ATTimeout = DefaultCommandTimeout
	}
	if cfg.URCQueueSize <= 0 {
		cfg.URCQueueSize = DefaultURCQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, nil
}
