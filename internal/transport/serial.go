package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// PortConfig describes a serial link. Values are passed through to the
// driver unchanged.
type PortConfig struct {
	Name        string  `yaml:"name"`
	BaudRate    int     `yaml:"baud_rate"`
	DataBits    int     `yaml:"data_bits"`
	Parity      string  `yaml:"parity"`       // none, odd, even, mark, space
	StopBits    float64 `yaml:"stop_bits"`    // 1, 1.5, 2
	FlowControl string  `yaml:"flow_control"` // none
}

// DefaultPortConfig is 115200 baud, 8 data bits, no parity, one stop bit and
// no flow control.
func DefaultPortConfig(name string) PortConfig {
	return PortConfig{
		Name:        name,
		BaudRate:    115200,
		DataBits:    8,
		Parity:      "none",
		StopBits:    1,
		FlowControl: "none",
	}
}

// Mode converts the configuration into a driver mode.
func (c PortConfig) Mode() (*serial.Mode, error) {
	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	dataBits := c.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d", c.DataBits)
	}

	var parity serial.Parity
	switch strings.ToLower(strings.TrimSpace(c.Parity)) {
	case "", "none", "n":
		parity = serial.NoParity
	case "odd", "o":
		parity = serial.OddParity
	case "even", "e":
		parity = serial.EvenParity
	case "mark", "m":
		parity = serial.MarkParity
	case "space", "s":
		parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", c.Parity)
	}

	var stopBits serial.StopBits
	switch c.StopBits {
	case 0, 1:
		stopBits = serial.OneStopBit
	case 1.5:
		stopBits = serial.OnePointFiveStopBits
	case 2:
		stopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %v", c.StopBits)
	}

	switch strings.ToLower(strings.TrimSpace(c.FlowControl)) {
	case "", "none":
	default:
		return nil, fmt.Errorf("flow control %q is not supported by the serial driver", c.FlowControl)
	}

	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

// openPort is swapped in tests.
var openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

func (c PortConfig) open() (serial.Port, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: no port name", ErrOpen)
	}
	mode, err := c.Mode()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, c.Name, err)
	}
	port, err := openPort(c.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, c.Name, err)
	}
	return port, nil
}

// SerialOpener returns an Opener for the configured port. Each record is
// drained to the device before the next one is accepted.
func SerialOpener(cfg PortConfig) Opener {
	return func(context.Context) (Transport, error) {
		port, err := cfg.open()
		if err != nil {
			return nil, err
		}
		return NewStreamTransport(port), nil
	}
}

// OpenSerialReader opens the configured port for reading. Reads return after
// readTimeout with no data so that callers can observe cancellation; a zero
// timeout blocks.
func OpenSerialReader(cfg PortConfig, readTimeout time.Duration) (io.ReadCloser, error) {
	port, err := cfg.open()
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: %s: set read timeout: %v", ErrOpen, cfg.Name, err)
		}
	}
	return port, nil
}
