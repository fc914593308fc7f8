package session

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Config 串口参数
// Immutable while the session is open.
type Config struct {
	Name         string
	BaudRate     int
	DataBits     int
	Parity       string // N, E, O
	StopBits     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig 返回 9600 8-N-1 无流控配置
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		BaudRate:     9600,
		DataBits:     8,
		Parity:       "N",
		StopBits:     1,
		ReadTimeout:  2000 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

func (c Config) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch strings.ToUpper(c.Parity) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", c.Parity)
	}

	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", c.StopBits)
	}
	return mode, nil
}
