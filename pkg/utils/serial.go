package utils

import (
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPortInfo 串口信息
type SerialPortInfo struct {
	Name        string
	Description string
	VID         string
	PID         string
	IsUSB       bool
}

// allow tests to override the enumerators
var (
	getPortsList    = serial.GetPortsList
	getDetailedList = enumerator.GetDetailedPortsList
	probePort       = func(name string) error {
		p, err := serial.Open(name, &serial.Mode{BaudRate: 9600})
		if err != nil {
			return err
		}
		return p.Close()
	}
)

// Catalog 串口目录 (PortCatalog)
type Catalog struct {
	// Probe lists only ports that can actually be opened and closed.
	Probe bool
}

// ListAvailablePorts 返回排序后的串口名称列表
func (c Catalog) ListAvailablePorts() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, err
	}

	var result []string
	for _, port := range ports {
		// On macOS, prefer /dev/cu. over /dev/tty.
		if strings.HasPrefix(port, "/dev/tty.") {
			continue
		}
		if c.Probe {
			if err := probePort(port); err != nil {
				continue
			}
		}
		result = append(result, port)
	}
	sort.Strings(result)
	return result, nil
}

// GetAvailableSerialPorts 获取可用的串口详细信息
func GetAvailableSerialPorts() ([]SerialPortInfo, error) {
	ports, err := getDetailedList()
	if err != nil {
		return nil, err
	}

	result := make([]SerialPortInfo, 0, len(ports))
	for _, port := range ports {
		result = append(result, SerialPortInfo{
			Name:        port.Name,
			Description: port.Product,
			VID:         port.VID,
			PID:         port.PID,
			IsUSB:       port.IsUSB,
		})
	}
	return result, nil
}

// PreferredPort 优先选择USB串口作为默认端口
func PreferredPort(ports []string) string {
	if len(ports) == 0 {
		return ""
	}
	for _, port := range ports {
		if strings.Contains(port, "usbmodem") || strings.Contains(port, "usbserial") || strings.Contains(port, "ttyUSB") {
			return port
		}
	}
	return ports[0]
}
