package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ptestbench/internal/session"
)

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid configuration")

// 请求类型
const (
	RequestASCII  = "ascii"
	RequestModbus = "modbus"
)

// Config 应用配置结构
type Config struct {
	Ports         PortsConfig       `json:"ports" yaml:"ports"`
	Measurement   PollConfig        `json:"measurement" yaml:"measurement"`
	ReferencePoll PollConfig        `json:"reference_poll" yaml:"reference_poll"`
	Calibration   CalibrationConfig `json:"calibration" yaml:"calibration"`
	LogLevel      string            `json:"log_level" yaml:"log_level"`
	LogDir        string            `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	Language      string            `json:"language,omitempty" yaml:"language,omitempty"`
	LastPorts     map[string]string `json:"last_ports,omitempty" yaml:"last_ports,omitempty"`
}

// PortsConfig 测量端口和参考端口
type PortsConfig struct {
	Measurement PortConfig `json:"measurement" yaml:"measurement"`
	Reference   PortConfig `json:"reference" yaml:"reference"`
}

// PortConfig 串口连接配置
type PortConfig struct {
	Name           string `json:"name" yaml:"name"`
	BaudRate       int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits       int    `json:"data_bits" yaml:"data_bits"`
	StopBits       int    `json:"stop_bits" yaml:"stop_bits"`
	Parity         string `json:"parity" yaml:"parity"`
	ReadTimeoutMs  int    `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `json:"write_timeout_ms" yaml:"write_timeout_ms"`
}

// PollConfig 轮询任务配置
type PollConfig struct {
	// Enabled only matters for reference_poll; the measurement poll always runs.
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	IntervalMs int    `json:"interval_ms" yaml:"interval_ms"`
	SettleMs   int    `json:"settle_ms" yaml:"settle_ms"`
	Request    string `json:"request" yaml:"request"`
	Command    string `json:"command,omitempty" yaml:"command,omitempty"`

	// Modbus read settings
	SlaveID   byte    `json:"slave_id" yaml:"slave_id"`
	Register  uint16  `json:"register" yaml:"register"`
	Count     uint16  `json:"count" yaml:"count"`
	DataType  string  `json:"data_type" yaml:"data_type"`
	ByteOrder string  `json:"byte_order" yaml:"byte_order"`
	Scale     float64 `json:"scale" yaml:"scale"`
}

// CalibrationPointConfig 参考点
type CalibrationPointConfig struct {
	Value   float64 `json:"value" yaml:"value"`
	Command string  `json:"command,omitempty" yaml:"command,omitempty"`
}

// CalibrationConfig 校准时序配置
type CalibrationConfig struct {
	Points      []CalibrationPointConfig `json:"points" yaml:"points"`
	AckDelayMs  int                      `json:"ack_delay_ms" yaml:"ack_delay_ms"`
	AckAttempts int                      `json:"ack_attempts" yaml:"ack_attempts"`
	SettleMs    int                      `json:"settle_ms" yaml:"settle_ms"`
	AckMarker   string                   `json:"ack_marker" yaml:"ack_marker"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Ports: PortsConfig{
			Measurement: defaultPort(""),
			Reference:   defaultPort(""),
		},
		Measurement: PollConfig{
			Enabled:    true,
			IntervalMs: 300,
			SettleMs:   100,
			Request:    RequestASCII,
			Command:    "#G",
			SlaveID:    1,
			Register:   0x0200,
			Count:      8,
			DataType:   "INT16",
			ByteOrder:  "BA",
			Scale:      0.001,
		},
		ReferencePoll: PollConfig{
			Enabled:    false,
			IntervalMs: 500,
			SettleMs:   100,
			Request:    RequestModbus,
			SlaveID:    1,
			Register:   0x0200,
			Count:      8,
			DataType:   "INT16",
			ByteOrder:  "BA",
			Scale:      0.001,
		},
		Calibration: CalibrationConfig{
			Points: []CalibrationPointConfig{
				{Value: 4.00, Command: "#T0"},
				{Value: 19.5, Command: "#T1"},
			},
			AckDelayMs:  1000,
			AckAttempts: 3,
			SettleMs:    500,
			AckMarker:   "=",
		},
		LogLevel: "info",
	}
}

func defaultPort(name string) PortConfig {
	d := session.DefaultConfig(name)
	return PortConfig{
		Name:           name,
		BaudRate:       d.BaudRate,
		DataBits:       d.DataBits,
		StopBits:       d.StopBits,
		Parity:         d.Parity,
		ReadTimeoutMs:  int(d.ReadTimeout / time.Millisecond),
		WriteTimeoutMs: int(d.WriteTimeout / time.Millisecond),
	}
}

// Session 转换为串口会话配置
func (p PortConfig) Session() session.Config {
	cfg := session.DefaultConfig(p.Name)
	if p.BaudRate > 0 {
		cfg.BaudRate = p.BaudRate
	}
	if p.DataBits > 0 {
		cfg.DataBits = p.DataBits
	}
	if p.StopBits > 0 {
		cfg.StopBits = p.StopBits
	}
	if p.Parity != "" {
		cfg.Parity = p.Parity
	}
	if p.ReadTimeoutMs > 0 {
		cfg.ReadTimeout = Millis(p.ReadTimeoutMs)
	}
	if p.WriteTimeoutMs > 0 {
		cfg.WriteTimeout = Millis(p.WriteTimeoutMs)
	}
	return cfg
}

// Millis 毫秒转 time.Duration
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DefaultPath 可执行文件同目录下的 config.json
func DefaultPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(filepath.Dir(exePath), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load 加载配置文件
// Missing keys keep their defaults. An empty path means DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Save 保存配置文件
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	// 确保配置目录存在
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	return errors.Wrapf(os.WriteFile(path, data, 0644), "write config %s", path)
}

// Validate 声明式校验
func Validate(c *Config) error {
	if c == nil {
		return errors.Wrap(ErrInvalid, "nil config")
	}

	m, r := c.Ports.Measurement.Name, c.Ports.Reference.Name
	if m != "" && r != "" && m == r {
		return errors.Wrapf(ErrInvalid, "measurement and reference share port %s", m)
	}

	if err := validatePoll("measurement", c.Measurement); err != nil {
		return err
	}
	if c.ReferencePoll.Enabled {
		if err := validatePoll("reference_poll", c.ReferencePoll); err != nil {
			return err
		}
	}

	cal := c.Calibration
	if len(cal.Points) == 0 {
		return errors.Wrap(ErrInvalid, "calibration needs at least one point")
	}
	seen := make(map[float64]bool, len(cal.Points))
	for i, p := range cal.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return errors.Wrapf(ErrInvalid, "calibration point %d is not finite", i)
		}
		if seen[p.Value] {
			return errors.Wrapf(ErrInvalid, "calibration point %.2f listed twice", p.Value)
		}
		seen[p.Value] = true
	}
	if cal.AckAttempts < 1 {
		return errors.Wrap(ErrInvalid, "calibration.ack_attempts must be >= 1")
	}
	if cal.AckDelayMs <= 0 || cal.SettleMs <= 0 {
		return errors.Wrap(ErrInvalid, "calibration delays must be > 0")
	}
	return nil
}

func validatePoll(name string, p PollConfig) error {
	if p.IntervalMs <= 0 {
		return errors.Wrapf(ErrInvalid, "%s.interval_ms must be > 0", name)
	}
	if p.SettleMs <= 0 {
		return errors.Wrapf(ErrInvalid, "%s.settle_ms must be > 0", name)
	}
	switch p.Request {
	case RequestASCII:
	case RequestModbus:
		if p.Count == 0 || p.Count > 125 {
			return errors.Wrapf(ErrInvalid, "%s.count must be 1..125", name)
		}
		if math.IsNaN(p.Scale) || math.IsInf(p.Scale, 0) {
			return errors.Wrapf(ErrInvalid, "%s.scale is not finite", name)
		}
	default:
		return errors.Wrapf(ErrInvalid, "%s.request %q unknown", name, p.Request)
	}
	return nil
}
