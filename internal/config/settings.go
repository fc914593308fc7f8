package config

import (
	"sync"
)

// 端口槽位
const (
	SlotMeasurement = "port1"
	SlotReference   = "port2"
)

// SettingsStore 记住上次使用的端口
type SettingsStore interface {
	LoadLastPort(slot string) string
	SaveLastPort(slot, name string) error
}

// FileSettings persists last_ports into the config file it was loaded from.
type FileSettings struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewFileSettings 使用已加载的配置; cfg 为 nil 时使用默认配置
func NewFileSettings(path string, cfg *Config) *FileSettings {
	if cfg == nil {
		cfg = Default()
	}
	return &FileSettings{path: path, cfg: cfg}
}

// LoadLastPort 返回槽位记住的端口名, 没有时返回空串
func (s *FileSettings) LoadLastPort(slot string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.LastPorts[slot]
}

// SaveLastPort 记住端口名并写回配置文件
func (s *FileSettings) SaveLastPort(slot, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.LastPorts == nil {
		s.cfg.LastPorts = make(map[string]string)
	}
	if s.cfg.LastPorts[slot] == name {
		return nil
	}
	s.cfg.LastPorts[slot] = name
	return s.cfg.Save(s.path)
}

// MemorySettings 不落盘的 SettingsStore
type MemorySettings struct {
	mu    sync.Mutex
	ports map[string]string
}

func (m *MemorySettings) LoadLastPort(slot string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[slot]
}

func (m *MemorySettings) SaveLastPort(slot, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ports == nil {
		m.ports = make(map[string]string)
	}
	m.ports[slot] = name
	return nil
}
