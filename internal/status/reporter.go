// Package status 定义核心向界面层报告通信状态的接口
package status

import (
	"sync"

	"ptestbench/internal/ascii"
	"ptestbench/internal/logger"
)

// Reporter 接收 TX/RX/读数/错误事件
// Calls are made synchronously from whichever goroutine ran the cycle; an
// implementation that drives a UI must marshal to its own context.
type Reporter interface {
	OnTxActive(port string)
	OnTxIdle(port string)
	OnRxActive(port string)
	OnRxIdle(port string)
	OnReading(port string, value float64)
	OnError(port string, message string)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) OnTxActive(string)         {}
func (Nop) OnTxIdle(string)           {}
func (Nop) OnRxActive(string)         {}
func (Nop) OnRxIdle(string)           {}
func (Nop) OnReading(string, float64) {}
func (Nop) OnError(string, string)    {}

// LogReporter 把事件写入日志
type LogReporter struct{}

func (LogReporter) OnTxActive(port string) { logger.WithPort(port).Debug("TX active") }
func (LogReporter) OnTxIdle(port string)   { logger.WithPort(port).Debug("TX idle") }
func (LogReporter) OnRxActive(port string) { logger.WithPort(port).Debug("RX active") }
func (LogReporter) OnRxIdle(port string)   { logger.WithPort(port).Debug("RX idle") }

func (LogReporter) OnReading(port string, value float64) {
	logger.WithPort(port).Info("reading ", ascii.FormatValue(value))
}

func (LogReporter) OnError(port string, message string) {
	logger.WithPort(port).Error(message)
}

// Multi 将事件依次转发给多个 Reporter
type Multi struct {
	mu        sync.RWMutex
	reporters []Reporter
}

// NewMulti 创建转发器
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// Add 追加 Reporter
func (m *Multi) Add(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

func (m *Multi) each(fn func(Reporter)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reporters {
		fn(r)
	}
}

func (m *Multi) OnTxActive(port string) { m.each(func(r Reporter) { r.OnTxActive(port) }) }
func (m *Multi) OnTxIdle(port string)   { m.each(func(r Reporter) { r.OnTxIdle(port) }) }
func (m *Multi) OnRxActive(port string) { m.each(func(r Reporter) { r.OnRxActive(port) }) }
func (m *Multi) OnRxIdle(port string)   { m.each(func(r Reporter) { r.OnRxIdle(port) }) }

func (m *Multi) OnReading(port string, value float64) {
	m.each(func(r Reporter) { r.OnReading(port, value) })
}

func (m *Multi) OnError(port string, message string) {
	m.each(func(r Reporter) { r.OnError(port, message) })
}
