package status

import (
	"fmt"
	"sync"
)

// Kind 事件类型
type Kind int

const (
	TxActive Kind = iota
	TxIdle
	RxActive
	RxIdle
	Reading
	Error
)

func (k Kind) String() string {
	switch k {
	case TxActive:
		return "TX active"
	case TxIdle:
		return "TX idle"
	case RxActive:
		return "RX active"
	case RxIdle:
		return "RX idle"
	case Reading:
		return "reading"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event 一条状态事件
type Event struct {
	Kind    Kind
	Port    string
	Value   float64
	Message string
}

func (e Event) String() string {
	switch e.Kind {
	case Reading:
		return fmt.Sprintf("%s %s %.2f", e.Port, e.Kind, e.Value)
	case Error:
		return fmt.Sprintf("%s %s: %s", e.Port, e.Kind, e.Message)
	default:
		return fmt.Sprintf("%s %s", e.Port, e.Kind)
	}
}

// Recorder 按顺序记录事件，供指示灯状态查询和测试使用
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) OnTxActive(port string) { r.add(Event{Kind: TxActive, Port: port}) }
func (r *Recorder) OnTxIdle(port string)   { r.add(Event{Kind: TxIdle, Port: port}) }
func (r *Recorder) OnRxActive(port string) { r.add(Event{Kind: RxActive, Port: port}) }
func (r *Recorder) OnRxIdle(port string)   { r.add(Event{Kind: RxIdle, Port: port}) }

func (r *Recorder) OnReading(port string, value float64) {
	r.add(Event{Kind: Reading, Port: port, Value: value})
}

func (r *Recorder) OnError(port string, message string) {
	r.add(Event{Kind: Error, Port: port, Message: message})
}

// Events 返回事件副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds 返回某端口的事件类型序列
func (r *Recorder) Kinds(port string) []Kind {
	var kinds []Kind
	for _, e := range r.Events() {
		if e.Port == port {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
