package poller

import (
	"time"

	"ptestbench/internal/ascii"
)

// Kind 请求类型，决定响应的解码方式
type Kind int

const (
	ASCII Kind = iota
	Modbus
)

func (k Kind) String() string {
	if k == Modbus {
		return "modbus"
	}
	return "ascii"
}

// Request 一次发送的请求
type Request struct {
	Kind    Kind
	Payload []byte
}

// ASCIIRequest 构建以行结束符结尾的ASCII请求
func ASCIIRequest(cmd string) Request {
	return Request{Kind: ASCII, Payload: []byte(cmd + ascii.LineEnding)}
}

// ModbusRequest 包装一个已带CRC的RTU帧
func ModbusRequest(frame []byte) Request {
	return Request{Kind: Modbus, Payload: frame}
}

// State 轮询状态机
type State int32

const (
	Idle State = iota
	Requesting
	AwaitingSettle
	Receiving
	Decoding
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case AwaitingSettle:
		return "awaiting-settle"
	case Receiving:
		return "receiving"
	case Decoding:
		return "decoding"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome 一个周期的结果类别
type Outcome int

const (
	OutcomeReading Outcome = iota
	OutcomeEmpty           // nothing buffered after settle
	OutcomeAck             // valid reply carrying no value (Modbus write echo)
	OutcomeDecodeError
	OutcomeIOError
)

// Result 一个轮询周期产生的结果
type Result struct {
	Port    string
	At      time.Time
	Kind    Kind
	Raw     []byte
	Value   float64
	Outcome Outcome
	Err     error
}

// Sink 读数接收者
type Sink func(Result)

// Stats 周期计数
type Stats struct {
	Ticks   int64
	Cycles  int64
	Skipped int64
}
