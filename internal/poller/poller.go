// Package poller 按固定周期对单个串口发送请求、等待、读取并解码响应
package poller

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ptestbench/internal/ascii"
	"ptestbench/internal/i18n"
	"ptestbench/internal/logger"
	"ptestbench/internal/session"
	"ptestbench/internal/status"
)

// DefaultSettle 发送后等待设备响应的时间
const DefaultSettle = 100 * time.Millisecond

// Session abstracts the port operations a poll cycle needs.
type Session interface {
	Name() string
	IsOpen() bool
	Open() error
	Close() error
	Write(p []byte) error
	ReadAvailable() ([]byte, error)
}

// Task 轮询任务 (PollTask)
type Task struct {
	Session Session
	// Build returns the default request for a cycle; "#G" when nil.
	Build   func() Request
	Decoder Decoder
	Sink    Sink
	Period  time.Duration
	Settle  time.Duration
}

// Poller 单端口轮询器
// At most one cycle is in flight; a tick arriving while a cycle runs is skipped.
type Poller struct {
	task     Task
	reporter status.Reporter

	state atomic.Int32

	pendingMu sync.Mutex
	pending   *Request

	ticks   atomic.Int64
	cycles  atomic.Int64
	skipped atomic.Int64

	runMu    sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
}

// New 创建轮询器
func New(task Task, reporter status.Reporter) (*Poller, error) {
	if task.Session == nil {
		return nil, errors.New("poller: session required")
	}
	if task.Period <= 0 {
		return nil, errors.New("poller: period must be > 0")
	}
	if task.Settle <= 0 {
		task.Settle = DefaultSettle
	}
	if task.Build == nil {
		task.Build = func() Request { return ASCIIRequest(ascii.BuildPollCommand()) }
	}
	if task.Decoder == nil {
		task.Decoder = DefaultDecoder()
	}
	if reporter == nil {
		reporter = status.Nop{}
	}
	return &Poller{task: task, reporter: reporter}, nil
}

// Port 端口名
func (p *Poller) Port() string { return p.task.Session.Name() }

// State 当前状态
func (p *Poller) State() State { return State(p.state.Load()) }

// Stats 周期计数快照
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:   p.ticks.Load(),
		Cycles:  p.cycles.Load(),
		Skipped: p.skipped.Load(),
	}
}

// Queue 设置下一周期发送的一次性请求，替换已挂起的请求
func (p *Poller) Queue(req Request) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending = &req
}

func (p *Poller) nextRequest() Request {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	if p.pending != nil {
		req := *p.pending
		p.pending = nil
		return req
	}
	return p.task.Build()
}

// PollOnce 执行一个完整周期
// Returns false without touching the port when another cycle is in flight.
func (p *Poller) PollOnce() (Result, bool) {
	if !p.acquire() {
		return Result{}, false
	}
	defer p.setState(Idle)
	return p.cycle(), true
}

// acquire moves Idle -> Requesting; any other state means the tick is skipped.
func (p *Poller) acquire() bool {
	if p.state.CompareAndSwap(int32(Idle), int32(Requesting)) {
		return true
	}
	p.skipped.Add(1)
	return false
}

func (p *Poller) setState(s State) { p.state.Store(int32(s)) }

func (p *Poller) cycle() Result {
	p.cycles.Add(1)
	s := p.task.Session
	port := s.Name()
	log := logger.WithPort(port)

	res := Result{Port: port, At: time.Now()}

	if !s.IsOpen() {
		if err := s.Open(); err != nil && !errors.Is(err, session.ErrAlreadyOpen) {
			p.setState(Decoding)
			res.Outcome, res.Err = OutcomeIOError, err
			p.reporter.OnError(port, i18n.T(i18n.MsgPortOpenFailed, err))
			return p.emit(res)
		}
		log.Info("port reopened")
	}

	req := p.nextRequest()
	res.Kind = req.Kind

	p.reporter.OnTxActive(port)
	if err := s.Write(req.Payload); err != nil {
		p.reporter.OnTxIdle(port)
		p.setState(Decoding)
		res.Outcome, res.Err = OutcomeIOError, err
		p.reporter.OnError(port, status.Describe(err))
		return p.emit(res)
	}

	p.setState(AwaitingSettle)
	time.Sleep(p.task.Settle)
	p.reporter.OnTxIdle(port)

	p.setState(Receiving)
	raw, err := s.ReadAvailable()
	if err != nil {
		p.reporter.OnRxIdle(port)
		p.setState(Decoding)
		res.Outcome, res.Err = OutcomeIOError, err
		p.reporter.OnError(port, status.Describe(err))
		return p.emit(res)
	}
	if len(raw) == 0 {
		p.reporter.OnRxIdle(port)
		p.setState(Decoding)
		res.Outcome = OutcomeEmpty
		log.Debug(i18n.T(i18n.MsgNoResponse))
		return p.emit(res)
	}
	p.reporter.OnRxActive(port)

	p.setState(Decoding)
	res.Raw = raw
	var value float64
	if req.Kind == Modbus {
		value, err = p.task.Decoder.DecodeModbus(raw)
	} else {
		value, err = p.task.Decoder.DecodeASCII(raw)
	}

	switch {
	case errors.Is(err, ErrNoValue):
		res.Outcome = OutcomeAck
	case err != nil:
		res.Outcome, res.Err = OutcomeDecodeError, err
		log.Warnf("discarding reply %q: %v", raw, err)
		p.reporter.OnError(port, status.Describe(err))
	default:
		res.Outcome, res.Value = OutcomeReading, value
		p.reporter.OnReading(port, value)
	}
	return p.emit(res)
}

func (p *Poller) emit(res Result) Result {
	if p.task.Sink != nil {
		p.task.Sink(res)
	}
	return res
}
