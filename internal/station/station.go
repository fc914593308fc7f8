// Package station 管理测量模式和校准模式, 两者互斥
package station

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"ptestbench/internal/ascii"
	"ptestbench/internal/calibration"
	"ptestbench/internal/config"
	"ptestbench/internal/i18n"
	"ptestbench/internal/logger"
	"ptestbench/internal/modbus"
	"ptestbench/internal/poller"
	"ptestbench/internal/session"
	"ptestbench/internal/status"
	"ptestbench/pkg/datatypes"
)

var (
	ErrBusy         = errors.New("station: calibration already running")
	ErrNoPort       = errors.New("station: port not configured")
	ErrNotMeasuring = errors.New("station: measurement mode is not active")
)

// Port is what both the poller and the calibration sequence need from a serial session.
type Port interface {
	poller.Session
	calibration.Session
}

var newPort = func(cfg session.Config) Port { return session.New(cfg) }

// Mode 当前模式
type Mode int

const (
	ModeIdle Mode = iota
	ModeMeasuring
	ModeCalibrating
)

func (m Mode) String() string {
	switch m {
	case ModeMeasuring:
		return "measuring"
	case ModeCalibrating:
		return "calibrating"
	default:
		return "idle"
	}
}

// Station owns both sessions; pollers and the sequencer only borrow them.
type Station struct {
	cfg      *config.Config
	reporter status.Reporter
	sink     poller.Sink

	measurement Port
	reference   Port

	mu         sync.Mutex
	mode       Mode
	measPoller *poller.Poller
	refPoller  *poller.Poller
	cancelCal  context.CancelFunc
	calDone    chan struct{}
}

// New 根据配置创建工作站; 未配置名称的端口保持为空
func New(cfg *config.Config, reporter status.Reporter, sink poller.Sink) (*Station, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = status.Nop{}
	}

	st := &Station{cfg: cfg, reporter: reporter, sink: sink}
	if name := cfg.Ports.Measurement.Name; name != "" {
		st.measurement = newPort(cfg.Ports.Measurement.Session())
	}
	if name := cfg.Ports.Reference.Name; name != "" {
		st.reference = newPort(cfg.Ports.Reference.Session())
	}
	return st, nil
}

// Mode 当前模式
func (s *Station) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// StartMeasurement 启动测量模式
// A running calibration is cancelled first. Starting twice is a no-op.
func (s *Station) StartMeasurement() error {
	s.stopCalibration()

	s.mu.Lock()
	if s.mode == ModeMeasuring {
		s.mu.Unlock()
		return nil
	}
	if s.measurement == nil {
		s.mu.Unlock()
		return errors.Wrap(ErrNoPort, "measurement")
	}

	mp, err := s.newPoller(s.measurement, s.cfg.Measurement)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "measurement poll")
	}
	var rp *poller.Poller
	if s.cfg.ReferencePoll.Enabled && s.reference != nil {
		if rp, err = s.newPoller(s.reference, s.cfg.ReferencePoll); err != nil {
			s.mu.Unlock()
			return errors.Wrap(err, "reference poll")
		}
	}

	if err := mp.Start(); err != nil {
		s.mu.Unlock()
		s.reporter.OnError(s.measurement.Name(), i18n.T(i18n.MsgPortOpenFailed, err))
		return errors.Wrapf(err, "start polling %s", s.measurement.Name())
	}
	if rp != nil {
		if err := rp.Start(); err != nil {
			s.mu.Unlock()
			stopPollers([]*poller.Poller{mp})
			s.reporter.OnError(s.reference.Name(), i18n.T(i18n.MsgPortOpenFailed, err))
			return errors.Wrapf(err, "start polling %s", s.reference.Name())
		}
	}

	s.measPoller, s.refPoller = mp, rp
	s.mode = ModeMeasuring
	s.mu.Unlock()

	logger.Info(i18n.T(i18n.MsgMeasureStarted))
	return nil
}

// Queue 为测量端口的下一周期排入一次性请求
func (s *Station) Queue(req poller.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeMeasuring || s.measPoller == nil {
		return ErrNotMeasuring
	}
	s.measPoller.Queue(req)
	return nil
}

// RunCalibration 停止测量, 打开两个端口并执行一次校准流程
// Both ports are closed again when the sequence ends.
func (s *Station) RunCalibration(ctx context.Context, sink func(calibration.Point)) ([]calibration.Point, error) {
	s.mu.Lock()
	if s.mode == ModeCalibrating {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	running := s.takePollersLocked()

	if s.measurement == nil || s.reference == nil {
		s.mu.Unlock()
		stopPollers(running)
		s.reporter.OnError("", i18n.T(i18n.MsgPortsNotReady))
		return nil, calibration.ErrPortsNotReady
	}

	seq, err := calibration.New(s.sequenceConfig(), s.measurement, s.reference, s.reporter)
	if err != nil {
		s.mu.Unlock()
		stopPollers(running)
		return nil, errors.Wrap(err, "calibration setup")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mode = ModeCalibrating
	s.cancelCal, s.calDone = cancel, done
	s.mu.Unlock()

	// pollers wait for their in-flight cycle, so they are stopped without holding s.mu
	stopPollers(running)
	for _, p := range []Port{s.measurement, s.reference} {
		if err := p.Open(); err != nil && !errors.Is(err, session.ErrAlreadyOpen) {
			logger.WithPort(p.Name()).Errorf("open for calibration: %v", err)
			s.reporter.OnError(p.Name(), i18n.T(i18n.MsgPortOpenFailed, err))
		}
	}

	points, err := seq.Run(ctx, sink)

	cancel()
	s.measurement.Close()
	s.reference.Close()
	s.mu.Lock()
	if s.calDone == done {
		s.mode = ModeIdle
		s.cancelCal, s.calDone = nil, nil
	}
	s.mu.Unlock()
	close(done)

	if err != nil {
		return points, errors.Wrap(err, "calibration")
	}
	return points, nil
}

// Stop 停止所有模式并关闭两个端口
func (s *Station) Stop() error {
	s.stopCalibration()

	s.mu.Lock()
	wasMeasuring := s.mode == ModeMeasuring
	running := s.takePollersLocked()
	s.mode = ModeIdle
	s.mu.Unlock()

	stopPollers(running)

	var firstErr error
	for _, p := range []Port{s.measurement, s.reference} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close %s", p.Name())
		}
	}
	if wasMeasuring {
		logger.Info(i18n.T(i18n.MsgMeasureStopped))
	}
	return firstErr
}

// stopCalibration cancels a running sequence and waits until it has released the ports.
func (s *Station) stopCalibration() {
	s.mu.Lock()
	cancel, done := s.cancelCal, s.calDone
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// takePollersLocked detaches the running pollers; the caller stops them after unlocking.
func (s *Station) takePollersLocked() []*poller.Poller {
	var running []*poller.Poller
	for _, p := range []*poller.Poller{s.measPoller, s.refPoller} {
		if p != nil {
			running = append(running, p)
		}
	}
	s.measPoller, s.refPoller = nil, nil
	if s.mode == ModeMeasuring {
		s.mode = ModeIdle
	}
	return running
}

func stopPollers(pollers []*poller.Poller) {
	for _, p := range pollers {
		if err := p.Stop(); err != nil {
			logger.WithPort(p.Port()).Warnf("close after polling: %v", err)
		}
	}
}

func (s *Station) newPoller(port Port, pc config.PollConfig) (*poller.Poller, error) {
	task, err := pollTask(port, pc, s.sink)
	if err != nil {
		return nil, err
	}
	return poller.New(task, s.reporter)
}

func pollTask(port poller.Session, pc config.PollConfig, sink poller.Sink) (poller.Task, error) {
	dt, err := datatypes.ParseDataType(pc.DataType)
	if err != nil {
		return poller.Task{}, err
	}
	bo, err := datatypes.ParseByteOrder(pc.ByteOrder)
	if err != nil {
		return poller.Task{}, err
	}

	task := poller.Task{
		Session: port,
		Sink:    sink,
		Period:  config.Millis(pc.IntervalMs),
		Settle:  config.Millis(pc.SettleMs),
		Decoder: poller.RegisterDecoder{
			Converter: datatypes.NewConverter(bo, datatypes.WORD_1234),
			DataType:  dt,
			Scale:     pc.Scale,
		},
	}

	switch pc.Request {
	case config.RequestModbus:
		frame := modbus.BuildReadRequest(pc.SlaveID, pc.Register, pc.Count)
		task.Build = func() poller.Request { return poller.ModbusRequest(frame) }
	default:
		cmd := pc.Command
		if cmd == "" {
			cmd = ascii.BuildPollCommand()
		}
		task.Build = func() poller.Request { return poller.ASCIIRequest(cmd) }
	}
	return task, nil
}

func (s *Station) sequenceConfig() calibration.Config {
	cc := s.cfg.Calibration
	points := make([]calibration.ReferencePoint, 0, len(cc.Points))
	for _, p := range cc.Points {
		points = append(points, calibration.ReferencePoint{Value: p.Value, Command: p.Command})
	}
	return calibration.Config{
		Points:      points,
		AckDelay:    config.Millis(cc.AckDelayMs),
		AckAttempts: cc.AckAttempts,
		Settle:      config.Millis(cc.SettleMs),
		AckMarker:   cc.AckMarker,
	}
}

// ResolvePorts 端口名优先级: 命令行 > 配置文件 > 上次使用
func ResolvePorts(cfg *config.Config, store config.SettingsStore, port1, port2 string) {
	pick := func(flag, current, slot string) string {
		if flag != "" {
			return flag
		}
		if current != "" {
			return current
		}
		if store != nil {
			return store.LoadLastPort(slot)
		}
		return ""
	}
	cfg.Ports.Measurement.Name = pick(port1, cfg.Ports.Measurement.Name, config.SlotMeasurement)
	cfg.Ports.Reference.Name = pick(port2, cfg.Ports.Reference.Name, config.SlotReference)
}

// RememberPorts 保存当前端口名
func RememberPorts(cfg *config.Config, store config.SettingsStore) error {
	if name := cfg.Ports.Measurement.Name; name != "" {
		if err := store.SaveLastPort(config.SlotMeasurement, name); err != nil {
			return errors.Wrap(err, "save measurement port")
		}
	}
	if name := cfg.Ports.Reference.Name; name != "" {
		if err := store.SaveLastPort(config.SlotReference, name); err != nil {
			return errors.Wrap(err, "save reference port")
		}
	}
	return nil
}
