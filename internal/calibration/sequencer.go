// Package calibration 驱动参考电流源并与测量端口比较的校准流程
package calibration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ptestbench/internal/ascii"
	"ptestbench/internal/i18n"
	"ptestbench/internal/logger"
	"ptestbench/internal/status"
)

var ErrPortsNotReady = errors.New("calibration: measurement and reference ports must both be open")

// Session is the port surface the sequence drives on both ports.
type Session interface {
	Name() string
	IsOpen() bool
	WriteLine(text string) error
	ReadAvailable() ([]byte, error)
	DiscardInput() error
}

// ReferencePoint 参考点; Command 为空时按位置生成 #T0 / #T1
type ReferencePoint struct {
	Value   float64
	Command string
}

// Config 校准时序参数
type Config struct {
	Points      []ReferencePoint
	AckDelay    time.Duration
	AckAttempts int
	Settle      time.Duration
	AckMarker   string
}

// DefaultConfig 4.00 mA 和 19.5 mA 两点校准
func DefaultConfig() Config {
	return Config{
		Points: []ReferencePoint{
			{Value: 4.00, Command: "#T0"},
			{Value: 19.5, Command: "#T1"},
		},
		AckDelay:    time.Second,
		AckAttempts: 3,
		Settle:      500 * time.Millisecond,
		AckMarker:   ascii.AckMarker,
	}
}

// Point 一个参考点的校准结果
type Point struct {
	Reference    float64
	Measured     float64
	Error        float64 // Reference - Measured
	Acknowledged bool
	Attempts     int
}

func (p Point) String() string {
	return i18n.T(i18n.MsgCalibrationPoint,
		ascii.FormatValue(p.Reference), ascii.FormatValue(p.Measured), ascii.FormatValue(p.Error))
}

// Step 单个参考点内的状态
type Step int

const (
	SetReference Step = iota
	AwaitAck
	Settle
	SampleMeasurement
	ComputeResult
	Done
)

func (s Step) String() string {
	switch s {
	case SetReference:
		return "set-reference"
	case AwaitAck:
		return "await-ack"
	case Settle:
		return "settle"
	case SampleMeasurement:
		return "sample-measurement"
	case ComputeResult:
		return "compute-result"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Sequencer 校准流程
type Sequencer struct {
	cfg         Config
	points      []ReferencePoint // ascending, commands resolved
	measurement Session
	reference   Session
	reporter    status.Reporter

	// OnStep observes state transitions; nil is fine.
	OnStep func(point float64, step Step)
}

// New 创建校准流程
func New(cfg Config, measurement, reference Session, reporter status.Reporter) (*Sequencer, error) {
	if measurement == nil || reference == nil {
		return nil, errors.New("calibration: both sessions required")
	}
	if len(cfg.Points) == 0 {
		return nil, errors.New("calibration: at least one reference point required")
	}
	if cfg.AckAttempts < 1 {
		cfg.AckAttempts = 1
	}
	if reporter == nil {
		reporter = status.Nop{}
	}

	points := append([]ReferencePoint(nil), cfg.Points...)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Value < points[j].Value })

	values := make([]float64, len(points))
	for i, p := range points {
		if i > 0 && p.Value == values[i-1] {
			return nil, fmt.Errorf("calibration: reference point %.2f listed twice", p.Value)
		}
		values[i] = p.Value
	}
	for i := range points {
		if points[i].Command != "" {
			continue
		}
		cmd, err := ascii.BuildReferenceCommand(values, points[i].Value)
		if err != nil {
			return nil, err
		}
		points[i].Command = cmd
	}

	return &Sequencer{
		cfg:         cfg,
		points:      points,
		measurement: measurement,
		reference:   reference,
		reporter:    reporter,
	}, nil
}

// Points 按执行顺序返回参考点
func (s *Sequencer) Points() []ReferencePoint {
	return append([]ReferencePoint(nil), s.points...)
}

// Run 依次执行所有参考点
// Both ports must be open before the first command is sent. Cancelling ctx
// stops between steps and returns the points finished so far.
func (s *Sequencer) Run(ctx context.Context, sink func(Point)) ([]Point, error) {
	if !s.measurement.IsOpen() || !s.reference.IsOpen() {
		s.reporter.OnError(s.measurement.Name(), i18n.T(i18n.MsgPortsNotReady))
		return nil, ErrPortsNotReady
	}

	results := make([]Point, 0, len(s.points))
	for _, rp := range s.points {
		point, err := s.runPoint(ctx, rp)
		if err != nil {
			return results, err
		}
		results = append(results, point)
		if sink != nil {
			sink(point)
		}
	}
	return results, nil
}

func (s *Sequencer) step(value float64, st Step) {
	if s.OnStep != nil {
		s.OnStep(value, st)
	}
}

func (s *Sequencer) runPoint(ctx context.Context, rp ReferencePoint) (Point, error) {
	refPort := s.reference.Name()
	log := logger.WithPort(refPort).WithField("reference", ascii.FormatValue(rp.Value))
	point := Point{Reference: rp.Value}

	s.step(rp.Value, SetReference)
	if err := s.reference.DiscardInput(); err != nil {
		s.reporter.OnError(refPort, status.Describe(err))
	}

	for attempt := 1; attempt <= s.cfg.AckAttempts; attempt++ {
		s.step(rp.Value, AwaitAck)
		point.Attempts = attempt

		s.reporter.OnTxActive(refPort)
		err := s.reference.WriteLine(rp.Command)
		s.reporter.OnTxIdle(refPort)
		if err != nil {
			s.reporter.OnError(refPort, status.Describe(err))
			continue
		}
		log.Infof("sent %s (attempt %d/%d)", rp.Command, attempt, s.cfg.AckAttempts)

		if err := sleep(ctx, s.cfg.AckDelay); err != nil {
			return point, err
		}

		raw, err := s.reference.ReadAvailable()
		if err != nil {
			s.reporter.OnRxIdle(refPort)
			s.reporter.OnError(refPort, status.Describe(err))
			continue
		}
		reply := string(raw)
		if ascii.AcknowledgedBy(reply, s.cfg.AckMarker) {
			s.reporter.OnRxActive(refPort)
			if v, err := ascii.AckValue(reply, s.cfg.AckMarker); err == nil {
				s.reporter.OnReading(refPort, v)
			}
			point.Acknowledged = true
			break
		}
		s.reporter.OnRxIdle(refPort)
		if attempt < s.cfg.AckAttempts {
			log.Warn(i18n.T(i18n.MsgAckRetry, rp.Command, attempt, s.cfg.AckAttempts))
		}
	}
	if !point.Acknowledged {
		// degraded: the measurement still runs against whatever the board outputs
		s.reporter.OnError(refPort, i18n.T(i18n.MsgAckMissing, rp.Command, point.Attempts))
	}

	s.step(rp.Value, Settle)
	if err := sleep(ctx, s.cfg.Settle); err != nil {
		return point, err
	}

	s.step(rp.Value, SampleMeasurement)
	point.Measured = s.sample()

	s.step(rp.Value, ComputeResult)
	point.Error = point.Reference - point.Measured
	logger.WithPort(s.measurement.Name()).Info(point.String())

	s.step(rp.Value, Done)
	return point, nil
}

// sample reads the measurement port; anything unparseable counts as 0 mA.
func (s *Sequencer) sample() float64 {
	port := s.measurement.Name()
	raw, err := s.measurement.ReadAvailable()
	if err != nil {
		s.reporter.OnRxIdle(port)
		s.reporter.OnError(port, status.Describe(err))
		return 0
	}
	if len(raw) == 0 {
		s.reporter.OnRxIdle(port)
		logger.WithPort(port).Warn(i18n.T(i18n.MsgNoResponse), ", using 0")
		return 0
	}
	s.reporter.OnRxActive(port)

	value, err := ascii.ExtractNumeric(string(raw))
	if err != nil {
		logger.WithPort(port).Warnf("measurement %q unparseable, using 0", raw)
		return 0
	}
	s.reporter.OnReading(port, value)
	return value
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("calibration cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
