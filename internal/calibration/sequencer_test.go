package calibration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptestbench/internal/status"
)

// scriptSession answers ReadAvailable from a queue; an empty queue reads nothing.
type scriptSession struct {
	mu       sync.Mutex
	name     string
	open     bool
	replies  []string
	written  []string
	discards int
	writeErr error
}

func newScript(name string, replies ...string) *scriptSession {
	return &scriptSession{name: name, open: true, replies: replies}
}

func (s *scriptSession) Name() string { return s.name }
func (s *scriptSession) IsOpen() bool { return s.open }

func (s *scriptSession) WriteLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	s.written = append(s.written, text)
	return nil
}

func (s *scriptSession) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return nil, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(r), nil
}

func (s *scriptSession) DiscardInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discards++
	return nil
}

func fastConfig(points ...ReferencePoint) Config {
	cfg := DefaultConfig()
	cfg.AckDelay = 0
	cfg.Settle = 0
	if len(points) > 0 {
		cfg.Points = points
	}
	return cfg
}

func TestRun_TwoPointsEndToEnd(t *testing.T) {
	meas := newScript("COM3", "3.98mA", "19.52mA")
	ref := newScript("COM4", "T0=4.00", "T1=19.50")
	rec := &status.Recorder{}

	seq, err := New(fastConfig(), meas, ref, rec)
	require.NoError(t, err)

	var streamed []Point
	points, err := seq.Run(context.Background(), func(p Point) { streamed = append(streamed, p) })
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, points, streamed)

	assert.Equal(t, 4.00, points[0].Reference)
	assert.InDelta(t, 3.98, points[0].Measured, 1e-9)
	assert.InDelta(t, 0.02, points[0].Error, 1e-9)
	assert.True(t, points[0].Acknowledged)

	assert.Equal(t, 19.5, points[1].Reference)
	assert.InDelta(t, 19.52, points[1].Measured, 1e-9)
	assert.InDelta(t, -0.02, points[1].Error, 1e-9)

	assert.Equal(t, []string{"#T0", "#T1"}, ref.written)
	assert.Equal(t, 2, ref.discards)
	assert.Empty(t, meas.written)

	var acked []float64
	for _, e := range rec.Events() {
		if e.Port == "COM4" && e.Kind == status.Reading {
			acked = append(acked, e.Value)
		}
	}
	assert.Equal(t, []float64{4.0, 19.5}, acked)
}

func TestRun_CustomAckMarker(t *testing.T) {
	meas := newScript("COM3", "4.00")
	ref := newScript("COM4", "T0=4.00", "T0 OK")
	cfg := fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"})
	cfg.AckMarker = "OK"

	seq, err := New(cfg, meas, ref, nil)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, points[0].Attempts)
}

func TestRun_AscendingOrderAndGeneratedCommands(t *testing.T) {
	meas := newScript("COM3", "4.01", "19.4")
	ref := newScript("COM4", "=", "=")

	seq, err := New(fastConfig(ReferencePoint{Value: 19.5}, ReferencePoint{Value: 4.0}), meas, ref, nil)
	require.NoError(t, err)

	got := seq.Points()
	require.Len(t, got, 2)
	assert.Equal(t, ReferencePoint{Value: 4.0, Command: "#T0"}, got[0])
	assert.Equal(t, ReferencePoint{Value: 19.5, Command: "#T1"}, got[1])

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"#T0", "#T1"}, ref.written)
	assert.Equal(t, 4.0, points[0].Reference)
}

func TestRun_ErrorArithmetic(t *testing.T) {
	meas := newScript("COM3", "19.30")
	ref := newScript("COM4", "=")

	seq, err := New(fastConfig(ReferencePoint{Value: 19.5, Command: "#T1"}), meas, ref, nil)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.20, points[0].Error, 1e-9)
}

func TestRun_RetryBound(t *testing.T) {
	meas := newScript("COM3", "4.10")
	ref := newScript("COM4") // never acknowledges
	rec := &status.Recorder{}

	seq, err := New(fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"}), meas, ref, rec)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.Len(t, ref.written, 3)
	assert.False(t, points[0].Acknowledged)
	assert.Equal(t, 3, points[0].Attempts)
	// the measurement still happens after the retries are exhausted
	assert.InDelta(t, 4.10, points[0].Measured, 1e-9)
	assert.Contains(t, rec.Kinds("COM4"), status.Error)
}

func TestRun_AckOnSecondAttempt(t *testing.T) {
	meas := newScript("COM3", "4.00")
	ref := newScript("COM4", "", "T0=4.00")
	rec := &status.Recorder{}

	seq, err := New(fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"}), meas, ref, rec)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, ref.written, 2)
	assert.True(t, points[0].Acknowledged)
	assert.Equal(t, 2, points[0].Attempts)
	assert.NotContains(t, rec.Kinds("COM4"), status.Error)

	var readings []float64
	for _, e := range rec.Events() {
		if e.Port == "COM4" && e.Kind == status.Reading {
			readings = append(readings, e.Value)
		}
	}
	assert.Equal(t, []float64{4.0}, readings)
}

func TestRun_WriteErrorCountsAsAttempt(t *testing.T) {
	meas := newScript("COM3", "4.00")
	ref := newScript("COM4", "=")
	ref.writeErr = errors.New("cable")

	seq, err := New(fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"}), meas, ref, nil)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, points[0].Attempts)
	assert.True(t, points[0].Acknowledged)
}

func TestRun_UnparseableMeasurementIsZero(t *testing.T) {
	meas := newScript("COM3", "ERR")
	ref := newScript("COM4", "=")

	seq, err := New(fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"}), meas, ref, nil)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, points[0].Measured)
	assert.InDelta(t, 4.0, points[0].Error, 1e-9)
}

func TestRun_PortsNotReady(t *testing.T) {
	meas := newScript("COM3")
	ref := newScript("COM4")
	ref.open = false
	rec := &status.Recorder{}

	seq, err := New(fastConfig(), meas, ref, rec)
	require.NoError(t, err)

	points, err := seq.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPortsNotReady)
	assert.Nil(t, points)
	assert.Empty(t, ref.written)
	assert.Len(t, rec.Events(), 1)
}

func TestRun_Cancelled(t *testing.T) {
	meas := newScript("COM3", "4.0")
	ref := newScript("COM4", "=")
	cfg := DefaultConfig()

	seq, err := New(cfg, meas, ref, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points, err := seq.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, points)
	assert.Len(t, ref.written, 1)
}

func TestRun_StepsInOrder(t *testing.T) {
	meas := newScript("COM3", "4.0")
	ref := newScript("COM4", "=")

	seq, err := New(fastConfig(ReferencePoint{Value: 4.0, Command: "#T0"}), meas, ref, nil)
	require.NoError(t, err)

	var steps []Step
	seq.OnStep = func(_ float64, st Step) { steps = append(steps, st) }
	_, err = seq.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []Step{SetReference, AwaitAck, Settle, SampleMeasurement, ComputeResult, Done}, steps)
}

func TestNew_Validation(t *testing.T) {
	s := newScript("COM3")

	_, err := New(DefaultConfig(), nil, s, nil)
	assert.Error(t, err)

	_, err = New(Config{}, s, s, nil)
	assert.Error(t, err)

	_, err = New(fastConfig(ReferencePoint{Value: 4}, ReferencePoint{Value: 4}), s, s, nil)
	assert.Error(t, err)

	// a third uncommanded point has no #T slot
	_, err = New(fastConfig(ReferencePoint{Value: 1}, ReferencePoint{Value: 2}, ReferencePoint{Value: 3}), s, s, nil)
	assert.Error(t, err)
}
