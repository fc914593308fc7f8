package status

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := NewMulti(a, Nop{}, LogReporter{})
	m.Add(b)

	m.OnTxActive("COM1")
	m.OnTxIdle("COM1")
	m.OnRxActive("COM1")
	m.OnReading("COM1", 12.34)
	m.OnRxIdle("COM2")
	m.OnError("COM2", "invalid response")

	want := []Event{
		{Kind: TxActive, Port: "COM1"},
		{Kind: TxIdle, Port: "COM1"},
		{Kind: RxActive, Port: "COM1"},
		{Kind: Reading, Port: "COM1", Value: 12.34},
		{Kind: RxIdle, Port: "COM2"},
		{Kind: Error, Port: "COM2", Message: "invalid response"},
	}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
}

func TestRecorder_Kinds(t *testing.T) {
	r := &Recorder{}
	r.OnTxActive("COM1")
	r.OnTxActive("COM2")
	r.OnTxIdle("COM1")

	assert.Equal(t, []Kind{TxActive, TxIdle}, r.Kinds("COM1"))
	r.Reset()
	assert.Empty(t, r.Events())
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "COM1 reading 3.98", Event{Kind: Reading, Port: "COM1", Value: 3.98}.String())
	assert.Equal(t, "COM2 error: no reply", Event{Kind: Error, Port: "COM2", Message: "no reply"}.String())
	assert.Equal(t, "COM1 RX idle", Event{Kind: RxIdle, Port: "COM1"}.String())
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	c.OnTxActive("COM3")
	c.OnReading("COM3", 3.98)
	c.OnError("COM4", "no response")

	assert.Equal(t, "09:30:00.000  COM3           3.98 mA\n"+
		"09:30:00.000  COM4           ! no response\n", buf.String())
}
