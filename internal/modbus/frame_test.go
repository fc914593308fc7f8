package modbus

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint16
	}{
		{"read 10 from 0", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, 0xCDC5},
		{"read 8 from 0x0200", []byte{0x01, 0x03, 0x02, 0x00, 0x00, 0x08}, 0xB445},
		{"write single", []byte{0x01, 0x06, 0x00, 0x01, 0x00, 0x03}, 0x0B98},
		{"empty", nil, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC16(tt.in))
		})
	}
}

func TestBuildReadRequest_IOBoardPoll(t *testing.T) {
	got := BuildReadRequest(SlaveAddress, 0x0200, 8)
	assert.Equal(t, []byte{0x01, 0x03, 0x02, 0x00, 0x00, 0x08, 0x45, 0xB4}, got)
	assert.Len(t, got, FrameLength(FuncRead, 8))
}

func TestBuildReadRequest_TrailingCRCLowByteFirst(t *testing.T) {
	got := BuildReadRequest(SlaveAddress, 0x0000, 10)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, got)
}

func TestBuildRequests_MatchGoburrowPackager(t *testing.T) {
	handler := modbus.NewRTUClientHandler("unused")
	handler.SlaveId = SlaveAddress

	read, err := handler.Encode(&modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x02, 0x00, 0x00, 0x08},
	})
	require.NoError(t, err)
	assert.Equal(t, read, BuildReadRequest(SlaveAddress, 0x0200, 8))

	write, err := handler.Encode(&modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x10, 0x12, 0x34},
	})
	require.NoError(t, err)
	assert.Equal(t, write, BuildSingleWriteRequest(SlaveAddress, 0x0010, 0x1234))
}

func TestBuildWriteRequest_Layout(t *testing.T) {
	got := BuildWriteRequest(SlaveAddress, 0x0010, []uint16{0x000A, 0x0102})

	require.Len(t, got, FrameLength(FuncMultiWrite, 2))
	assert.Equal(t, []byte{0x01, 0x10, 0x00, 0x10, 0x00, 0x02, 0x00, 0x0A, 0x01, 0x02}, got[:10])

	payload, err := Validate(got)
	require.NoError(t, err)
	assert.Equal(t, got[:10], payload)
}

func TestFrameLength(t *testing.T) {
	assert.Equal(t, 8, FrameLength(FuncRead, 8))
	assert.Equal(t, 8, FrameLength(FuncSingleWrite, 1))
	assert.Equal(t, 8, FrameLength(FuncMultiWrite, 0))
	assert.Equal(t, 14, FrameLength(FuncMultiWrite, 3))
}

func TestValidate_ShortFrame(t *testing.T) {
	_, err := Validate([]byte{0x01, 0x03, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestValidate_CRCProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 3; n < 40; n++ {
		body := make([]byte, n)
		rng.Read(body)
		frame := AppendCRC(append([]byte(nil), body...))

		payload, err := Validate(frame)
		require.NoError(t, err, "len=%d", n)
		require.Equal(t, body, payload)

		for bit := 0; bit < len(frame)*8; bit++ {
			corrupt := append([]byte(nil), frame...)
			corrupt[bit/8] ^= 1 << (bit % 8)
			_, err := Validate(corrupt)
			require.ErrorIs(t, err, ErrCrcMismatch, "len=%d bit=%d", n, bit)
		}
	}
}

func TestValidate_AgreesWithGoburrowDecode(t *testing.T) {
	handler := modbus.NewRTUClientHandler("unused")
	frame := AppendCRC([]byte{0x01, 0x03, 0x04, 0x0F, 0xA0, 0x00, 0x00})

	pdu, err := handler.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, byte(FuncRead), pdu.FunctionCode)

	payload, err := Validate(frame)
	require.NoError(t, err)
	assert.Equal(t, pdu.Data, payload[2:])
}

func TestParseReadResponse(t *testing.T) {
	regs, err := ParseReadResponse([]byte{0x01, 0x03, 0x04, 0x0F, 0xA0, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0FA0, 0x0001}, regs)
}

func TestParseReadResponse_Exception(t *testing.T) {
	_, err := ParseReadResponse([]byte{0x01, 0x83, 0x02})

	var mbErr *modbus.ModbusError
	require.True(t, errors.As(err, &mbErr))
	assert.Equal(t, byte(0x83), mbErr.FunctionCode)
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), mbErr.ExceptionCode)
}

func TestParseReadResponse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"too short", []byte{0x01, 0x03}},
		{"odd byte count", []byte{0x01, 0x03, 0x03, 0x00, 0x00, 0x00}},
		{"truncated data", []byte{0x01, 0x03, 0x04, 0x00, 0x00}},
		{"wrong function", []byte{0x01, 0x06, 0x02, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReadResponse(tt.payload)
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}
