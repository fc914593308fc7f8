package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// SlaveAddress 本系统固定的从站地址
const SlaveAddress byte = 0x01

const (
	FuncRead        byte = modbus.FuncCodeReadHoldingRegisters
	FuncSingleWrite byte = modbus.FuncCodeWriteSingleRegister
	FuncMultiWrite  byte = modbus.FuncCodeWriteMultipleRegisters

	minFrameLength = 5
	exceptionBit   = 0x80
)

var (
	ErrCrcMismatch = errors.New("modbus: crc mismatch")
	ErrShortFrame  = errors.New("modbus: frame shorter than 5 bytes")
	ErrBadResponse = errors.New("modbus: malformed response")
)

// BuildReadRequest 构建读保持寄存器请求 (0x03)
// [addr][0x03][regHi][regLo][countHi][countLo][CRC_lo][CRC_hi]
func BuildReadRequest(slave byte, register, count uint16) []byte {
	frame := make([]byte, 6, 8)
	frame[0] = slave
	frame[1] = FuncRead
	binary.BigEndian.PutUint16(frame[2:4], register)
	binary.BigEndian.PutUint16(frame[4:6], count)
	return AppendCRC(frame)
}

// BuildSingleWriteRequest 构建写单个寄存器请求 (0x06)
// Bytes 4-5 carry the register value itself.
func BuildSingleWriteRequest(slave byte, register, value uint16) []byte {
	frame := make([]byte, 6, 8)
	frame[0] = slave
	frame[1] = FuncSingleWrite
	binary.BigEndian.PutUint16(frame[2:4], register)
	binary.BigEndian.PutUint16(frame[4:6], value)
	return AppendCRC(frame)
}

// BuildWriteRequest 构建写多个寄存器请求 (0x10)
// Bytes 4-5 carry the number of registers that follow; the IO board does not
// expect the byte-count prefix of the standard PDU, so none is written.
func BuildWriteRequest(slave byte, register uint16, values []uint16) []byte {
	frame := make([]byte, 6+2*len(values), FrameLength(FuncMultiWrite, len(values)))
	frame[0] = slave
	frame[1] = FuncMultiWrite
	binary.BigEndian.PutUint16(frame[2:4], register)
	binary.BigEndian.PutUint16(frame[4:6], uint16(len(values)))
	for i, v := range values {
		binary.BigEndian.PutUint16(frame[6+2*i:], v)
	}
	return AppendCRC(frame)
}

// FrameLength 根据功能码计算请求帧长度
func FrameLength(functionCode byte, words int) int {
	switch functionCode {
	case FuncMultiWrite:
		return 6 + 2*words + 2
	default:
		return 8
	}
}

// Validate 校验接收帧的CRC
// On success it returns the frame without the trailing CRC bytes.
// No partial-frame recovery is attempted.
func Validate(frame []byte) ([]byte, error) {
	if len(frame) < minFrameLength {
		return nil, ErrShortFrame
	}
	n := len(frame)
	received := uint16(frame[n-2]) | uint16(frame[n-1])<<8
	calculated := CRC16(frame[:n-2])
	if received != calculated {
		return nil, fmt.Errorf("%w: received %04X, calculated %04X", ErrCrcMismatch, received, calculated)
	}
	return frame[:n-2], nil
}

// ParseReadResponse 从已校验的读响应中提取寄存器
// payload layout: [addr][0x03][byteCount][data...]
func ParseReadResponse(payload []byte) ([]uint16, error) {
	if len(payload) < 3 {
		return nil, ErrBadResponse
	}
	if payload[1]&exceptionBit != 0 {
		return nil, &modbus.ModbusError{FunctionCode: payload[1], ExceptionCode: payload[2]}
	}
	if payload[1] != FuncRead {
		return nil, fmt.Errorf("%w: unexpected function code %#02x", ErrBadResponse, payload[1])
	}
	byteCount := int(payload[2])
	data := payload[3:]
	if byteCount%2 != 0 || len(data) < byteCount {
		return nil, fmt.Errorf("%w: byte count %d, data length %d", ErrBadResponse, byteCount, len(data))
	}
	registers := make([]uint16, byteCount/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return registers, nil
}
