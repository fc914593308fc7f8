package poller

import (
	"errors"
	"fmt"

	"ptestbench/internal/ascii"
	"ptestbench/internal/modbus"
	"ptestbench/pkg/datatypes"
)

// ErrNoValue marks a valid reply that carries no reading.
var ErrNoValue = errors.New("poller: reply carries no value")

// Decoder 把原始响应转换为读数
type Decoder interface {
	DecodeASCII(raw []byte) (float64, error)
	DecodeModbus(frame []byte) (float64, error)
}

// RegisterDecoder 默认解码器
// ASCII replies go through ascii.ExtractNumeric; Modbus read replies are
// CRC-checked and the first value is converted with the configured type.
type RegisterDecoder struct {
	Converter *datatypes.Converter
	DataType  datatypes.DataType
	Scale     float64
}

// DefaultDecoder IO板寄存器: INT16 × 0.001 -> mA
func DefaultDecoder() RegisterDecoder {
	return RegisterDecoder{
		Converter: datatypes.NewConverter(datatypes.BA, datatypes.WORD_1234),
		DataType:  datatypes.INT16,
		Scale:     0.001,
	}
}

func (d RegisterDecoder) DecodeASCII(raw []byte) (float64, error) {
	return ascii.ExtractNumeric(string(raw))
}

func (d RegisterDecoder) DecodeModbus(frame []byte) (float64, error) {
	payload, err := modbus.Validate(frame)
	if err != nil {
		return 0, err
	}
	if len(payload) >= 2 && (payload[1] == modbus.FuncSingleWrite || payload[1] == modbus.FuncMultiWrite) {
		return 0, ErrNoValue
	}
	registers, err := modbus.ParseReadResponse(payload)
	if err != nil {
		return 0, err
	}
	conv := d.Converter
	if conv == nil {
		conv = datatypes.NewConverter(datatypes.AB, datatypes.WORD_1234)
	}
	value, err := conv.Value(registers, d.DataType, d.Scale)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", modbus.ErrBadResponse, err)
	}
	return value, nil
}
