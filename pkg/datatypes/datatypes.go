package datatypes

import (
	"fmt"
	"math"
	"strings"
)

// DataType 数据类型枚举
type DataType int

const (
	INT16 DataType = iota
	UINT16
	INT32
	UINT32
	FLOAT32
)

// String 返回数据类型的字符串表示
func (dt DataType) String() string {
	switch dt {
	case INT16:
		return "INT16"
	case UINT16:
		return "UINT16"
	case INT32:
		return "INT32"
	case UINT32:
		return "UINT32"
	case FLOAT32:
		return "FLOAT32"
	default:
		return "UNKNOWN"
	}
}

// ParseDataType 从配置字符串解析数据类型
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INT16":
		return INT16, nil
	case "UINT16":
		return UINT16, nil
	case "INT32":
		return INT32, nil
	case "UINT32":
		return UINT32, nil
	case "FLOAT32", "FLOAT":
		return FLOAT32, nil
	default:
		return INT16, fmt.Errorf("unknown data type %q", s)
	}
}

// ByteOrder 字节序
type ByteOrder int

const (
	AB ByteOrder = iota // Big Endian
	BA                  // Little Endian
)

func (bo ByteOrder) String() string {
	switch bo {
	case BA:
		return "BA"
	default:
		return "AB"
	}
}

// ParseByteOrder 从配置字符串解析字节序
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AB":
		return AB, nil
	case "BA":
		return BA, nil
	default:
		return AB, fmt.Errorf("unknown byte order %q", s)
	}
}

// WordOrder 字序
type WordOrder int

const (
	WORD_1234 WordOrder = iota // Big Endian
	WORD_4321                  // Little Endian
)

func (wo WordOrder) String() string {
	switch wo {
	case WORD_4321:
		return "4321"
	default:
		return "1234"
	}
}

// RegistersPerValue 返回每个值需要的寄存器数量
func (dt DataType) RegistersPerValue() int {
	switch dt {
	case INT32, UINT32, FLOAT32:
		return 2
	default:
		return 1
	}
}

// Converter 数据转换器
type Converter struct {
	byteOrder ByteOrder
	wordOrder WordOrder
}

// NewConverter 创建新的数据转换器
func NewConverter(byteOrder ByteOrder, wordOrder WordOrder) *Converter {
	return &Converter{
		byteOrder: byteOrder,
		wordOrder: wordOrder,
	}
}

// Value 把寄存器开头的一个值转换为 float64 并乘以比例系数
func (c *Converter) Value(registers []uint16, dataType DataType, scale float64) (float64, error) {
	need := dataType.RegistersPerValue()
	if len(registers) < need {
		return 0, fmt.Errorf("need %d registers for %s, got %d", need, dataType, len(registers))
	}
	if scale == 0 {
		scale = 1
	}

	var raw float64
	switch dataType {
	case INT16:
		raw = float64(int16(c.word(registers[0])))
	case UINT16:
		raw = float64(c.word(registers[0]))
	case INT32:
		raw = float64(int32(c.dword(registers)))
	case UINT32:
		raw = float64(c.dword(registers))
	case FLOAT32:
		raw = float64(math.Float32frombits(c.dword(registers)))
	default:
		return 0, fmt.Errorf("unsupported data type %s", dataType)
	}
	return raw * scale, nil
}

// word applies the byte order inside a single register.
func (c *Converter) word(reg uint16) uint16 {
	if c.byteOrder == BA {
		return reg<<8 | reg>>8
	}
	return reg
}

func (c *Converter) dword(registers []uint16) uint32 {
	hi, lo := c.word(registers[0]), c.word(registers[1])
	if c.wordOrder == WORD_4321 {
		hi, lo = lo, hi
	}
	return uint32(hi)<<16 | uint32(lo)
}
