package datatypes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Int16Scaled(t *testing.T) {
	// 4000 * 0.001 = 4.00 mA
	v, err := NewConverter(AB, WORD_1234).Value([]uint16{0x0FA0}, INT16, 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	// same register read little-endian
	v, err = NewConverter(BA, WORD_1234).Value([]uint16{0xA00F}, INT16, 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	v, err = NewConverter(AB, WORD_1234).Value([]uint16{0xFFFE}, INT16, 1)
	require.NoError(t, err)
	assert.Equal(t, -2.0, v)
}

func TestValue_32Bit(t *testing.T) {
	bits := math.Float32bits(19.5)
	regs := []uint16{uint16(bits >> 16), uint16(bits)}

	v, err := NewConverter(AB, WORD_1234).Value(regs, FLOAT32, 0)
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	v, err = NewConverter(AB, WORD_4321).Value([]uint16{regs[1], regs[0]}, FLOAT32, 1)
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	v, err = NewConverter(AB, WORD_1234).Value([]uint16{0x0001, 0x0000}, UINT32, 1)
	require.NoError(t, err)
	assert.Equal(t, 65536.0, v)

	v, err = NewConverter(AB, WORD_1234).Value([]uint16{0xFFFF, 0xFFFF}, INT32, 1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)
}

func TestValue_NotEnoughRegisters(t *testing.T) {
	_, err := NewConverter(AB, WORD_1234).Value([]uint16{1}, FLOAT32, 1)
	assert.Error(t, err)
	_, err = NewConverter(AB, WORD_1234).Value(nil, INT16, 1)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	dt, err := ParseDataType("float32")
	require.NoError(t, err)
	assert.Equal(t, FLOAT32, dt)

	dt, err = ParseDataType("")
	require.NoError(t, err)
	assert.Equal(t, INT16, dt)

	_, err = ParseDataType("INT128")
	assert.Error(t, err)

	bo, err := ParseByteOrder("ba")
	require.NoError(t, err)
	assert.Equal(t, BA, bo)
	_, err = ParseByteOrder("CD")
	assert.Error(t, err)
}
