package status

import (
	"errors"

	gmodbus "github.com/goburrow/modbus"

	"ptestbench/internal/ascii"
	"ptestbench/internal/i18n"
	"ptestbench/internal/modbus"
	"ptestbench/internal/session"
)

// Describe 把周期内的错误转换为面向操作员的消息
func Describe(err error) string {
	var mbErr *gmodbus.ModbusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, modbus.ErrCrcMismatch):
		return i18n.T(i18n.MsgCrcMismatch)
	case errors.As(err, &mbErr):
		return i18n.T(i18n.MsgModbusException, mbErr)
	case errors.Is(err, ascii.ErrParseFailure),
		errors.Is(err, modbus.ErrShortFrame),
		errors.Is(err, modbus.ErrBadResponse):
		return i18n.T(i18n.MsgInvalidResponse)
	case errors.Is(err, session.ErrTimeout):
		return i18n.T(i18n.MsgTimeout, err)
	case errors.Is(err, session.ErrNotOpen):
		return i18n.T(i18n.MsgPortNotOpen)
	default:
		return i18n.T(i18n.MsgIoError, err)
	}
}
