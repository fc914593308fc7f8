package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotOpen     = errors.New("session: port not open")
	ErrAlreadyOpen = errors.New("session: port already open")
	ErrPortInUse   = errors.New("session: port opened by another session")
	ErrTimeout     = errors.New("session: timeout")
	ErrIoFault     = errors.New("session: i/o fault")
)

// IoError 串口传输错误
// It matches ErrIoFault with errors.Is and unwraps to the driver error.
type IoError struct {
	Op   string
	Port string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

func (e *IoError) Is(target error) bool { return target == ErrIoFault }
