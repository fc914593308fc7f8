package status

import (
	"fmt"
	"io"
	"sync"
	"time"

	"ptestbench/internal/ascii"
)

// Console 在终端上逐行显示读数和错误, TX/RX 事件被忽略
type Console struct {
	Nop

	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole 创建终端显示
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, now: time.Now}
}

func (c *Console) OnReading(port string, value float64) {
	c.printf("%s  %-14s %s mA\n", c.now().Format("15:04:05.000"), port, ascii.FormatValue(value))
}

func (c *Console) OnError(port string, message string) {
	c.printf("%s  %-14s ! %s\n", c.now().Format("15:04:05.000"), port, message)
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
