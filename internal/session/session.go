// Package session 管理单个串口连接的打开/关闭生命周期和阻塞读写
package session

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"ptestbench/internal/logger"

	"go.bug.st/serial"
)

// Port is the subset of serial.Port a session needs.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// allow tests to override the driver
var openPort = func(name string, mode *serial.Mode) (Port, error) { return serial.Open(name, mode) }

// drainSlice bounds a single non-blocking read while draining the input buffer.
const drainSlice = 10 * time.Millisecond

// maxDrain caps one ReadAvailable; the rest stays buffered for the next call.
const maxDrain = 4096

var (
	registryMu sync.Mutex
	openByName = map[string]*Session{}
)

// Session 串口会话
type Session struct {
	cfg Config

	mu      sync.Mutex
	port    Port
	pending []byte // bytes read past the last line terminator
	writing chan struct{} // closed when a timed-out port.Write finally returns
}

// New 创建会话 (不打开端口)
func New(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Name 端口名
func (s *Session) Name() string { return s.cfg.Name }

// Config 端口参数
func (s *Session) Config() Config { return s.cfg }

// IsOpen 端口是否已打开
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Open 打开端口
// Opening an open session returns ErrAlreadyOpen and leaves it open.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return ErrAlreadyOpen
	}
	if s.cfg.Name == "" {
		return &IoError{Op: "open", Port: "<unset>", Err: fmt.Errorf("no port selected")}
	}

	mode, err := s.cfg.mode()
	if err != nil {
		return &IoError{Op: "open", Port: s.cfg.Name, Err: err}
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if owner, ok := openByName[s.cfg.Name]; ok && owner != s {
		return fmt.Errorf("%w: %s", ErrPortInUse, s.cfg.Name)
	}

	port, err := openPort(s.cfg.Name, mode)
	if err != nil {
		logger.WithPort(s.cfg.Name).Errorf("open failed: %v", err)
		return &IoError{Op: "open", Port: s.cfg.Name, Err: err}
	}
	if err := port.SetReadTimeout(drainSlice); err != nil {
		port.Close()
		return &IoError{Op: "open", Port: s.cfg.Name, Err: err}
	}

	s.port = port
	s.pending = nil
	openByName[s.cfg.Name] = s
	logger.WithPort(s.cfg.Name).Infof("port opened: %d baud, %d%s%d", s.cfg.BaudRate, s.cfg.DataBits, s.cfg.Parity, s.cfg.StopBits)
	return nil
}

// Close 关闭端口
// Closing a closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.port == nil {
		return nil
	}
	if s.writing != nil {
		<-s.writing
		s.writing = nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = nil

	registryMu.Lock()
	if openByName[s.cfg.Name] == s {
		delete(openByName, s.cfg.Name)
	}
	registryMu.Unlock()

	if err != nil {
		logger.WithPort(s.cfg.Name).Errorf("close failed: %v", err)
		return &IoError{Op: "close", Port: s.cfg.Name, Err: err}
	}
	logger.WithPort(s.cfg.Name).Info("port closed")
	return nil
}

// fault closes the handle after a transport error so the owner can reopen it.
func (s *Session) fault(op string, err error) error {
	logger.WithPort(s.cfg.Name).Errorf("%s failed, closing port: %v", op, err)
	s.closeLocked()
	return &IoError{Op: op, Port: s.cfg.Name, Err: err}
}

// Write 写入字节，超过写超时返回 ErrTimeout
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotOpen
	}
	if s.writeBusy() {
		return fmt.Errorf("%w: previous write to %s still in progress", ErrTimeout, s.cfg.Name)
	}

	port := s.port
	done := make(chan error, 1)
	finished := make(chan struct{})
	s.writing = finished
	go func() {
		_, err := port.Write(p)
		done <- err
		close(finished)
	}()

	var timeout <-chan time.Time
	if s.cfg.WriteTimeout > 0 {
		timer := time.NewTimer(s.cfg.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case err := <-done:
		<-finished
		s.writing = nil
		if err != nil {
			return s.fault("write", err)
		}
		logger.WithPort(s.cfg.Name).Debugf("TX %X", p)
		return nil
	case <-timeout:
		// s.writing stays set: no other write or close touches the port until it returns
		return fmt.Errorf("%w: write %s after %v", ErrTimeout, s.cfg.Name, s.cfg.WriteTimeout)
	}
}

// writeBusy reports whether an abandoned write is still running on the port.
func (s *Session) writeBusy() bool {
	if s.writing == nil {
		return false
	}
	select {
	case <-s.writing:
		s.writing = nil
		return false
	default:
		return true
	}
}

// WriteLine 写入ASCII命令并追加行结束符
func (s *Session) WriteLine(text string) error {
	return s.Write([]byte(text + "\n"))
}

// ReadAvailable 读取当前缓冲区中的所有字节
// An empty result is not an error. A port that never goes quiet is cut off
// after maxDrain bytes or the read timeout, whichever comes first.
func (s *Session) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, ErrNotOpen
	}

	out := s.pending
	s.pending = nil
	buf := make([]byte, 256)
	budget := s.cfg.ReadTimeout
	if budget <= 0 {
		budget = DefaultConfig(s.cfg.Name).ReadTimeout
	}
	deadline := time.Now().Add(budget)
	for len(out) < maxDrain && time.Now().Before(deadline) {
		want := buf
		if room := maxDrain - len(out); room < len(want) {
			want = want[:room]
		}
		n, err := s.port.Read(want)
		if err != nil {
			return nil, s.fault("read", err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	if len(out) > 0 {
		logger.WithPort(s.cfg.Name).Debugf("RX %X", out)
	}
	return out, nil
}

// ReadLineASCII 读取一行文本 (不含行结束符)
// Returns ErrTimeout when no full line arrives within the read timeout.
func (s *Session) ReadLineASCII() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return "", ErrNotOpen
	}

	deadline := time.Now().Add(s.cfg.ReadTimeout)
	buf := make([]byte, 256)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := s.pending[:i]
			s.pending = append([]byte(nil), s.pending[i+1:]...)
			return string(bytes.TrimRight(line, "\r")), nil
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w: read %s after %v", ErrTimeout, s.cfg.Name, s.cfg.ReadTimeout)
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return "", s.fault("read", err)
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

// DiscardInput 清空输入缓冲区
func (s *Session) DiscardInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotOpen
	}
	if s.writeBusy() {
		return fmt.Errorf("%w: write to %s still in progress", ErrTimeout, s.cfg.Name)
	}
	s.pending = nil
	if err := s.port.ResetInputBuffer(); err != nil {
		return s.fault("reset input", err)
	}
	return nil
}
