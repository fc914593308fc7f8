package poller

import (
	"errors"
	"time"

	"ptestbench/internal/logger"
	"ptestbench/internal/session"
)

var ErrRunning = errors.New("poller: already running")

// Start 打开端口并启动周期定时器
// The first cycle starts immediately; later ticks follow Period.
func (p *Poller) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stop != nil {
		return ErrRunning
	}
	if err := p.task.Session.Open(); err != nil && !errors.Is(err, session.ErrAlreadyOpen) {
		return err
	}

	p.setState(Idle)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)

	logger.WithPort(p.Port()).Infof("polling started, period %v", p.task.Period)
	return nil
}

// Running 定时器是否在运行
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.stop != nil
}

// Stop 停止定时器，等待进行中的周期结束后关闭端口
func (p *Poller) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stop == nil {
		return nil
	}
	close(p.stop)
	<-p.done
	p.inflight.Wait()
	p.stop, p.done = nil, nil
	p.setState(Stopped)

	logger.WithPort(p.Port()).Info("polling stopped")
	return p.task.Session.Close()
}

func (p *Poller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.task.Period)
	defer ticker.Stop()

	p.tick()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick never blocks: a busy poller turns the tick into a no-op.
func (p *Poller) tick() {
	p.ticks.Add(1)
	if !p.acquire() {
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer p.setState(Idle)
		p.cycle()
	}()
}
