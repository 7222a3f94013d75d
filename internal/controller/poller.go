package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Poller struct {
	controller *Controller
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

func NewPoller(controller *Controller, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		controller: controller,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start begins polling. The first poll runs immediately.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("controller", p.controller.Name),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped", zap.String("controller", p.controller.Name))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := p.controller.Refresh(ctx); err != nil {
		p.logger.Error("Poll failed",
			zap.String("controller", p.controller.Name),
			zap.Error(err))
	}
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
