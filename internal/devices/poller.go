package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Poller struct {
	sensor    *Sensor
	interval  time.Duration
	logger    *zap.Logger
	listeners func() []Listener
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

func NewPoller(sensor *Sensor, interval time.Duration, logger *zap.Logger, listeners func() []Listener) *Poller {
	return &Poller{
		sensor:    sensor,
		interval:  interval,
		logger:    logger,
		listeners: listeners,
		stopChan:  make(chan struct{}),
	}
}

// Start startet das zyklische Sampling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.sensor.sampler == nil {
		return fmt.Errorf("driver %s of sensor %s cannot be sampled", p.sensor.Driver, p.sensor.Name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", p.interval)
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("sensor", p.sensor.Name),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Sampling
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

	p.logger.Info("Poller stopped", zap.String("sensor", p.sensor.Name))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll takes one sample outside the sensor lock and commits it under the
// lock. Samples taken in a mode that is no longer active are dropped.
func (p *Poller) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
	defer cancel()

	mode, raw, err := p.sensor.sampler.Sample(ctx)
	if err == nil {
		var committed bool
		committed, err = p.sensor.Commit(mode, raw)
		if err == nil && !committed {
			p.logger.Debug("Sample dropped after mode switch",
				zap.String("sensor", p.sensor.Name),
				zap.Int("mode", mode))
			return
		}
	}

	p.sensor.recordSample(err)
	if err != nil {
		p.logger.Error("Sample failed",
			zap.String("sensor", p.sensor.Name),
			zap.Error(err))
		for _, l := range p.listeners() {
			l.SampleFailed(p.sensor, err)
		}
		return
	}

	reading, err := p.sensor.Reading()
	if err != nil {
		p.logger.Error("Decode failed",
			zap.String("sensor", p.sensor.Name),
			zap.Error(err))
		return
	}
	for _, l := range p.listeners() {
		l.SampleTaken(p.sensor, reading)
	}
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
