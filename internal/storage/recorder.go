package storage

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"go.uber.org/zap"
)

// SampleStore receives readings from a Recorder. PostgresClient and
// RedisCache implement it.
type SampleStore interface {
	SaveSample(ctx context.Context, sensorName string, r devices.Reading) error
}

// SampleStoreFunc adapts a function to SampleStore.
type SampleStoreFunc func(ctx context.Context, sensorName string, r devices.Reading) error

func (f SampleStoreFunc) SaveSample(ctx context.Context, sensorName string, r devices.Reading) error {
	return f(ctx, sensorName, r)
}

type recordedSample struct {
	sensor  string
	reading devices.Reading
}

// Recorder hands readings to a SampleStore from its own goroutine, so slow
// stores never stall a poller. Readings arriving while the queue is full are
// dropped.
type Recorder struct {
	devices.NopListener

	store   SampleStore
	logger  *zap.Logger
	queue   chan recordedSample
	timeout time.Duration
	wg      sync.WaitGroup

	mu      sync.Mutex
	dropped uint64
}

func NewRecorder(store SampleStore, queueSize int, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger,
		queue:   make(chan recordedSample, queueSize),
		timeout: 5 * time.Second,
	}
}

// Start runs the writer until ctx is done. Queued readings are flushed
// before Wait returns.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				r.flush()
				return
			case s := <-r.queue:
				r.write(s)
			}
		}
	}()
}

func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) flush() {
	for {
		select {
		case s := <-r.queue:
			r.write(s)
		default:
			return
		}
	}
}

func (r *Recorder) write(s recordedSample) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.SaveSample(ctx, s.sensor, s.reading); err != nil {
		r.logger.Warn("Failed to record sample",
			zap.String("sensor", s.sensor),
			zap.Error(err))
	}
}

func (r *Recorder) SampleTaken(s *devices.Sensor, reading devices.Reading) {
	select {
	case r.queue <- recordedSample{sensor: s.Name, reading: reading}:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Debug("Sample queue full, reading dropped",
			zap.String("sensor", s.Name),
			zap.Uint64("dropped", dropped))
	}
}

// Dropped returns how many readings were dropped so far.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
