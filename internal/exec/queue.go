package exec

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weft-ml/weft/internal/device"
)

// CommandQueue dispatches committed command buffers to a device. A
// single dispatcher goroutine drains the queue, so buffers committed to
// the same queue execute in commit order.
type CommandQueue struct {
	device *device.Device
	logger *zap.Logger

	work chan *CommandBuffer
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// QueueOption configures a CommandQueue.
type QueueOption func(*CommandQueue)

// WithLogger sets the queue's logger. The default is zap.NewNop.
func WithLogger(l *zap.Logger) QueueOption {
	return func(q *CommandQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithQueueDepth sets how many committed buffers may wait before Commit
// blocks. The default is 64.
func WithQueueDepth(n int) QueueOption {
	return func(q *CommandQueue) {
		if n > 0 {
			q.work = make(chan *CommandBuffer, n)
		}
	}
}

// NewCommandQueue creates a queue bound to a device and starts its
// dispatcher.
func NewCommandQueue(dev *device.Device, opts ...QueueOption) *CommandQueue {
	q := &CommandQueue{
		device: dev,
		logger: zap.NewNop(),
		work:   make(chan *CommandBuffer, 64),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(1)
	go q.dispatch()
	return q
}

// Device returns the queue's device.
func (q *CommandQueue) Device() *device.Device { return q.device }

func (q *CommandQueue) dispatch() {
	defer q.wg.Done()
	for cb := range q.work {
		q.logger.Debug("executing command buffer", zap.String("label", cb.Label()))
		cb.execute()
		if err := cb.Err(); err != nil {
			q.logger.Warn("command buffer failed",
				zap.String("label", cb.Label()),
				zap.Error(err))
		}
	}
}

// CommandBuffer returns a fresh buffer with a generated label.
func (q *CommandQueue) CommandBuffer() *CommandBuffer {
	return q.CommandBufferWithLabel("cb-" + uuid.NewString())
}

// CommandBufferWithLabel returns a fresh buffer carrying the label in
// logs and errors.
func (q *CommandQueue) CommandBufferWithLabel(label string) *CommandBuffer {
	return &CommandBuffer{
		queue: q,
		label: label,
		done:  make(chan struct{}),
	}
}

// submit hands a committed buffer to the dispatcher.
func (q *CommandQueue) submit(cb *CommandBuffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("command queue is closed")
	}
	q.work <- cb
	return nil
}

// Close stops accepting commits, waits for in-flight buffers to finish
// and returns. Close is idempotent.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	q.wg.Wait()
}
