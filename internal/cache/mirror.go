package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Mirror is an opaque durable backend the store copies writes into. The
// store treats it as fire-and-forget: writes happen off the hot path and
// failures never surface to cache callers.
type Mirror interface {
	Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type mirrorOpKind int

const (
	mirrorOpSet mirrorOpKind = iota
	mirrorOpDelete
)

type mirrorOp struct {
	kind    mirrorOpKind
	key     string
	payload []byte
	ttl     time.Duration
}

// mirrorWriter drains a bounded queue of mirror operations on a single
// goroutine. Enqueueing never blocks: when the queue is full the operation
// is dropped and counted, per the best-effort durability contract.
type mirrorWriter struct {
	mirror  Mirror
	queue   chan mirrorOp
	done    chan struct{}
	drained chan struct{}
	metrics *StoreMetrics
	logger  *logrus.Logger
	once    sync.Once
}

func newMirrorWriter(mirror Mirror, queueSize int, metrics *StoreMetrics, logger *logrus.Logger) *mirrorWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &mirrorWriter{
		mirror:  mirror,
		queue:   make(chan mirrorOp, queueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		metrics: metrics,
		logger:  logger,
	}
	go w.loop()
	return w
}

func (w *mirrorWriter) enqueueSet(key string, payload []byte, ttl time.Duration) {
	w.enqueue(mirrorOp{kind: mirrorOpSet, key: key, payload: payload, ttl: ttl})
}

func (w *mirrorWriter) enqueueDelete(key string) {
	w.enqueue(mirrorOp{kind: mirrorOpDelete, key: key})
}

func (w *mirrorWriter) enqueue(op mirrorOp) {
	select {
	case w.queue <- op:
	default:
		w.metrics.mirrorDrops.Add(1)
		w.logger.WithField("key", op.key).Debug("Mirror queue full, dropping write")
	}
}

func (w *mirrorWriter) loop() {
	defer close(w.drained)
	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *mirrorWriter) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch op.kind {
	case mirrorOpSet:
		err = w.mirror.Store(ctx, op.key, op.payload, op.ttl)
	case mirrorOpDelete:
		err = w.mirror.Delete(ctx, op.key)
	}
	if err != nil {
		w.metrics.mirrorErrors.Add(1)
		w.logger.WithError(err).WithField("key", op.key).Warn("Mirror write failed")
		return
	}
	if op.kind == mirrorOpSet {
		w.metrics.mirrorWrites.Add(1)
	}
}

func (w *mirrorWriter) stop() {
	w.once.Do(func() {
		close(w.done)
		<-w.drained
		if err := w.mirror.Close(); err != nil {
			w.logger.WithError(err).Debug("Mirror close failed")
		}
	})
}
