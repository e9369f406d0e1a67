package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// task is one registered periodic job. Its timer loop re-reads the
// interval multiplier every cycle, so the effective period adapts live
// without the task author re-deriving the policy.
type task struct {
	id           string
	baseInterval time.Duration
	essential    bool
	run          func(ctx context.Context)
	stop         chan struct{}
}

// RegisterTask schedules fn to run roughly every baseInterval, scaled by
// the current interval multiplier. Non-essential tasks are skipped
// entirely while pressure is Critical; essential tasks keep running at
// the scaled interval. Registering an already-registered id is an error.
func (s *Scheduler) RegisterTask(id string, baseInterval time.Duration, essential bool, fn func(ctx context.Context)) error {
	if baseInterval <= 0 {
		return fmt.Errorf("lifecycle: task %q: base interval must be positive", id)
	}

	s.tasksMu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.tasksMu.Unlock()
		return fmt.Errorf("lifecycle: task %q already registered", id)
	}
	t := &task{
		id:           id,
		baseInterval: baseInterval,
		essential:    essential,
		run:          fn,
		stop:         make(chan struct{}),
	}
	s.tasks[id] = t
	s.tasksMu.Unlock()

	go s.taskLoop(t)

	s.logger.WithFields(logrus.Fields{
		"task_id":       id,
		"base_interval": baseInterval,
		"essential":     essential,
	}).Debug("Registered periodic task")
	return nil
}

// CancelTask stops a task's loop. Cancelling an unknown id is a no-op.
func (s *Scheduler) CancelTask(id string) {
	s.tasksMu.Lock()
	t, ok := s.tasks[id]
	if ok {
		close(t.stop)
		delete(s.tasks, id)
	}
	s.tasksMu.Unlock()

	if ok {
		s.logger.WithField("task_id", id).Debug("Cancelled periodic task")
	}
}

// taskLoop is an explicit timer loop rather than a self-rescheduling
// closure: cancellation is a channel close, and each cycle recomputes the
// effective interval from the live multiplier.
func (s *Scheduler) taskLoop(t *task) {
	timer := time.NewTimer(s.effectiveInterval(t))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
			if t.essential || s.CurrentState().Pressure != PressureCritical {
				runID := uuid.New().String()
				ctx := context.Background()
				s.logger.WithFields(logrus.Fields{
					"task_id": t.id,
					"run_id":  runID,
				}).Debug("Running periodic task")
				t.run(ctx)
			} else {
				s.logger.WithField("task_id", t.id).Debug("Skipping non-essential task under critical pressure")
			}
			timer.Reset(s.effectiveInterval(t))
		}
	}
}

func (s *Scheduler) effectiveInterval(t *task) time.Duration {
	return time.Duration(float64(t.baseInterval) * s.IntervalMultiplier())
}
