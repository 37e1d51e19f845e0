package task

import (
	"context"
	"sync"
	"time"
)

const defaultSchedulerInterval = 30 * time.Second

// Job is one unit of repeating work.
type Job func(context.Context)

// Scheduler runs a Job once per interval until stopped or until the context
// passed to Start is done. The first run happens one interval after Start.
type Scheduler struct {
	interval     time.Duration
	job          Job
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewScheduler(interval time.Duration, job Job) *Scheduler {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	return &Scheduler{
		interval: interval,
		job:      job,
	}
}

func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.job == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(scheduler.interval)
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduler.job(ctx)
		}
	}
}
