package task

import (
	"context"
	"time"
)

// PollResult is the outcome of one poll.
type PollResult[T any] struct {
	Value     T
	Err       error
	FetchedAt time.Time
}

// Poller fetches a value once per interval and publishes the newest result.
// Unread results are replaced so a slow consumer only ever sees the latest.
type Poller[T any] struct {
	scheduler *Scheduler
	updates   chan PollResult[T]
	now       func() time.Time
}

// NewPoller constructs a Poller around fetch.
func NewPoller[T any](interval time.Duration, fetch func(context.Context) (T, error)) *Poller[T] {
	poller := &Poller[T]{
		updates: make(chan PollResult[T], 1),
		now:     time.Now,
	}
	poller.scheduler = NewScheduler(interval, func(ctx context.Context) {
		value, fetchErr := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		poller.publish(PollResult[T]{Value: value, Err: fetchErr, FetchedAt: poller.now()})
	})
	return poller
}

// Updates delivers poll results.
func (poller *Poller[T]) Updates() <-chan PollResult[T] {
	return poller.updates
}

// Start begins polling. Polling ends when ctx is done or Stop is called.
func (poller *Poller[T]) Start(ctx context.Context) {
	poller.scheduler.Start(ctx)
}

// Stop ends polling and waits for an in-flight fetch.
func (poller *Poller[T]) Stop() {
	poller.scheduler.Stop()
}

func (poller *Poller[T]) publish(result PollResult[T]) {
	for {
		select {
		case poller.updates <- result:
			return
		default:
		}
		select {
		case <-poller.updates:
		default:
		}
	}
}
