package review

import (
	"context"
	"sync"
)

// writeQueue runs store writes one at a time in submission order.
type writeQueue struct {
	mu     sync.Mutex
	jobs   []func(context.Context)
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *writeQueue) push(job func(context.Context)) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *writeQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// close stops accepting jobs; run drains what is queued and returns.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *writeQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.notify
			continue
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		job(ctx)
	}
}
