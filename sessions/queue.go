package sessions

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultMaxPendingJobs caps queued plus running jobs per session.
const DefaultMaxPendingJobs = 256

type serialQueue struct {
	mu      sync.Mutex
	jobs    []func()
	queued  int // waiting plus running
	running bool
	pending sync.WaitGroup

	limit int
	log   *slog.Logger
}

func (q *serialQueue) push(job func()) error {
	q.mu.Lock()
	if q.limit > 0 && q.queued >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.queued++
	q.pending.Add(1)
	q.jobs = append(q.jobs, job)
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	go q.run()
	return nil
}

func (q *serialQueue) run() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.runOne(job)
	}
}

// runOne contains a panicking job to its own session; later jobs still run.
func (q *serialQueue) runOne(job func()) {
	defer func() {
		q.mu.Lock()
		q.queued--
		q.mu.Unlock()
		q.pending.Done()
	}()
	defer func() {
		if rvr := recover(); rvr != nil {
			q.log.Error("session.job.panic",
				slog.String("panic", fmt.Sprint(rvr)),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (q *serialQueue) wait() {
	q.pending.Wait()
}
