// Package queue is the in-process request queue and worker: a FIFO of
// modernization requests that any number of callers may submit to,
// drained by exactly one background worker, mirroring the teacher's
// internal/jobs runner but dropping its SQLite persistence in favor of an
// in-memory-only result map, per the single-repository-at-a-time
// scheduling contract.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"levelup/internal/engine"
	"levelup/internal/logging"
	"levelup/internal/request"
)

// item is one queued unit of work paired with the repository configuration
// the engine needs to process it and the context governing its lifetime.
type item struct {
	req    request.ModRequest
	repo   engine.RepoConfig
	ctx    context.Context
	cancel context.CancelFunc
}

// Queue is the process-wide FIFO plus its single worker and shared result
// map. Submitted requests are processed strictly in enqueue order; at most
// one request is in flight at any time.
type Queue struct {
	engine *engine.Engine
	logger *logging.Logger

	items chan item

	mu      sync.Mutex
	results map[string]*request.Result
	pending map[string]context.CancelFunc // requests not yet picked up by the worker
	running map[string]context.CancelFunc // the request currently being processed

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue with the given backlog capacity, bound to an engine
// that performs the actual work.
func New(e *engine.Engine, logger *logging.Logger, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		engine:  e,
		logger:  logger,
		items:   make(chan item, capacity),
		results: make(map[string]*request.Result),
		pending: make(map[string]context.CancelFunc),
		running: make(map[string]context.CancelFunc),
		done:    make(chan struct{}),
	}
}

// Start launches the single background worker. Safe to call once.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Stop signals the worker to exit and waits up to timeout for it to drain
// its current item.
func (q *Queue) Stop(timeout time.Duration) error {
	close(q.done)

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue worker shutdown timed out after %v", timeout)
	}
}

// Submit enqueues a request, immediately recording its status as queued.
// Submission never blocks the caller on worker availability.
func (q *Queue) Submit(req request.ModRequest, repo engine.RepoConfig) error {
	ctx, cancel := context.WithCancel(context.Background())

	q.mu.Lock()
	q.transitionResult(req.ID, &request.Result{
		RequestID: req.ID,
		Status:    request.StatusQueued,
		Message:   "queued",
		Timestamp: time.Now(),
	})
	q.pending[req.ID] = cancel
	q.mu.Unlock()

	select {
	case q.items <- item{req: req, repo: repo, ctx: ctx, cancel: cancel}:
		return nil
	case <-q.done:
		cancel()
		return fmt.Errorf("queue is shutting down")
	}
}

// Cancel cancels a request. A request still waiting in the queue is marked
// failed with message "cancelled" and never reaches the engine. A request
// already in flight has its context cancelled; the engine observes this
// between refactorings and finalizes with whatever was already accepted.
func (q *Queue) Cancel(requestID string) error {
	q.mu.Lock()
	if cancel, ok := q.pending[requestID]; ok {
		delete(q.pending, requestID)
		q.transitionResult(requestID, &request.Result{
			RequestID: requestID,
			Status:    request.StatusFailed,
			Message:   "cancelled",
			Timestamp: time.Now(),
		})
		q.mu.Unlock()
		cancel()
		return nil
	}
	cancel, ok := q.running[requestID]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown or already-finished request: %s", requestID)
	}
	cancel()
	return nil
}

// Status returns the current result for a request, if known.
func (q *Queue) Status(requestID string) (*request.Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[requestID]
	return r, ok
}

// QueueStatus summarizes the queue for the /api/queue/status endpoint.
type QueueStatus struct {
	QueueSize int               `json:"queueSize"`
	Results   []*request.Result `json:"results"`
	Timestamp time.Time         `json:"timestamp"`
}

// Snapshot returns the aggregate queue state: backlog size and every known
// result.
func (q *Queue) Snapshot() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	results := make([]*request.Result, 0, len(q.results))
	for _, r := range q.results {
		results = append(results, r)
	}
	return QueueStatus{
		QueueSize: len(q.items),
		Results:   results,
		Timestamp: time.Now(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case it, ok := <-q.items:
			if !ok {
				return
			}
			q.process(it)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) process(it item) {
	q.mu.Lock()
	if _, stillPending := q.pending[it.req.ID]; !stillPending {
		// Cancelled before pickup; Cancel already wrote the terminal result.
		q.mu.Unlock()
		return
	}
	delete(q.pending, it.req.ID)
	q.running[it.req.ID] = it.cancel
	q.transitionResult(it.req.ID, &request.Result{
		RequestID: it.req.ID,
		Status:    request.StatusProcessing,
		Message:   "processing",
		Timestamp: time.Now(),
	})
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.running, it.req.ID)
		it.cancel()
		q.mu.Unlock()
	}()

	result, err := q.engine.Process(it.ctx, it.req, it.repo)

	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		q.logger.Error("request processing aborted", map[string]interface{}{
			"requestId": it.req.ID,
			"error":     err.Error(),
		})
		q.transitionResult(it.req.ID, &request.Result{
			RequestID: it.req.ID,
			Status:    request.StatusError,
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	q.transitionResult(it.req.ID, result)
}

// transitionResult writes next as the stored result for id, unless a
// result already exists for id whose status cannot move forward to
// next's status, in which case the write is dropped and logged. Callers
// must hold q.mu.
func (q *Queue) transitionResult(id string, next *request.Result) {
	if current, ok := q.results[id]; ok && !current.Status.CanTransitionTo(next.Status) {
		q.logger.Warn("dropped invalid status transition", map[string]interface{}{
			"requestId": id,
			"from":      current.Status,
			"to":        next.Status,
		})
		return
	}
	q.results[id] = next
}
