package room

import (
	"context"
	"sync"
)

// task is one unit of dispatcher work. drop, when set, is called instead of
// run if the dispatcher shuts down before reaching the task.
type task struct {
	run  func()
	drop func()
}

// dispatcher runs posted callbacks one at a time, in order, on a single
// goroutine. The queue is unbounded so a callback may post more work (for
// example by saving a variable) without blocking on itself.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	closed  bool
	running bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// post enqueues fn. It reports false once the dispatcher is closed.
func (d *dispatcher) post(fn func()) bool {
	return d.postTask(task{run: fn})
}

func (d *dispatcher) postTask(t task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, t)
	d.cond.Signal()
	return true
}

// close stops the dispatcher. Queued tasks are dropped here when no run loop
// is active, otherwise by the run loop on its way out.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	var pending []task
	if !d.running {
		pending, d.queue = d.queue, nil
	}
	d.mu.Unlock()
	dropAll(pending)
}

// run drains the queue until ctx is done or close is called. Work still
// queued at that point is dropped.
func (d *dispatcher) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, d.close)
	defer stop()

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			pending := d.queue
			d.queue = nil
			d.running = false
			d.mu.Unlock()
			dropAll(pending)
			return ctx.Err()
		}
		t := d.queue[0]
		d.queue[0] = task{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		t.run()
	}
}

func dropAll(tasks []task) {
	for _, t := range tasks {
		if t.drop != nil {
			t.drop()
		}
	}
}
