package taskpool

import (
	"runtime"
	"sync/atomic"
	"time"
)

var nextPoolID atomic.Uint64

// workerStub is a worker-registry entry: its presence in a Pool's workers
// list is itself the "stay running" signal a worker's loop checks each
// iteration.
type workerStub struct {
	link listLink[workerStub]
	id   uint64
}

// Pool is a task-pool: a FIFO ready-queue plus the set of worker goroutines
// that dequeue and resume tasks, and the set of tasks that originated here.
type Pool struct {
	refcount Refcount

	id uint64

	lock Spinlock

	taskSet list[Task]       // via originLink
	ready   list[Task]       // via waitingLink
	workers list[workerStub] // worker registry

	idleCond *Condition // bound to &lock

	ntasks int

	opts    *Options
	logger  Logger
	metrics *Metrics
	trace   *traceSink
}

// PoolCreate builds an empty Pool and, per any WithWorkers option, starts
// that many workers immediately.
func PoolCreate(opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(o)
	}

	p := &Pool{id: nextPoolID.Add(1), opts: o}
	p.refcount.InitHeap()
	p.lock.init()
	p.idleCond = NewCondition(&p.lock)

	if o.logger != nil {
		p.logger = o.logger
	} else {
		p.logger = getGlobalLogger()
	}
	if o.metrics {
		p.metrics = newMetrics()
	}
	if o.trace {
		p.trace = newTraceSink(p.logger, o.traceFlush, o.traceBatch, o.traceRateWindow)
	}

	p.logger.Log(Entry{Level: LevelInfo, Category: "pool", PoolID: p.id, Message: "pool created"})

	for i := 0; i < o.workers; i++ {
		if _, err := p.Start(); err != nil {
			panic(err) // WithWorkers is caller-controlled construction-time config, not runtime input
		}
	}

	return p
}

// ID returns a creation-order sequence number, unique for the process
// lifetime.
func (p *Pool) ID() uint64 { return p.id }

// Ref increments p's reference count.
func (p *Pool) Ref() { p.refcount.Ref() }

// Unref decrements p's reference count, finalizing the pool once it reaches
// zero. Finalize requires the pool to have no remaining tasks or workers.
func (p *Pool) Unref() { p.unrefPool() }

func (p *Pool) unrefPool() {
	p.refcount.Unref("pool.finalize", func(heapAllocated bool) {
		p.lock.Lock()
		empty := p.taskSet.empty() && p.ready.empty() && p.workers.empty()
		p.lock.Unlock()
		check("pool.finalize", empty, "finalize with live tasks or workers")
		if p.trace != nil {
			p.trace.close()
		}
	})
}

// Size returns the number of tasks whose origin is this pool.
func (p *Pool) Size() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.ntasks
}

// Metrics returns a snapshot of the pool's scheduling statistics. Returns
// the zero Snapshot if WithMetrics was not enabled.
func (p *Pool) Metrics() Snapshot {
	return p.metrics.snapshot()
}

// insertTask is called once, by TaskCreate, to bind a freshly-constructed
// task to its origin pool.
func (p *Pool) insertTask(t *Task) {
	p.lock.Lock()
	p.taskSet.pushBack(&t.originLink)
	p.ntasks++
	t.refcount.Ref() // pool -> task, task_set membership
	p.refcount.Ref() // task -> pool, origin binding

	p.refcount.Ref() // task -> pool, owner binding (t.owner == p already, set by TaskCreate)
	p.ready.pushBack(&t.waitingLink)
	p.idleCond.Signal()
	p.lock.Unlock()

	p.logger.Log(Entry{Level: LevelDebug, Category: "pool", PoolID: p.id, TaskID: t.id, Message: "task inserted"})
}

// Start spawns a worker goroutine that joins the pool's registry and runs
// the worker loop. Each started worker takes a pool reference, released
// when it exits.
func (p *Pool) Start() (uint64, error) {
	p.refcount.Ref()
	id := newWorkerID()
	go p.runWorker(id)
	return id, nil
}

// Execute runs the worker loop on the calling goroutine instead of
// spawning one. Returns ErrInvalidArgument if called from inside a task.
func (p *Pool) Execute() error {
	if currentTask() != nil {
		return ErrInvalidArgument
	}
	p.refcount.Ref()
	id := newWorkerID()
	p.runWorker(id)
	return nil
}

// Stop unregisters the worker with the given id, waking it (via the idle
// condvar) so it observes the departure on its next loop check. Returns
// ErrInvalidArgument if the caller is the worker being stopped, or
// ErrNotFound if no such worker is registered.
func (p *Pool) Stop(workerID uint64) error {
	if w := currentWorker(); w != nil && w.pool == p && w.id == workerID {
		return ErrInvalidArgument
	}

	p.lock.Lock()
	found := p.workers.find(func(w *workerStub) bool { return w.id == workerID })
	if found == nil {
		p.lock.Unlock()
		return ErrNotFound
	}
	p.workers.erase(&found.link)
	p.idleCond.Broadcast()
	p.lock.Unlock()

	p.logger.Log(Entry{Level: LevelInfo, Category: "worker", PoolID: p.id, WorkerID: workerID, Message: "worker stop requested"})
	return nil
}

// Schedule is the migration primitive: callable only from within a task, it
// reassigns the calling task's owner to p (if different), re-queues it onto
// p's ready queue, and suspends. When the task is next resumed it is
// running on a worker of p.
func (p *Pool) Schedule() error {
	t := currentTask()
	if t == nil {
		return ErrInvalidArgument
	}

	if t.owner != p {
		t.owner.unrefPool()
		p.refcount.Ref()
		t.owner = p
		if p.metrics != nil {
			p.metrics.recordMigration()
		}
		if p.trace != nil {
			p.trace.record(p.id, "migrate")
		}
	}

	p.lock.Lock()
	p.ready.pushBack(&t.waitingLink)
	p.idleCond.Signal()
	p.lock.Unlock()

	t.suspend()
	return nil
}

// runWorker is the worker loop shared by Start and Execute.
func (p *Pool) runWorker(id uint64) {
	bindCurrentWorker(p, id)
	defer unbindCurrentWorker()

	stub := &workerStub{id: id}
	stub.link.owner = stub

	p.lock.Lock()
	p.workers.pushBack(&stub.link)
	p.logger.Log(Entry{Level: LevelInfo, Category: "worker", PoolID: p.id, WorkerID: id, Message: "worker started"})

	for stub.link.linked() {
		if p.ready.empty() {
			p.idleCond.Wait()
			continue
		}
		t := p.ready.popFront()
		p.lock.Unlock()

		start := time.Now()
		t.execute()
		if p.metrics != nil {
			p.metrics.recordResume(time.Since(start))
		}
		if p.trace != nil {
			p.trace.record(p.id, "resume")
		}

		p.lock.Lock()
	}
	p.lock.Unlock()

	p.logger.Log(Entry{Level: LevelInfo, Category: "worker", PoolID: p.id, WorkerID: id, Message: "worker stopped"})
	p.unrefPool()
}

// Yield reschedules the caller and suspends: if called from a task, it is a
// round trip through its current owner pool's ready queue (allowing other
// runnable tasks to run); if called from a native goroutine, it delegates
// to the Go scheduler.
func Yield() {
	if t := currentTask(); t != nil {
		_ = t.owner.Schedule()
		return
	}
	runtime.Gosched()
}
