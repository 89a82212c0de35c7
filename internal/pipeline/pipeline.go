// Package pipeline implements the driver side of the work pipeline: a pool
// of worker processes, each owning a distinct active network namespace, fed
// by a shared order queue and drained by per-worker send/response tasks.
// The structure follows the teacher's ron.Server (internal/ron/server.go):
// mutex-guarded maps plus a channel the response processor goroutine drains,
// generalised here from a command/client broadcast model to a strict
// submit/broadcast/join protocol with a single latched error.
package pipeline

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
	"github.com/netmirage/netmirage-core/pkg/ranges"
	"github.com/prometheus/client_golang/prometheus"
)

// workplace is the driver's handle on one worker process: its pipes, its
// dedicated send/response goroutines, and the per-worker log line buffer.
type workplace struct {
	index int
	cmd   *exec.Cmd
	enc   *encoder
	dec   *decoder

	logBuf []byte

	mailbox chan Response
}

// Driver owns the worker pool and the shared order queue.
type Driver struct {
	workers []*workplace

	queueMu sync.Mutex
	queueCond *sync.Cond
	queue     []Order
	unsentOrders int

	pongMu   sync.Mutex
	pongCond *sync.Cond
	pongsExpected int

	errMu         sync.Mutex
	receivedError bool
	errorCode     ErrorCode
	errorMessage  string

	metrics *metrics

	wg sync.WaitGroup
}

// New spawns count worker processes (argv0 is re-invoked with a
// worker-mode flag the caller supplies), wiring their stdin/stdout as
// pipes. All processes are forked before any driver goroutine starts, per
// the forking invariant: threads must not be created before forks
// complete, to avoid inheriting locked library state.
func New(argv0 string, workerArgs []string, count int, reg prometheus.Registerer) (*Driver, error) {
	d := &Driver{}
	d.queueCond = sync.NewCond(&d.queueMu)
	d.pongCond = sync.NewCond(&d.pongMu)
	if reg != nil {
		d.metrics = newMetrics(reg)
	}

	workers := make([]*workplace, 0, count)
	for i := 0; i < count; i++ {
		cmd := exec.Command(argv0, workerArgs...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("pipeline: worker %d stdin pipe: %w", i, err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("pipeline: worker %d stdout pipe: %w", i, err)
		}
		cmd.Stderr = nil

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("pipeline: spawn worker %d: %w", i, err)
		}

		workers = append(workers, &workplace{
			index:   i,
			cmd:     cmd,
			enc:     newEncoder(stdin),
			dec:     newDecoder(stdout),
			mailbox: make(chan Response, 1),
		})
	}
	d.workers = workers

	for _, w := range d.workers {
		d.wg.Add(2)
		go d.sendTask(w)
		go d.responseTask(w)
	}

	return d, nil
}

// WorkerCount returns the pool size P.
func (d *Driver) WorkerCount() int { return len(d.workers) }

// Submit pushes order onto the shared FIFO for exactly one worker to
// consume. Short-circuits with the latched error, if any.
func (d *Driver) Submit(o Order) error {
	if err := d.LatchedError(); err != nil {
		return err
	}

	d.queueMu.Lock()
	d.queue = append(d.queue, o)
	d.unsentOrders++
	d.queueMu.Unlock()
	d.queueCond.Broadcast()

	if d.metrics != nil {
		d.metrics.ordersSubmitted.Inc()
	}
	return nil
}

// Broadcast drains all queued orders, then writes order directly to every
// worker's pipe. Used only for configuration and ping fan-out.
func (d *Driver) Broadcast(o Order) error {
	if err := d.LatchedError(); err != nil {
		return err
	}

	d.queueMu.Lock()
	for d.unsentOrders != 0 {
		d.queueCond.Wait()
	}
	d.queueMu.Unlock()

	for _, w := range d.workers {
		if err := w.enc.Encode(&o); err != nil {
			return fmt.Errorf("pipeline: broadcast to worker %d: %w", w.index, err)
		}
	}
	return nil
}

// Join waits until the order queue is empty, then broadcasts Ping and
// waits for every worker to pong (or for an error to latch). If
// resetError is set, the error latch is cleared once Join is satisfied.
func (d *Driver) Join(resetError bool) error {
	d.queueMu.Lock()
	for d.unsentOrders != 0 {
		d.queueCond.Wait()
	}
	d.queueMu.Unlock()

	d.pongMu.Lock()
	d.pongsExpected = len(d.workers)
	d.pongMu.Unlock()

	for _, w := range d.workers {
		if err := w.enc.Encode(&Order{Tag: OrderPing}); err != nil {
			return fmt.Errorf("pipeline: ping worker %d: %w", w.index, err)
		}
	}

	d.pongMu.Lock()
	for d.pongsExpected > 0 && !d.errorLatched() {
		d.pongCond.Wait()
	}
	d.pongMu.Unlock()

	if err := d.LatchedError(); err != nil {
		return err
	}
	if resetError {
		d.clearError()
	}
	return nil
}

// LatchedError returns the first latched error, if any.
func (d *Driver) LatchedError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if !d.receivedError {
		return nil
	}
	return fmt.Errorf("pipeline: latched error %v: %s", d.errorCode, d.errorMessage)
}

func (d *Driver) errorLatched() bool {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.receivedError
}

func (d *Driver) clearError() {
	d.errMu.Lock()
	d.receivedError = false
	d.errMu.Unlock()
}

func (d *Driver) latchError(code ErrorCode, message string) {
	d.errMu.Lock()
	first := !d.receivedError
	if first {
		d.receivedError = true
		d.errorCode = code
		d.errorMessage = message
	}
	d.errMu.Unlock()

	if first && d.metrics != nil {
		d.metrics.pipelineErrors.Inc()
	}

	// Unblock every condition waiter: Join's pong wait and the Join,
	// Broadcast and send-task waits on the queue condition. AwaitMailbox
	// sees the latched error on its next poll.
	d.pongCond.Broadcast()
	d.queueCond.Broadcast()
}

// sendTask dequeues orders from the shared FIFO and writes them to one
// worker's pipe. Runs for the Driver's lifetime.
func (d *Driver) sendTask(w *workplace) {
	defer d.wg.Done()
	for {
		d.queueMu.Lock()
		for len(d.queue) == 0 {
			d.queueCond.Wait()
		}
		o := d.queue[0]
		d.queue = d.queue[1:]
		d.queueMu.Unlock()

		if o.Tag == OrderTerminate && o.ID == terminateSentinelID {
			return
		}

		err := w.enc.Encode(&o)

		d.queueMu.Lock()
		d.unsentOrders--
		done := d.unsentOrders == 0
		d.queueMu.Unlock()
		if done {
			d.queueCond.Broadcast()
		}

		if err != nil {
			log.Error("pipeline: worker %d send failed: %v", w.index, err)
			return
		}
	}
}

// terminateSentinelID distinguishes the internal teardown sentinel pushed
// by Cleanup from a worker-directed Terminate order, which never carries
// an ID.
const terminateSentinelID = ^uint32(0)

// responseTask reads framed responses from one worker and dispatches them
// by tag.
func (d *Driver) responseTask(w *workplace) {
	defer d.wg.Done()
	for {
		var r Response
		if err := w.dec.Decode(&r); err != nil {
			if err != io.EOF {
				log.Debug("pipeline: worker %d response stream closed: %v", w.index, err)
			}
			return
		}

		switch r.Tag {
		case RespPong:
			d.pongMu.Lock()
			if d.pongsExpected > 0 {
				d.pongsExpected--
			}
			d.pongMu.Unlock()
			d.pongCond.Broadcast()

		case RespLogChunk:
			w.logBuf = append(w.logBuf, r.LogBytes...)

		case RespLogEnd:
			log.Info("worker%d: %s", w.index, string(w.logBuf))
			w.logBuf = w.logBuf[:0]

		case RespError:
			d.latchError(r.Code, r.Message)

		case RespGotMac, RespAddedEdgeInterface:
			select {
			case w.mailbox <- r:
			default:
				log.Error("pipeline: worker %d mailbox overrun for tag %v", w.index, r.Tag)
			}

		default:
			d.latchError(ErrProtocolViolation, fmt.Sprintf("unexpected response tag %v", r.Tag))
		}

		if r.Tag != RespLogChunk && r.Tag != RespLogEnd && d.metrics != nil {
			d.metrics.ordersCompleted.Inc()
		}
	}
}

// AwaitMailbox blocks until worker index delivers a data response, or
// returns the latched error once one is latched. The builder must have
// called Join before issuing a data-returning order, so only one is ever
// in flight.
func (d *Driver) AwaitMailbox(workerIndex int) (Response, error) {
	w := d.workers[workerIndex]
	for {
		select {
		case r := <-w.mailbox:
			return r, nil
		case <-time.After(50 * time.Millisecond):
			if err := d.LatchedError(); err != nil {
				return Response{}, err
			}
		}
	}
}

// Cleanup latches a local save of error state, injects one Terminate
// sentinel per send task, waits for all send/response tasks to exit, then
// waits for each worker process and closes its pipes.
func (d *Driver) Cleanup() error {
	savedErr := d.LatchedError()

	d.queueMu.Lock()
	for range d.workers {
		d.queue = append(d.queue, Order{Tag: OrderTerminate, ID: terminateSentinelID})
	}
	d.queueMu.Unlock()
	d.queueCond.Broadcast()

	for _, w := range d.workers {
		w.enc.Encode(&Order{Tag: OrderTerminate})
	}

	d.wg.Wait()

	for _, w := range d.workers {
		w.cmd.Wait()
	}

	return savedErr
}

// WorkerTag compacts a set of worker indices into a log-friendly range
// string (e.g. "worker[0-3]") using the teacher's pkg/ranges formatter.
func WorkerTag(indices []int) string {
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = fmt.Sprintf("worker%d", idx)
	}
	r, err := ranges.NewRange("worker", 0, len(indices))
	if err != nil {
		return strings.Join(names, ",")
	}
	compact, err := r.UnsplitRange(names)
	if err != nil {
		return strings.Join(names, ",")
	}
	return compact
}
