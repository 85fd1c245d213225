/*
dispatcher.go - Best-effort audit log writer

PURPOSE:
  Account and invoice operations leave an append-only trail of who did what.
  Writing that trail must never block or fail the operation it describes, so
  callers hand entries to a Dispatcher after their own write has committed
  and move on.

DESIGN:
  - Record enqueues on a buffered channel and returns immediately
  - A single background goroutine drains the queue into the Sink
  - Queue full: the entry is dropped and a warning is logged
  - Sink error: logged, never surfaced to the caller
  - Stop drains whatever is already queued before returning

USAGE:
  d := audit.NewDispatcher(store, logger, 256)
  d.Start()
  defer d.Stop()
  d.Record(audit.Entry{Log: audit.LogInvoice, Action: "approved", ...})

SEE ALSO:
  - store/sqlite/audit.go: Sink and Reader implementation
*/
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Log names an audit trail.
type Log string

const (
	LogAccount Log = "account"
	LogInvoice Log = "invoice"
)

// Entry is one audit record.
type Entry struct {
	ID         string
	Log        Log
	OperatorID string
	// SubjectID is the account or invoice the action was applied to.
	SubjectID string
	Action    string
	Detail    string
	At        time.Time
}

// Sink persists entries.
type Sink interface {
	WriteEntry(ctx context.Context, e Entry) error
}

// Reader lists persisted entries, newest first.
type Reader interface {
	ListEntries(ctx context.Context, log Log, limit int) ([]Entry, error)
}

// Recorder accepts entries without blocking.
type Recorder interface {
	Record(e Entry)
}

// Discard is a Recorder that drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) {}

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 256

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// Dispatcher writes entries to a Sink from a background goroutine.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	queue  chan Entry

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	// stopped is set by Stop; nothing would drain entries recorded after it.
	stopped bool
}

// NewDispatcher creates a dispatcher. A buffer <= 0 uses DefaultBuffer.
func NewDispatcher(sink Sink, logger *zap.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:   sink,
		logger: logger.Named("audit"),
		queue:  make(chan Entry, buffer),
	}
}

// Start launches the writer goroutine. Calling Start twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.stopped = false
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go d.run()

	d.logger.Debug("dispatcher started", zap.Int("buffer", cap(d.queue)))
}

// Stop drains queued entries and waits for the writer to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.running = false
	d.stopped = true
	d.logger.Debug("dispatcher stopped")
}

// Record queues e. Entries recorded before Start wait in the queue. A full
// queue or a stopped dispatcher drops the entry with a warning; Record only
// waits while a concurrent Stop drains.
func (d *Dispatcher) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Warn("dispatcher stopped, dropping entry",
			zap.String("log", string(e.Log)),
			zap.String("action", e.Action),
			zap.String("subject", e.SubjectID),
		)
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("queue full, dropping entry",
			zap.String("log", string(e.Log)),
			zap.String("action", e.Action),
			zap.String("subject", e.SubjectID),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.write(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.queue:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.sink.WriteEntry(ctx, e); err != nil {
		d.logger.Error("write failed",
			zap.String("log", string(e.Log)),
			zap.String("action", e.Action),
			zap.String("subject", e.SubjectID),
			zap.Error(err),
		)
	}
}
