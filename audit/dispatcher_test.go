package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	block   chan struct{}
}

func (s *memorySink) WriteEntry(_ context.Context, e Entry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(sink, zap.NewNop(), 16)
	d.Start()

	for i := 0; i < 10; i++ {
		d.Record(Entry{Log: LogAccount, Action: "updated", SubjectID: "acc-1"})
	}
	d.Stop()

	got := sink.all()
	require.Len(t, got, 10)
	for _, e := range got {
		assert.NotEmpty(t, e.ID, "ids are assigned on record")
		assert.False(t, e.At.IsZero(), "timestamps are assigned on record")
	}
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &memorySink{block: make(chan struct{})}
	d := NewDispatcher(sink, zap.New(core), 1)

	// GIVEN: the writer is not running, so the one-slot queue fills up
	d.Record(Entry{Log: LogInvoice, Action: "viewed", SubjectID: "inv-1"})

	// WHEN: another entry arrives
	d.Record(Entry{Log: LogInvoice, Action: "viewed", SubjectID: "inv-2"})

	// THEN: it is dropped with a warning instead of blocking the caller
	assert.Equal(t, 1, logs.FilterMessage("queue full, dropping entry").Len())

	close(sink.block)
	d.Start()
	d.Stop()
	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "inv-1", got[0].SubjectID)
}

func TestDispatcher_RecordAfterStopIsDroppedWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &memorySink{}
	d := NewDispatcher(sink, zap.New(core), 4)
	d.Start()
	d.Stop()

	d.Record(Entry{Log: LogAccount, Action: "logout", SubjectID: "acc-3"})

	assert.Equal(t, 1, logs.FilterMessage("dispatcher stopped, dropping entry").Len())
	assert.Empty(t, d.queue, "nothing is left behind for a writer that will never run")

	// A restarted dispatcher accepts entries again
	d.Start()
	d.Record(Entry{Log: LogAccount, Action: "login", SubjectID: "acc-3"})
	d.Stop()
	require.Len(t, sink.all(), 1)
}

func TestDispatcher_SinkErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &memorySink{err: errors.New("disk full")}
	d := NewDispatcher(sink, zap.New(core), 4)
	d.Start()

	d.Record(Entry{Log: LogAccount, Action: "created", SubjectID: "acc-9"})
	d.Stop()

	assert.Equal(t, 1, logs.FilterMessage("write failed").Len())
	assert.Empty(t, sink.all())
}

func TestDispatcher_StartStopIdempotent(t *testing.T) {
	d := NewDispatcher(&memorySink{}, nil, 0)
	d.Start()
	d.Start()
	d.Stop()
	d.Stop()
	assert.Equal(t, DefaultBuffer, cap(d.queue))
}
