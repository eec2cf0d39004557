package transfer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrz6976/relaymate/transport"
)

// eventRecorder subscribes to every event an orchestrator emits and
// lets tests wait for a job's terminal event.
type eventRecorder struct {
	mu       sync.Mutex
	events   []Event
	terminal chan Event
}

func recordEvents(o *Orchestrator) *eventRecorder {
	r := &eventRecorder{terminal: make(chan Event, 16)}
	for _, name := range []EventName{
		EventQueued, EventStarted, EventProgress, EventCompleted,
		EventFailed, EventCancelled, EventRetrying, EventCleaned,
	} {
		o.On(name, r.handle)
	}
	return r
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	switch ev.Name {
	case EventCompleted, EventFailed, EventCancelled:
		r.terminal <- ev
	}
}

func (r *eventRecorder) waitTerminal(t *testing.T, jobID string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.terminal:
			if ev.JobID == jobID {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for terminal event of job %s", jobID)
		}
	}
}

func (r *eventRecorder) byName(name EventName, jobID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name && ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}

// blockingTransport parks until its context is cancelled or it is
// released, signalling when a transfer has begun.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingTransport) Transfer(ctx context.Context, req transport.Request, progress transport.ProgressFunc) error {
	b.started <- struct{}{}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (b *blockingTransport) Discard(ctx context.Context, req transport.Request) error {
	return nil
}

// countingTransport tracks how many transfers run concurrently.
type countingTransport struct {
	mu        sync.Mutex
	active    int
	maxActive int
	calls     int
	delay     time.Duration
}

func (c *countingTransport) Transfer(ctx context.Context, req transport.Request, progress transport.ProgressFunc) error {
	c.mu.Lock()
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	c.calls++
	c.mu.Unlock()

	time.Sleep(c.delay)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return nil
}

func (c *countingTransport) Discard(ctx context.Context, req transport.Request) error {
	return nil
}

// instantTransport reports the full size at once and succeeds.
type instantTransport struct{}

func (instantTransport) Transfer(ctx context.Context, req transport.Request, progress transport.ProgressFunc) error {
	if progress != nil && req.SizeBytes > 0 {
		progress(req.SizeBytes)
	}
	return nil
}

func (instantTransport) Discard(ctx context.Context, req transport.Request) error {
	return nil
}

func TestUpload_ChunkedProgressAndChecksum(t *testing.T) {
	fsys := memfs.New()
	content := strings.Repeat("p", 3<<20)
	writeTestFile(t, fsys, "/src/photo.png", content)

	o := New(Config{Filesystem: fsys, Transport: transport.NewLocal(fsys)})
	defer o.Close()
	rec := recordEvents(o)

	opts := DefaultOptions()
	opts.ChunkSize = 1 << 20
	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/photo.png", "/dst/photo.png", &opts)
	require.NoError(t, err)

	ev := rec.waitTerminal(t, id)
	require.Equal(t, EventCompleted, ev.Name, "lastError: %s", ev.Job.LastError)

	assert.Equal(t, StatusCompleted, ev.Job.Status)
	assert.Equal(t, int64(3<<20), ev.Job.SizeBytes)
	assert.Equal(t, int64(3<<20), ev.Job.TransferredBytes)
	assert.Equal(t, 100, ev.Job.ProgressPercent)
	assert.NotNil(t, ev.Job.StartedAt)
	assert.NotNil(t, ev.Job.EndedAt)

	wantDigest, err := ComputeDigest(fsys, "/src/photo.png")
	require.NoError(t, err)
	assert.Equal(t, wantDigest, ev.Job.Checksum)

	// One progress event per 1 MiB chunk.
	progress := rec.byName(EventProgress, id)
	require.Len(t, progress, 3)
	assert.Equal(t, int64(1<<20), progress[0].Job.TransferredBytes)
	assert.Equal(t, 33, progress[0].Job.ProgressPercent)
	assert.Equal(t, int64(2<<20), progress[1].Job.TransferredBytes)
	assert.Equal(t, 67, progress[1].Job.ProgressPercent)
	assert.Equal(t, int64(3<<20), progress[2].Job.TransferredBytes)
	assert.Equal(t, 100, progress[2].Job.ProgressPercent)

	// The bytes actually landed.
	info, err := fsys.Stat("/dst/photo.png")
	require.NoError(t, err)
	assert.Equal(t, int64(3<<20), info.Size())
}

func TestUpload_MissingFileRetriesThenFails(t *testing.T) {
	clock := &fakeClock{}
	o := New(Config{
		Filesystem: memfs.New(),
		Transport:  instantTransport{},
		Clock:      clock,
	})
	defer o.Close()
	rec := recordEvents(o)

	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/nope.png", "/dst/nope.png", nil)
	require.NoError(t, err, "a request for a broken file is still accepted")

	ev := rec.waitTerminal(t, id)
	require.Equal(t, EventFailed, ev.Name)

	assert.Equal(t, StatusFailed, ev.Job.Status)
	assert.Equal(t, 3, ev.Job.RetryCount)
	assert.Contains(t, ev.Job.LastError, "does not exist")
	assert.NotNil(t, ev.Job.EndedAt)

	retrying := rec.byName(EventRetrying, id)
	require.Len(t, retrying, 3)
	for i, r := range retrying {
		assert.Equal(t, i+1, r.Job.RetryCount)
		assert.Equal(t, StatusPending, r.Job.Status)
		assert.Zero(t, r.Job.TransferredBytes, "retry must reset progress")
		assert.Zero(t, r.Job.ProgressPercent)
	}

	// Exponential backoff with the default 1s base: 1s, 2s, 4s.
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
	}, clock.recorded())
}

func TestUpload_NoRetriesFailsImmediately(t *testing.T) {
	o := New(Config{Filesystem: memfs.New(), Transport: instantTransport{}})
	defer o.Close()
	rec := recordEvents(o)

	opts := DefaultOptions()
	opts.RetryAttempts = 0
	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/nope.png", "/dst/nope.png", &opts)
	require.NoError(t, err)

	ev := rec.waitTerminal(t, id)
	assert.Equal(t, EventFailed, ev.Name)
	assert.Empty(t, rec.byName(EventRetrying, id))
}

func TestCancel_MidTransfer(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/photo.png", "pixels")
	bt := newBlockingTransport()

	o := New(Config{Filesystem: fsys, Transport: bt})
	defer o.Close()
	rec := recordEvents(o)

	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/photo.png", "/dst/photo.png", nil)
	require.NoError(t, err)

	select {
	case <-bt.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}

	require.NoError(t, o.CancelTransfer(id))

	ev := rec.waitTerminal(t, id)
	assert.Equal(t, EventCancelled, ev.Name)
	assert.Equal(t, StatusCancelled, ev.Job.Status)

	job, err := o.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Empty(t, rec.byName(EventProgress, id))

	// Cancelled jobs do not retry.
	assert.Empty(t, rec.byName(EventRetrying, id))

	// Cleanup removes the record; a second call is a no-op.
	require.NoError(t, o.Cleanup(id))
	_, err = o.GetJob(id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, o.Cleanup(id))

	assert.Eventually(t, func() bool {
		return len(rec.byName(EventCleaned, id)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCancel_PendingJobIsSkippedByScheduler(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/a.png", "pixels")
	writeTestFile(t, fsys, "/src/b.png", "pixels")
	bt := newBlockingTransport()

	o := New(Config{Filesystem: fsys, Transport: bt})
	defer o.Close()
	rec := recordEvents(o)

	first, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	require.NoError(t, err)
	second, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/b.png", "/dst/b.png", nil)
	require.NoError(t, err)

	select {
	case <-bt.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first transfer never started")
	}

	// The second job is still queued; cancelling it marks it in place.
	require.NoError(t, o.CancelTransfer(second))
	ev := rec.waitTerminal(t, second)
	assert.Equal(t, EventCancelled, ev.Name)

	// Let the first job finish; the cancelled one must never start.
	close(bt.release)
	ev = rec.waitTerminal(t, first)
	assert.Equal(t, EventCompleted, ev.Name)
	assert.Empty(t, rec.byName(EventStarted, second))
}

func TestCancel_Errors(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/a.png", "pixels")

	o := New(Config{Filesystem: fsys, Transport: instantTransport{}})
	defer o.Close()
	rec := recordEvents(o)

	assert.ErrorIs(t, o.CancelTransfer("no-such-job"), ErrNotFound)

	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	require.NoError(t, err)
	rec.waitTerminal(t, id)

	err = o.CancelTransfer(id)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestCleanup_ActiveJobRefused(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/a.png", "pixels")
	bt := newBlockingTransport()

	o := New(Config{Filesystem: fsys, Transport: bt})
	defer o.Close()

	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	require.NoError(t, err)

	select {
	case <-bt.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}

	assert.ErrorIs(t, o.Cleanup(id), ErrJobActive)
	close(bt.release)
}

func TestSingleActiveTransfer(t *testing.T) {
	fsys := memfs.New()
	ct := &countingTransport{delay: 10 * time.Millisecond}

	o := New(Config{Filesystem: fsys, Transport: ct})
	defer o.Close()
	rec := recordEvents(o)

	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		writeTestFile(t, fsys, "/src/"+name+".png", "pixels of "+name)
		id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/"+name+".png", "/dst/"+name+".png", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		ev := rec.waitTerminal(t, id)
		assert.Equal(t, EventCompleted, ev.Name)
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	assert.Equal(t, 4, ct.calls)
	assert.Equal(t, 1, ct.maxActive, "only one job may transfer at a time")
}

func TestDownload_UsesExpectedSize(t *testing.T) {
	o := New(Config{Filesystem: memfs.New(), Transport: instantTransport{}})
	defer o.Close()
	rec := recordEvents(o)

	opts := DefaultOptions()
	opts.ExpectedSizeBytes = 2048
	id, err := o.RequestTransfer("conn-1", DirectionDownload, "/dl/photo.png", "/remote/photo.png", &opts)
	require.NoError(t, err)

	ev := rec.waitTerminal(t, id)
	require.Equal(t, EventCompleted, ev.Name, "lastError: %s", ev.Job.LastError)
	assert.Equal(t, int64(2048), ev.Job.SizeBytes)
	assert.Equal(t, 100, ev.Job.ProgressPercent)
	assert.Empty(t, ev.Job.Checksum, "checksums are computed for uploads only")
}

func TestRequestTransfer_InvalidDirection(t *testing.T) {
	o := New(Config{Filesystem: memfs.New(), Transport: instantTransport{}})
	defer o.Close()

	_, err := o.RequestTransfer("conn-1", Direction("sideways"), "/a", "/b", nil)
	assert.Error(t, err)
}

func TestGetJobAndStats(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/a.png", "pixels")

	o := New(Config{Filesystem: fsys, Transport: instantTransport{}})
	defer o.Close()
	rec := recordEvents(o)

	_, err := o.GetJob("no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	require.NoError(t, err)
	rec.waitTerminal(t, id)

	job, err := o.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Len(t, o.ListJobs(), 1)
	assert.Equal(t, 1, o.Stats()[StatusCompleted])
}

func TestClose_RejectsNewWork(t *testing.T) {
	o := New(Config{Filesystem: memfs.New(), Transport: instantTransport{}})
	require.NoError(t, o.Close())
	require.NoError(t, o.Close(), "closing twice is fine")

	_, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransportErrorIsTransportClass(t *testing.T) {
	fsys := memfs.New()
	writeTestFile(t, fsys, "/src/a.png", "pixels")

	o := New(Config{
		Filesystem: fsys,
		Transport:  transport.NewLocal(fsys),
		Clock:      &fakeClock{},
	})
	defer o.Close()
	rec := recordEvents(o)

	// Destination exists and overwrite is off: every attempt fails in
	// the transport, consuming all retries.
	writeTestFile(t, fsys, "/dst/a.png", "already here")
	id, err := o.RequestTransfer("conn-1", DirectionUpload, "/src/a.png", "/dst/a.png", nil)
	require.NoError(t, err)

	ev := rec.waitTerminal(t, id)
	require.Equal(t, EventFailed, ev.Name)
	assert.Contains(t, ev.Job.LastError, "already exists")
	assert.Equal(t, 3, ev.Job.RetryCount)
}
