// Package transfer implements a queue-and-retry orchestrator for file
// transfers. Callers enqueue jobs, a single worker drives each one
// through validation, checksumming and the transport, and observers
// follow along through emitted lifecycle and progress events. Failed
// jobs are retried with exponential backoff up to a per-job cap.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/hrz6976/relaymate/transport"
)

// Config wires the orchestrator's collaborators. Every field has a
// working default; the zero Config gives a local-filesystem transport
// rooted at /.
type Config struct {
	// Transport moves the bytes. Defaults to a local-filesystem copy.
	Transport transport.Transport
	// Filesystem backs validation, checksumming, directory listing
	// and cleanup. Defaults to the host filesystem.
	Filesystem billy.Filesystem
	// Extensions is the validator's allow-list. Defaults to the
	// accepted image formats in DefaultExtensions.
	Extensions []string
	// BaseDelay and MaxDelay shape the retry backoff. Defaults 1s/30s.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// EventBuffer is the emitter's dispatch buffer size.
	EventBuffer int
	// NeedsSync decides per file whether SyncDirectory enqueues a
	// transfer. Nil means always sync.
	NeedsSync NeedsSyncFunc
	// Clock is swappable for tests.
	Clock Clock
}

// Orchestrator is the public face of the transfer core. The worker
// goroutine starts when the orchestrator is constructed and runs until
// Close; all other methods are safe for concurrent use.
type Orchestrator struct {
	store     *Store
	queue     *jobQueue
	emitter   *Emitter
	sched     *scheduler
	transport transport.Transport
	fs        billy.Filesystem
	needsSync NeedsSyncFunc
	clock     Clock

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// New constructs an orchestrator and starts its scheduler loop.
func New(cfg Config) *Orchestrator {
	fsys := cfg.Filesystem
	if fsys == nil {
		fsys = osfs.New("/")
	}
	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewLocal(fsys)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	o := &Orchestrator{
		store:     NewStore(),
		queue:     newJobQueue(),
		emitter:   NewEmitter(cfg.EventBuffer),
		transport: tr,
		fs:        fsys,
		needsSync: cfg.NeedsSync,
		clock:     clock,
		done:      make(chan struct{}),
	}
	o.sched = &scheduler{
		store:     o.store,
		queue:     o.queue,
		emitter:   o.emitter,
		validator: NewValidator(fsys, cfg.Extensions),
		retry:     NewRetryController(cfg.BaseDelay, cfg.MaxDelay, clock),
		transport: tr,
		fs:        fsys,
		clock:     clock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.sched.run(ctx)
	}()
	return o
}

// Close stops the scheduler and the event dispatcher. An in-flight
// job ends in the failed state; queued jobs stay pending in the store.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		close(o.done)
		o.cancel()
		o.wg.Wait()
		o.emitter.Close()
	})
	return nil
}

func (o *Orchestrator) closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// RequestTransfer creates a job in the pending state and enqueues it.
// A nil opts means DefaultOptions. The path is not validated here:
// a request for a broken file is accepted and fails during processing,
// going through the normal retry policy.
func (o *Orchestrator) RequestTransfer(connectionID string, direction Direction, localPath, remotePath string, opts *Options) (string, error) {
	if o.closed() {
		return "", ErrClosed
	}
	switch direction {
	case DirectionUpload, DirectionDownload:
	default:
		return "", fmt.Errorf("invalid transfer direction %q", direction)
	}

	options := DefaultOptions()
	if opts != nil {
		options = opts.normalized()
	}

	var size int64
	if direction == DirectionUpload {
		// Best effort: a stat failure surfaces later as a validation
		// failure on the worker.
		if info, err := o.fs.Stat(localPath); err == nil {
			size = info.Size()
		}
	} else {
		size = options.ExpectedSizeBytes
	}

	job := &Job{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Direction:    direction,
		LocalPath:    localPath,
		RemotePath:   remotePath,
		Status:       StatusPending,
		SizeBytes:    size,
		MaxRetries:   options.RetryAttempts,
		opts:         options,
	}
	o.store.Create(job)
	o.emitter.Emit(Event{Name: EventQueued, JobID: job.ID, Job: *job})
	o.queue.Push(job.ID)

	logger.WithFields(logger.Fields{
		"job":       job.ID,
		"direction": direction,
		"local":     localPath,
		"remote":    remotePath,
	}).Debug("Transfer queued")
	return job.ID, nil
}

// CancelTransfer cancels a pending or transferring job. Pending jobs
// are marked cancelled in place and skipped when dequeued; for the
// actively transferring job the transport loop is interrupted.
// Jobs already in a terminal state return ErrNotCancellable.
func (o *Orchestrator) CancelTransfer(id string) error {
	var prev Status
	snap, ok := o.store.update(id, func(j *Job) {
		prev = j.Status
		if j.Status == StatusPending || j.Status == StatusTransferring {
			j.Status = StatusCancelled
			now := o.clock.Now()
			j.EndedAt = &now
		}
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if prev != StatusPending && prev != StatusTransferring {
		return fmt.Errorf("%w: job %s is %s", ErrNotCancellable, id, prev)
	}

	o.emitter.Emit(Event{Name: EventCancelled, JobID: id, Job: snap})
	logger.WithFields(logger.Fields{
		"job":  id,
		"from": prev,
	}).Info("Transfer cancelled")
	if prev == StatusTransferring {
		o.sched.cancelIfActive(id)
	}
	return nil
}

// Cleanup removes temporary artifacts of a non-successful job and
// deletes it from the record store. Calling it for an unknown id is a
// no-op, so repeated calls are idempotent. Jobs that have not reached
// a terminal state yet return ErrJobActive.
func (o *Orchestrator) Cleanup(id string) error {
	job, ok := o.store.Get(id)
	if !ok {
		return nil
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}

	if job.Status == StatusFailed || job.Status == StatusCancelled {
		if err := o.transport.Discard(context.Background(), requestFor(job)); err != nil {
			logger.WithField("job", id).WithError(err).Warn("Failed to remove partial artifact")
		}
	}

	o.store.Remove(id)
	o.emitter.Emit(Event{Name: EventCleaned, JobID: id})
	logger.WithField("job", id).Debug("Transfer record cleaned")
	return nil
}

// GetJob returns a snapshot of the job, or ErrNotFound.
func (o *Orchestrator) GetJob(id string) (Job, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

// ListJobs returns snapshots of all known jobs.
func (o *Orchestrator) ListJobs() []Job {
	return o.store.List()
}

// Stats returns the number of jobs per status.
func (o *Orchestrator) Stats() map[Status]int {
	return o.store.Stats()
}

// On subscribes a handler to the named event.
func (o *Orchestrator) On(name EventName, h Handler) {
	o.emitter.On(name, h)
}
