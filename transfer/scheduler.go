package transfer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/go-git/go-billy/v5"
	logger "github.com/sirupsen/logrus"

	"github.com/hrz6976/relaymate/transport"
)

// scheduler drives jobs through the transfer lifecycle, strictly one
// at a time. It owns progress, retry count and timestamps; the cancel
// path may also flip status to cancelled, so every transition here is
// guarded inside the store lock and aborts if the job is no longer in
// the state the transition expects.
type scheduler struct {
	store     *Store
	queue     *jobQueue
	emitter   *Emitter
	validator *Validator
	retry     *RetryController
	transport transport.Transport
	fs        billy.Filesystem
	clock     Clock

	mu           sync.Mutex
	activeID     string
	cancelActive context.CancelFunc
}

// run is the worker loop. It blocks on the queue and exits only when
// ctx is cancelled at shutdown.
func (s *scheduler) run(ctx context.Context) {
	for {
		id, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		job, ok := s.store.Get(id)
		if !ok {
			continue
		}
		// Jobs cancelled while still queued are skipped here.
		if job.Status != StatusPending {
			logger.WithFields(logger.Fields{
				"job":    id,
				"status": job.Status,
			}).Debug("Skipping dequeued job in non-pending state")
			continue
		}
		s.process(ctx, id)
	}
}

func (s *scheduler) process(ctx context.Context, id string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setActive(id, cancel)
	defer s.clearActive(id)

	started := false
	snap, ok := s.store.update(id, func(j *Job) {
		// A cancel can land between the dequeue check and here; only a
		// job still pending may start transferring.
		if j.Status != StatusPending {
			return
		}
		started = true
		j.Status = StatusTransferring
		now := s.clock.Now()
		j.StartedAt = &now
	})
	if !ok || !started {
		return
	}
	s.emitter.Emit(Event{Name: EventStarted, JobID: id, Job: snap})
	logger.WithFields(logger.Fields{
		"job":       id,
		"direction": snap.Direction,
		"local":     snap.LocalPath,
		"remote":    snap.RemotePath,
		"size":      snap.SizeBytes,
	}).Info("Transfer started")

	err := s.execute(jobCtx, id)

	// An external cancel may have landed while the bytes were moving;
	// the cancel path already set the status and emitted the event.
	if cur, ok := s.store.Get(id); ok && cur.Status == StatusCancelled {
		logger.WithField("job", id).Info("Transfer cancelled")
		return
	}

	if err == nil {
		s.complete(id)
		return
	}
	if ctx.Err() != nil {
		// Process shutdown, not a job failure worth retrying.
		s.fail(id, err)
		return
	}
	s.handleFailure(ctx, id, err)
}

// execute runs validation, checksum and the transport for one attempt.
// A panic anywhere inside one job's processing is converted into a
// transport-class failure so the worker loop never dies.
func (s *scheduler) execute(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during transfer: %v", ErrTransport, r)
		}
	}()

	job, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	opts := job.Opts()

	if job.Direction == DirectionUpload {
		if res := s.validator.Validate(job.LocalPath); !res.Valid {
			return fmt.Errorf("%w: %s", ErrValidation, res.Reason)
		}
		if opts.ValidateChecksum {
			digest, derr := ComputeDigest(s.fs, job.LocalPath)
			if derr != nil {
				return derr
			}
			s.store.update(id, func(j *Job) { j.Checksum = digest })
		}
	}

	if terr := s.transport.Transfer(ctx, requestFor(job), func(n int64) {
		s.progress(id, n)
	}); terr != nil {
		return fmt.Errorf("%w: %v", ErrTransport, terr)
	}
	return nil
}

// progress records transferred bytes and emits a non-blocking progress
// event. Updates arriving after the job left the transferring state
// are dropped.
func (s *scheduler) progress(id string, n int64) {
	live := false
	snap, ok := s.store.update(id, func(j *Job) {
		if j.Status != StatusTransferring {
			return
		}
		live = true
		if j.SizeBytes > 0 && n > j.SizeBytes {
			n = j.SizeBytes
		}
		j.TransferredBytes = n
		if j.SizeBytes > 0 {
			j.ProgressPercent = int(math.Round(float64(n) / float64(j.SizeBytes) * 100))
		}
	})
	if !ok || !live {
		return
	}
	s.emitter.TryEmit(Event{Name: EventProgress, JobID: id, Job: snap})
}

func (s *scheduler) complete(id string) {
	done := false
	snap, ok := s.store.update(id, func(j *Job) {
		// A cancel that raced the last bytes wins; the job stays
		// cancelled and no completion is reported.
		if j.Status != StatusTransferring {
			return
		}
		done = true
		j.Status = StatusCompleted
		if j.SizeBytes == 0 {
			// Downloads with an unknown expected size settle here.
			j.SizeBytes = j.TransferredBytes
		}
		j.TransferredBytes = j.SizeBytes
		j.ProgressPercent = 100
		j.LastError = ""
		now := s.clock.Now()
		j.EndedAt = &now
	})
	if !ok || !done {
		return
	}
	s.emitter.Emit(Event{Name: EventCompleted, JobID: id, Job: snap})
	logger.WithFields(logger.Fields{
		"job":  id,
		"size": snap.SizeBytes,
	}).Info("Transfer completed")
}

// handleFailure routes a transient failure through the retry policy:
// either the job goes back to the front of the queue after a backoff
// wait, or it fails terminally once the attempts are exhausted.
func (s *scheduler) handleFailure(ctx context.Context, id string, cause error) {
	job, ok := s.store.Get(id)
	if !ok {
		return
	}
	if job.RetryCount >= job.MaxRetries {
		s.fail(id, cause)
		return
	}

	retrying := false
	snap, ok := s.store.update(id, func(j *Job) {
		if j.Status != StatusTransferring {
			return
		}
		retrying = true
		j.RetryCount++
		j.TransferredBytes = 0
		j.ProgressPercent = 0
		j.Status = StatusPending
		j.LastError = cause.Error()
	})
	if !ok || !retrying {
		return
	}
	s.emitter.Emit(Event{Name: EventRetrying, JobID: id, Job: snap})
	logger.WithFields(logger.Fields{
		"job":     id,
		"attempt": snap.RetryCount,
		"max":     snap.MaxRetries,
		"backoff": s.retry.Backoff(snap.RetryCount),
	}).WithError(cause).Warn("Transfer failed, retrying")

	if err := s.retry.Wait(ctx, snap.RetryCount); err != nil {
		// Shutdown during the backoff wait.
		s.fail(id, cause)
		return
	}
	s.queue.PushFront(id)
}

func (s *scheduler) fail(id string, cause error) {
	failed := false
	snap, ok := s.store.update(id, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		failed = true
		j.Status = StatusFailed
		j.LastError = cause.Error()
		now := s.clock.Now()
		j.EndedAt = &now
	})
	if !ok || !failed {
		return
	}
	s.emitter.Emit(Event{Name: EventFailed, JobID: id, Job: snap})
	logger.WithFields(logger.Fields{
		"job":     id,
		"retries": snap.RetryCount,
	}).WithError(cause).Error("Transfer failed")
}

func (s *scheduler) setActive(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
	s.cancelActive = cancel
}

func (s *scheduler) clearActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id {
		s.activeID = ""
		s.cancelActive = nil
	}
}

// cancelIfActive interrupts the transport loop of the given job if it
// is the one currently transferring.
func (s *scheduler) cancelIfActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id && s.cancelActive != nil {
		s.cancelActive()
	}
}

func requestFor(j Job) transport.Request {
	return transport.Request{
		LocalPath:  j.LocalPath,
		RemotePath: j.RemotePath,
		Upload:     j.Direction == DirectionUpload,
		SizeBytes:  j.SizeBytes,
		ChunkSize:  j.opts.ChunkSize,
		Overwrite:  j.opts.Overwrite,
	}
}
