// Package history persists terminal transfer outcomes to sqlite. It
// observes the orchestrator's event stream; nothing here sits on the
// transfer hot path.
package history

import (
	logger "github.com/sirupsen/logrus"

	"github.com/hrz6976/relaymate/transfer"
)

// Recorder archives completed, failed and cancelled jobs as they
// reach their terminal event.
type Recorder struct {
	db Operation
}

// NewRecorder creates a recorder writing through the given store.
func NewRecorder(db Operation) *Recorder {
	return &Recorder{db: db}
}

// Attach subscribes the recorder to the orchestrator's terminal events.
func (r *Recorder) Attach(o *transfer.Orchestrator) {
	for _, name := range []transfer.EventName{
		transfer.EventCompleted,
		transfer.EventFailed,
		transfer.EventCancelled,
	} {
		o.On(name, r.record)
	}
}

func (r *Recorder) record(ev transfer.Event) {
	rec := &Record{
		JobID:        ev.Job.ID,
		ConnectionID: ev.Job.ConnectionID,
		Direction:    string(ev.Job.Direction),
		LocalPath:    ev.Job.LocalPath,
		RemotePath:   ev.Job.RemotePath,
		Status:       string(ev.Job.Status),
		SizeBytes:    ev.Job.SizeBytes,
		Checksum:     ev.Job.Checksum,
		RetryCount:   ev.Job.RetryCount,
		Error:        ev.Job.LastError,
		StartedAt:    ev.Job.StartedAt,
		EndedAt:      ev.Job.EndedAt,
	}
	if err := r.db.SaveRecord(rec); err != nil {
		logger.WithField("job", ev.JobID).WithError(err).Warn("Failed to archive transfer outcome")
	}
}
