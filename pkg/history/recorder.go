package history

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/datadock/datadock/pkg/events"
)

// Recorder listens on the event bus and turns each pass into one Pass row
// plus a Record row per file. It accumulates task statuses as they are
// published and flushes to the store when the pass completes, so it keeps
// working across the repeated passes of watch mode.
type Recorder struct {
	store *Store

	mu        sync.Mutex
	startedAt time.Time
	scan      events.ScanSummary
	records   map[string]*Record
	order     []string
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{
		store:   store,
		records: map[string]*Record{},
	}
}

// Subscribe attaches the recorder to the event bus.
func (r *Recorder) Subscribe() error {
	if err := events.Bus.Subscribe(events.TopicScanDone, r.onScanDone); err != nil {
		return err
	}
	if err := events.Bus.Subscribe(events.TopicTaskStatus, r.onTaskStatus); err != nil {
		return err
	}
	return events.Bus.Subscribe(events.TopicPassDone, r.onPassDone)
}

// Unsubscribe detaches the recorder from the event bus.
func (r *Recorder) Unsubscribe() {
	events.Bus.Unsubscribe(events.TopicScanDone, r.onScanDone)
	events.Bus.Unsubscribe(events.TopicTaskStatus, r.onTaskStatus)
	events.Bus.Unsubscribe(events.TopicPassDone, r.onPassDone)
}

func (r *Recorder) onScanDone(summary events.ScanSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}
	r.scan = summary
}

func (r *Recorder) onTaskStatus(status events.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}

	key := status.Dataset + "/" + status.Directory + "/" + status.File
	record, ok := r.records[key]
	if !ok {
		record = &Record{
			Dataset:   status.Dataset,
			Directory: status.Directory,
			Filename:  status.File,
			Size:      status.BytesTotal,
		}
		r.records[key] = record
		r.order = append(r.order, key)
	}
	record.Status = status.State
	record.Message = status.Message
	record.UploadedBytes = status.BytesUploaded
}

func (r *Recorder) onPassDone(summary events.PassSummary) {
	r.mu.Lock()
	pass := Pass{
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
		Folders:    r.scan.Folders,
		Files:      r.scan.Files,
		Bytes:      r.scan.Bytes,
		Uploaded:   summary.Uploaded,
		Verified:   summary.Verified,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Canceled:   summary.Canceled,
	}
	records := make([]Record, 0, len(r.order))
	for _, key := range r.order {
		records = append(records, *r.records[key])
	}

	r.startedAt = time.Time{}
	r.scan = events.ScanSummary{}
	r.records = map[string]*Record{}
	r.order = nil
	r.mu.Unlock()

	if err := r.store.RecordPass(pass, records); err != nil {
		log.WithError(err).Warn("Failed to record the pass in the upload history")
	}
}
