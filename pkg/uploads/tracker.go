package uploads

import (
	"sync"

	"github.com/datadock/datadock/pkg/events"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/scan"
)

// Tracker owns every task in a pass. Workers route all status changes
// through it so listeners see a consistent view, and so a task that has
// already settled can't settle twice.
type Tracker struct {
	mu     sync.Mutex
	tasks  []*Task
	nextID int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// NewTask registers a file discovered by the scan and returns its task.
func (t *Tracker) NewTask(folder *scan.Folder, dataset mytardis.Dataset,
	file scan.File) *Task {

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	task := &Task{
		ID:      t.nextID,
		Folder:  folder,
		File:    file,
		Dataset: dataset,
	}
	t.tasks = append(t.tasks, task)
	return task
}

// Start marks the task as picked up by a worker.
func (t *Tracker) Start(task *Task, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task.Status = InProgress
	task.Message = message
	t.publishLocked(task)
}

// Progress records bytes in place on the server. Reports are monotone: a
// lower figure than the current one is ignored.
func (t *Tracker) Progress(task *Task, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if bytes <= task.BytesUploaded {
		return
	}
	task.BytesUploaded = bytes
	t.publishLocked(task)
}

// Requeue puts a failed task back in line for another attempt.
func (t *Tracker) Requeue(task *Task, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task.Retries++
	task.Status = NotStarted
	task.BytesUploaded = 0
	task.Message = "Retrying: " + err.Error()
	t.publishLocked(task)
}

// Complete settles the task successfully. Completed tasks report their full
// size as uploaded. Returns false if the task had already settled.
func (t *Tracker) Complete(task *Task, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Status.Terminal() {
		return false
	}
	task.Status = Completed
	task.BytesUploaded = task.File.Size
	task.Message = message
	t.publishLocked(task)
	return true
}

// Fail settles the task with the error that stopped it. Returns false if the
// task had already settled.
func (t *Tracker) Fail(task *Task, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Status.Terminal() {
		return false
	}
	task.Status = Failed
	task.Message = err.Error()
	t.publishLocked(task)
	return true
}

// Cancel settles the task as canceled, leaving its bytes where they are for
// a future resume. Returns false if the task had already settled.
func (t *Tracker) Cancel(task *Task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Status.Terminal() {
		return false
	}
	task.Status = Canceled
	task.Message = "Canceled"
	t.publishLocked(task)
	return true
}

// SetRemote records the server-side datafile record backing the task.
func (t *Tracker) SetRemote(task *Task, id int, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task.RemoteID = id
	task.RemotePath = path
}

// MarkUploaded flags that the task moved bytes this pass.
func (t *Tracker) MarkUploaded(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task.Uploaded = true
}

// MarkVerifiedRemotely flags that the server had already verified the file.
func (t *Tracker) MarkVerifiedRemotely(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task.VerifiedRemotely = true
}

// Snapshot returns a copy of every task for display.
func (t *Tracker) Snapshot() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]Task, len(t.tasks))
	for i, task := range t.tasks {
		snapshot[i] = *task
	}
	return snapshot
}

// Summary totals the pass.
func (t *Tracker) Summary() events.PassSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var summary events.PassSummary
	for _, task := range t.tasks {
		switch task.Status {
		case Completed:
			summary.Completed++
		case Failed:
			summary.Failed++
		case Canceled:
			summary.Canceled++
		}
		if task.Uploaded {
			summary.Uploaded++
		}
		if task.VerifiedRemotely {
			summary.Verified++
		}
	}
	return summary
}

func (t *Tracker) publishLocked(task *Task) {
	status := events.TaskStatus{
		File:          task.File.Name,
		Directory:     task.File.Directory,
		Dataset:       task.Folder.Name,
		State:         task.Status.String(),
		Message:       task.Message,
		BytesUploaded: task.BytesUploaded,
		BytesTotal:    task.File.Size,
	}
	if task.Status == Failed {
		status.Err = task.Message
	}
	events.PublishTaskStatus(status)
}
