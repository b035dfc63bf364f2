package uploads

import (
	"context"
	"mime"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/events"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/scan"
	"github.com/datadock/datadock/pkg/staging"
	"github.com/datadock/datadock/pkg/transfer"
)

// timeFormat is the timestamp layout the datafile descriptor carries.
const timeFormat = "2006-01-02T15:04:05"

// Config sizes the worker pools and carries the transfer settings for one
// upload pass.
type Config struct {
	MaxUploadWorkers       int
	MaxVerificationWorkers int

	// MaxRetries is how many times a failed transfer re-enters the upload
	// pool before the task is marked Failed.
	MaxRetries int

	LargeFileSize    int64
	DefaultChunkSize int64
	MaxChunkSize     int64

	VerificationDelay time.Duration
	FakeMd5Sum        bool

	UploaderUUID   string
	KeyFingerprint string

	// Instrument attributes new datasets to this instrument.
	Instrument mytardis.Instrument

	// StagingLocation is the approved storage box location on the staging
	// host. Empty disables the staging path and every file goes direct.
	StagingLocation string
}

// Coordinator runs one upload pass: a pool of verification workers decides
// which files the server already has, and feeds the rest to a pool of upload
// workers. Tasks settle independently; one file's failure never aborts its
// siblings.
type Coordinator struct {
	repo      Repository
	transport staging.Transport
	config    Config
	tracker   *Tracker
	poller    *Poller

	toBeChecked  chan *Task
	toBeUploaded chan *Task
	checkerWg    sync.WaitGroup
	uploaderWg   sync.WaitGroup

	// taskWg counts tasks that have entered the pools but not settled.
	taskWg sync.WaitGroup

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a Coordinator for one pass. transport may be nil when no
// staging host is approved.
func New(repo Repository, transport staging.Transport, config Config) *Coordinator {
	if config.MaxUploadWorkers < 1 {
		config.MaxUploadWorkers = 1
	}
	if config.MaxVerificationWorkers < 1 {
		config.MaxVerificationWorkers = 1
	}

	return &Coordinator{
		repo:      repo,
		transport: transport,
		config:    config,
		tracker:   NewTracker(),
		poller:    NewPoller(repo, config.VerificationDelay),
		done:      make(chan struct{}),
	}
}

// Tracker exposes the pass's tasks for display.
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// Run works through every file in the scanned folders and blocks until all
// of them have settled. The returned summary totals the pass.
func (c *Coordinator) Run(ctx context.Context, folders []scan.Folder) events.PassSummary {
	ctx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer cancel()
	defer close(c.done)

	tasks := c.buildTasks(ctx, folders)

	live := 0
	for _, task := range tasks {
		if !task.Status.Terminal() {
			live++
		}
	}

	// The upload channel is sized so that a retry re-entering the pool can
	// never block the worker submitting it.
	c.toBeChecked = make(chan *Task, live+1)
	c.toBeUploaded = make(chan *Task, live*(c.config.MaxRetries+1)+1)

	c.startCheckers(ctx)
	c.startUploaders(ctx)

	c.taskWg.Add(live)
	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		c.toBeChecked <- task
	}
	close(c.toBeChecked)

	// Every task settles exactly once, so this returns even when the pass
	// is canceled mid-flight.
	c.taskWg.Wait()
	close(c.toBeUploaded)
	c.checkerWg.Wait()
	c.uploaderWg.Wait()
	c.poller.Wait()

	summary := c.tracker.Summary()
	events.PublishPassDone(summary)
	return summary
}

// CancelAll stops new work from being issued. In-flight transfers stop at
// their next chunk boundary, leaving their tasks resumable.
func (c *Coordinator) CancelAll() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Shutdown cancels the pass and blocks until every worker has exited.
func (c *Coordinator) Shutdown() {
	c.CancelAll()
	<-c.done
}

func (c *Coordinator) setCancel(cancel context.CancelFunc) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancel = cancel
}

// buildTasks ensures each folder's experiment and dataset exist, then
// registers a task per file. A folder whose records can't be ensured fails
// all its tasks and the pass moves on to the next folder.
func (c *Coordinator) buildTasks(ctx context.Context, folders []scan.Folder) []*Task {
	var tasks []*Task
	for i := range folders {
		folder := &folders[i]
		dataset, err := c.ensureDataset(ctx, folder)
		if err != nil {
			log.WithError(err).WithField("folder", folder.Name).Error(
				"Failed to prepare the folder's records on the server")
		}

		for _, file := range folder.Files {
			task := c.tracker.NewTask(folder, dataset, file)
			tasks = append(tasks, task)

			switch {
			case err == nil:
			case errors.IsCanceled(err):
				c.tracker.Cancel(task)
			default:
				c.tracker.Fail(task, errors.WithContext(err, "prepare folder"))
			}
		}
	}
	return tasks
}

func (c *Coordinator) ensureDataset(ctx context.Context, folder *scan.Folder) (mytardis.Dataset, error) {
	query := mytardis.ExperimentQuery{
		Title:           folder.Experiment,
		UploaderUUID:    c.config.UploaderUUID,
		UserFolderName:  folder.UserFolderName,
		GroupFolderName: folder.GroupFolderName,
	}

	experiment, err := c.repo.EnsureExperiment(ctx, query, "")
	if err != nil {
		return mytardis.Dataset{}, err
	}
	return c.repo.EnsureDataset(ctx, experiment, c.config.Instrument, folder.Name)
}

func (c *Coordinator) startCheckers(ctx context.Context) {
	c.checkerWg.Add(c.config.MaxVerificationWorkers)
	for i := 0; i < c.config.MaxVerificationWorkers; i++ {
		go func() {
			defer c.checkerWg.Done()
			for task := range c.toBeChecked {
				c.check(ctx, task)
			}
		}()
	}
}

func (c *Coordinator) startUploaders(ctx context.Context) {
	c.uploaderWg.Add(c.config.MaxUploadWorkers)
	for i := 0; i < c.config.MaxUploadWorkers; i++ {
		go func() {
			defer c.uploaderWg.Done()
			for task := range c.toBeUploaded {
				c.upload(ctx, task)
			}
		}()
	}
}

// upload runs one transfer attempt. Transport failures re-enter the pool
// until the retry budget runs out; anything else settles the task.
func (c *Coordinator) upload(ctx context.Context, task *Task) {
	if ctx.Err() != nil {
		c.cancelTask(task)
		return
	}

	c.tracker.Start(task, "Uploading")
	err := c.transferFile(ctx, task)
	switch {
	case err == nil:
		c.tracker.MarkUploaded(task)
		c.completeTask(task, "Upload complete. Verification requested.")
	case errors.IsCanceled(err) || ctx.Err() != nil:
		// A canceled context also surfaces as transport errors from calls
		// it interrupted. Either way the task stays resumable.
		c.cancelTask(task)
	case errors.IsTransport(err) && task.Retries < c.config.MaxRetries:
		log.WithError(err).WithField("file", task.File.Name).Warn(
			"Upload attempt failed. Retrying.")
		c.tracker.Requeue(task, err)
		c.toBeUploaded <- task
	default:
		c.failTask(task, err)
	}
}

// transferFile moves one file's bytes and requests verification for the
// resulting datafile record.
func (c *Coordinator) transferFile(ctx context.Context, task *Task) error {
	localPath := filepath.Join(task.Folder.Path,
		filepath.FromSlash(path.Join(task.File.Directory, task.File.Name)))

	params, err := c.describeFile(ctx, task, localPath)
	if err != nil {
		return err
	}

	method := transfer.Pick(task.File.Size, c.config.LargeFileSize, c.stagingAvailable())
	switch method {
	case transfer.MethodStaging:
		err = c.uploadViaStaging(ctx, task, localPath, params)
	default:
		err = c.uploadDirect(ctx, task, localPath, params)
	}
	if err != nil {
		return err
	}

	c.poller.Schedule(ctx, task.RemoteID)
	return nil
}

// describeFile builds the datafile descriptor sent to the server.
func (c *Coordinator) describeFile(ctx context.Context, task *Task,
	localPath string) (mytardis.DataFileParams, error) {

	sums := transfer.Checksums{Md5Sum: transfer.FakeMd5Sum}
	if !c.config.FakeMd5Sum {
		var err error
		sums, err = transfer.ComputeChecksums(ctx, localPath)
		if err != nil {
			return mytardis.DataFileParams{}, err
		}
	}

	mimetype := mime.TypeByExtension(filepath.Ext(task.File.Name))
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	modTime := task.File.ModTime.Format(timeFormat)
	return mytardis.DataFileParams{
		Dataset:          task.Dataset.ResourceURI,
		Filename:         task.File.Name,
		Directory:        task.File.Directory,
		Md5Sum:           sums.Md5Sum,
		Sha512Sum:        sums.Sha512Sum,
		Size:             strconv.FormatInt(task.File.Size, 10),
		Mimetype:         mimetype,
		CreatedTime:      modTime,
		ModificationTime: modTime,
	}, nil
}

func (c *Coordinator) uploadDirect(ctx context.Context, task *Task,
	localPath string, params mytardis.DataFileParams) error {

	file, err := fs.Open(localPath)
	if err != nil {
		return errors.WithContext(err, "open local file")
	}
	defer file.Close()

	id, err := c.repo.UploadDirect(ctx, params, file)
	if err != nil {
		return err
	}

	c.tracker.SetRemote(task, id, "")
	c.tracker.Progress(task, task.File.Size)
	return nil
}

func (c *Coordinator) uploadViaStaging(ctx context.Context, task *Task,
	localPath string, params mytardis.DataFileParams) error {

	// A record left by an earlier interrupted pass is reused; its replica
	// already points at the staging destination.
	if task.RemoteID == 0 {
		params.UploaderUUID = c.config.UploaderUUID
		params.RequesterKeyFingerprint = c.config.KeyFingerprint

		record, err := c.repo.CreateStagingRecord(ctx, params)
		if err != nil {
			return err
		}
		c.tracker.SetRemote(task, record.DataFileID, record.Path)
	}

	uploader := transfer.ChunkUploader{
		Transport: c.transport,
		ChunkSize: transfer.ChunkSize(task.File.Size,
			c.config.DefaultChunkSize, c.config.MaxChunkSize),
		Progress: func(uploaded, total int64) {
			c.tracker.Progress(task, uploaded)
		},
	}

	remotePath := path.Join(c.config.StagingLocation, task.RemotePath)
	return uploader.Upload(ctx, localPath, remotePath, task.File.Size)
}

func (c *Coordinator) stagingAvailable() bool {
	return c.transport != nil && c.config.StagingLocation != ""
}

func (c *Coordinator) completeTask(task *Task, message string) {
	if c.tracker.Complete(task, message) {
		c.taskWg.Done()
	}
}

func (c *Coordinator) failTask(task *Task, err error) {
	if c.tracker.Fail(task, err) {
		c.taskWg.Done()
	}
}

func (c *Coordinator) cancelTask(task *Task) {
	if c.tracker.Cancel(task) {
		c.taskWg.Done()
	}
}
