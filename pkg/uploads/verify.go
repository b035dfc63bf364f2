package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/transfer"
)

// check decides whether the server already has the task's file. Files the
// server has verified, or holds at full size, settle without a transfer;
// everything else goes to the upload pool.
func (c *Coordinator) check(ctx context.Context, task *Task) {
	if ctx.Err() != nil {
		c.cancelTask(task)
		return
	}

	c.tracker.Start(task, "Looking for file on server")
	dataFile, err := c.repo.LookupDataFile(ctx, task.Dataset.ID,
		task.File.Name, task.File.Directory)

	switch {
	case err == nil:
		c.checkExisting(ctx, task, dataFile)
	case errors.IsNotFound(err):
		c.submitUpload(task)
	case errors.IsCanceled(err) || ctx.Err() != nil:
		c.cancelTask(task)
	default:
		// Lookups aren't retried: an ambiguous or failing lookup would
		// make any upload decision unsafe.
		c.failTask(task, err)
	}
}

// checkExisting settles or resumes a task whose datafile record already
// exists on the server.
func (c *Coordinator) checkExisting(ctx context.Context, task *Task,
	dataFile mytardis.DataFile) {

	c.tracker.SetRemote(task, dataFile.ID, "")

	if dataFile.Verified() {
		c.tracker.MarkVerifiedRemotely(task)
		c.completeTask(task, "File has already been verified on the server.")
		return
	}

	fullSize := dataFile.SizeBytes() == task.File.Size
	staged := transfer.Pick(task.File.Size, c.config.LargeFileSize,
		c.stagingAvailable()) == transfer.MethodStaging

	if staged && !fullSize {
		// An interrupted staging upload. The record's replica points at
		// the destination, so the chunk loop can pick up from the bytes
		// already there.
		if len(dataFile.Replicas) == 0 {
			c.failTask(task, errors.New(
				"unverified datafile record has no replica to resume onto"))
			return
		}
		c.tracker.SetRemote(task, dataFile.ID, dataFile.Replicas[0].URI)
		c.submitUpload(task)
		return
	}

	// The bytes are all there (or arrived through a direct POST that the
	// server hasn't processed yet). Ask for verification again rather than
	// uploading a duplicate.
	if err := c.repo.RequestVerification(ctx, dataFile.ID); err != nil {
		log.WithError(err).WithField("file", task.File.Name).Warn(
			"Failed to request verification for a file the server already has")
	}
	c.completeTask(task, "Found unverified file on server. Verification requested.")
}

func (c *Coordinator) submitUpload(task *Task) {
	c.tracker.Start(task, "Queued for upload")
	c.toBeUploaded <- task
}

// Poller requests server-side verification a little while after each upload,
// giving staged bytes time to land in the store.
type Poller struct {
	repo  Repository
	delay time.Duration
	clock clockwork.Clock
	wg    sync.WaitGroup
}

// NewPoller returns a Poller that waits delay before each request.
func NewPoller(repo Repository, delay time.Duration) *Poller {
	return &Poller{
		repo:  repo,
		delay: delay,
		clock: clockwork.NewRealClock(),
	}
}

// Schedule asks the server to verify the datafile after the configured
// delay. Failures are logged rather than returned: verification is
// re-requested on the next pass anyway.
func (p *Poller) Schedule(ctx context.Context, dataFileID int) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case <-p.clock.After(p.delay):
		case <-ctx.Done():
			return
		}

		if err := p.repo.RequestVerification(ctx, dataFileID); err != nil {
			log.WithError(err).WithField("dataFileID", dataFileID).Warn(
				"Failed to request verification. It will be requested again on the next pass.")
		}
	}()
}

// Wait blocks until every scheduled request has run.
func (p *Poller) Wait() {
	p.wg.Wait()
}
