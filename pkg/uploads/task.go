package uploads

import (
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/scan"
)

// Status is an upload task's lifecycle state. The three terminal states are
// final for the pass; a rescan starts every file over.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Completed
	Failed
	Canceled
)

var statusNames = map[Status]string{
	NotStarted: "Not Started",
	InProgress: "In Progress",
	Completed:  "Completed",
	Failed:     "Failed",
	Canceled:   "Canceled",
}

func (s Status) String() string {
	return statusNames[s]
}

// Terminal reports whether the status is final for this pass.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Canceled
}

// Task is one file's transfer and verification lifecycle within a pass. All
// fields are written through the Tracker, under its lock; the worker that
// currently owns the task is the only writer.
type Task struct {
	ID     int
	Folder *scan.Folder
	File   scan.File

	// Dataset is the remote dataset the file belongs to, ensured before
	// the task entered the pools.
	Dataset mytardis.Dataset

	Status        Status
	BytesUploaded int64
	Message       string
	Retries       int

	// Uploaded marks tasks that moved bytes this pass, as opposed to files
	// the server already had.
	Uploaded bool

	// VerifiedRemotely marks tasks whose file the server had already
	// verified before this pass.
	VerifiedRemotely bool

	// RemoteID and RemotePath identify the datafile record on the server
	// once one is known. RemotePath is relative to the storage box
	// location.
	RemoteID   int
	RemotePath string
}
