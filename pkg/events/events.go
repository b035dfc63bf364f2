// Package events carries progress notifications between the scan and upload
// machinery and the interfaces that display them. Publishers never know
// whether a terminal UI, a log stream, or nothing at all is listening.
package events

import "github.com/asaskevich/EventBus"

// Bus is the shared event bus for the entire application.
var Bus EventBus.Bus

func init() {
	Bus = EventBus.New()
}

// Topics for application-wide coordination.
const (
	// TopicScanFolder fires once per dataset folder discovered during a
	// scan pass. The payload is a FolderFound.
	TopicScanFolder = "scan:folder"

	// TopicScanDone fires when a scan pass has walked the whole data
	// directory. The payload is a ScanSummary.
	TopicScanDone = "scan:done"

	// TopicTaskStatus fires whenever an upload task transitions between
	// states. The payload is a TaskStatus.
	TopicTaskStatus = "task:status"

	// TopicPassDone fires when every task in an upload pass has settled.
	// The payload is a PassSummary.
	TopicPassDone = "pass:done"
)

// FolderFound describes a dataset folder discovered by the scanner.
type FolderFound struct {
	Dataset    string
	Owner      string
	Experiment string
	Files      int
	Bytes      int64
}

// ScanSummary totals a finished scan pass.
type ScanSummary struct {
	Folders int
	Files   int
	Bytes   int64
}

// TaskStatus is a point-in-time snapshot of one upload task.
type TaskStatus struct {
	File          string
	Directory     string
	Dataset       string
	State         string
	Message       string
	BytesUploaded int64
	BytesTotal    int64
	Err           string
}

// PassSummary totals a finished upload pass.
type PassSummary struct {
	Uploaded  int
	Verified  int
	Completed int
	Failed    int
	Canceled  int
}

// PublishFolderFound publishes a FolderFound on TopicScanFolder.
func PublishFolderFound(f FolderFound) {
	Bus.Publish(TopicScanFolder, f)
}

// PublishScanDone publishes a ScanSummary on TopicScanDone.
func PublishScanDone(s ScanSummary) {
	Bus.Publish(TopicScanDone, s)
}

// PublishTaskStatus publishes a TaskStatus on TopicTaskStatus.
func PublishTaskStatus(s TaskStatus) {
	Bus.Publish(TopicTaskStatus, s)
}

// PublishPassDone publishes a PassSummary on TopicPassDone.
func PublishPassDone(s PassSummary) {
	Bus.Publish(TopicPassDone, s)
}
