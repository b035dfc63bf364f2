// Package logs captures recent log entries in memory so debug archives and
// log submission can include them.
package logs

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/datadock/datadock/pkg/errors"
)

// DefaultCapacity is the number of log entries the capture hook retains.
const DefaultCapacity = 2000

// FileName is the log file the upload command writes next to the settings
// file while the status view owns the terminal.
const FileName = "datadock.log"

// DropURL receives submitted debug logs so operators can inspect runs that
// went wrong on instrument PCs they can't shell into.
const DropURL = "https://logs.datadock.io/drop"

// Capture is a logrus hook that keeps the most recent entries in a bounded
// ring. Entries that the logger's level filters out are never seen by the
// hook, so verbose capture needs the logger at debug level.
type Capture struct {
	formatter logrus.Formatter

	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

// NewCapture returns a Capture retaining up to capacity formatted entries.
func NewCapture(capacity int) *Capture {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Capture{
		formatter: &logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: true,
		},
		entries: make([]string, capacity),
	}
}

// Install registers a capture hook on the standard logger and returns it.
func Install(capacity int) *Capture {
	capture := NewCapture(capacity)
	logrus.AddHook(capture)
	return capture
}

// Levels implements logrus.Hook.
func (c *Capture) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. It never returns an error because logrus
// prints hook errors straight to stderr, which messes up the status view:
// https://github.com/Sirupsen/logrus/issues/116
func (c *Capture) Fire(entry *logrus.Entry) error {
	line, err := c.formatter.Format(entry)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.next] = string(line)
	c.next = (c.next + 1) % len(c.entries)
	c.full = c.full || c.next == 0
	return nil
}

// Contents returns the captured log in chronological order. Formatted
// entries carry their own trailing newlines.
func (c *Capture) Contents() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lines []string
	if c.full {
		lines = append(lines, c.entries[c.next:]...)
	}
	lines = append(lines, c.entries[:c.next]...)
	return strings.Join(lines, "")
}

// Submit posts the captured log to url as a plain text body.
func (c *Capture) Submit(url string) error {
	resp, err := http.Post(url, "text/plain", strings.NewReader(c.Contents()))
	if err != nil {
		return errors.TransportError{Op: "submit log", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("log server responded with %s", resp.Status)
	}
	return nil
}
