package upload

import (
	"fmt"
	"path"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/buger/goterm"
	humanize "github.com/dustin/go-humanize"
	"github.com/jroimartin/gocui"
	"github.com/sirupsen/logrus"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/events"
	"github.com/datadock/datadock/pkg/uploads"
)

const (
	overviewWidgetName = "overview"
	uploadsWidgetName  = "uploads"
	statusWidgetName   = "status"
)

type uploadGUI interface {
	// Run implements the main GUI loop.
	Run() error

	// Stop closes the GUI once the passes are done. It's safe to call at any
	// point, including before Run.
	Stop()

	// GetLogger returns a logrus Logger that can be used to display messages
	// on the user's screen.
	GetLogger() *logrus.Logger
}

// uploadGUIImpl contains the GUI implementation for normal user usage.
type uploadGUIImpl struct {
	logger    *logrus.Logger
	loggerOut chanWriter

	dataDir string
	server  string

	mu      sync.Mutex
	gui     *gocui.Gui
	stopped bool
}

func newUploadGUI(settings config.Settings) uploadGUI {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.Kitchen,
	})

	// Allow 256 `Write`s without a corresponding `Read`. We give a generous
	// buffer here because if the channel becomes full, calls to write log
	// messages will block until there's space in the channel (which means that
	// any work in the same thread can't proceed until the log message is
	// written to the UI).
	loggerOut := chanWriter(make(chan []byte, 256))
	logger.SetOutput(loggerOut)

	return &uploadGUIImpl{
		logger:    logger,
		loggerOut: loggerOut,
		dataDir:   settings.Data.Directory,
		server:    settings.Server.URL,
	}
}

func (ug *uploadGUIImpl) GetLogger() *logrus.Logger {
	return ug.logger
}

func (ug *uploadGUIImpl) Stop() {
	ug.mu.Lock()
	defer ug.mu.Unlock()

	ug.stopped = true
	if ug.gui != nil {
		ug.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}
}

func (ug *uploadGUIImpl) Run() error {
	gui, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer gui.Close()

	// Stop may have fired while the terminal was being taken over.
	ug.mu.Lock()
	ug.gui = gui
	stopped := ug.stopped
	ug.mu.Unlock()
	if stopped {
		return nil
	}

	overview := &overviewWidget{dataDir: ug.dataDir, server: ug.server}
	go func() {
		defer util.HandlePanic()
		overview.syncUpdates(gui, newScanWatcher())
	}()

	tasks := newTasksWidget()
	go func() {
		defer util.HandlePanic()
		tasks.syncUpdates(gui, newTaskWatcher())
	}()

	// Stream the logrus output to the status view.
	status := &statusWidget{height: 5}
	go func() {
		defer util.HandlePanic()
		copyToView(gui, statusWidgetName, ug.loggerOut)
	}()

	gui.SetManager(overview, tasks, status)
	ctrlCHandler := func(_ *gocui.Gui, _ *gocui.View) error {
		return gocui.ErrQuit
	}
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, ctrlCHandler); err != nil {
		return errors.WithContext(err, "bind GUI Ctrl-C")
	}

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// newScanWatcher returns a channel that updates whenever a scan pass
// finishes.
func newScanWatcher() chan events.ScanSummary {
	updates := make(chan events.ScanSummary, 16)
	err := events.Bus.Subscribe(events.TopicScanDone,
		func(summary events.ScanSummary) {
			updates <- summary
		})
	if err != nil {
		logrus.WithError(err).Warn("Failed to subscribe to scan updates")
	}
	return updates
}

// newTaskWatcher returns a channel that updates whenever a task in the pass
// changes state.
func newTaskWatcher() chan events.TaskStatus {
	updates := make(chan events.TaskStatus, 64)
	err := events.Bus.Subscribe(events.TopicTaskStatus,
		func(status events.TaskStatus) {
			updates <- status
		})
	if err != nil {
		logrus.WithError(err).Warn("Failed to subscribe to task updates")
	}
	return updates
}

// overviewWidget displays the instance and the latest scan totals at the top
// of the GUI.
type overviewWidget struct {
	dataDir string
	server  string

	scan events.ScanSummary
	lock sync.Mutex
}

// syncUpdates redraws the UI whenever a scan pass publishes its totals.
func (w *overviewWidget) syncUpdates(g *gocui.Gui, updates chan events.ScanSummary) {
	for {
		update := <-updates

		w.lock.Lock()
		w.scan = update
		w.lock.Unlock()

		g.Update(w.Layout)
	}
}

func (w *overviewWidget) Layout(g *gocui.Gui) error {
	maxWidth, _ := g.Size()
	height := 2

	v, err := g.SetView(overviewWidgetName, 0, 0, maxWidth-1, height+1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}

	v.Title = "Uploader"
	v.Wrap = true
	v.Clear()

	w.lock.Lock()
	defer w.lock.Unlock()
	fmt.Fprintf(v, "%s -> %s\n", w.dataDir, w.server)
	fmt.Fprintf(v, "Last scan: %d folders, %d files, %s\n",
		w.scan.Folders, w.scan.Files, humanize.Bytes(uint64(w.scan.Bytes)))

	return nil
}

// tasksWidget displays one row per file in the pass. It's placed under the
// overview.
type tasksWidget struct {
	tasks map[string]events.TaskStatus
	order []string
	lock  sync.Mutex
}

func newTasksWidget() *tasksWidget {
	return &tasksWidget{tasks: map[string]events.TaskStatus{}}
}

// syncUpdates redraws the UI whenever there's new task status in the
// `updates` channel.
func (w *tasksWidget) syncUpdates(g *gocui.Gui, updates chan events.TaskStatus) {
	for {
		update := <-updates

		w.lock.Lock()
		key := taskKey(update)
		if _, ok := w.tasks[key]; !ok {
			w.order = append(w.order, key)
		}
		w.tasks[key] = update
		w.lock.Unlock()

		g.Update(w.Layout)
	}
}

func (w *tasksWidget) Layout(g *gocui.Gui) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	height := len(w.tasks)
	x1, y1, x2, y2, err := relativeTo(g, overviewWidgetName, height)
	if err != nil {
		return err
	}

	v, err := g.SetView(uploadsWidgetName, x1, y1, x2, y2)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "Uploads"
	v.Wrap = true
	v.Clear()

	out := tabwriter.NewWriter(v, 0, 10, 5, ' ', 0)
	defer out.Flush()

	// Rows keep their discovery order, which is the order the files upload
	// in.
	for _, key := range w.order {
		task := w.tasks[key]
		fmt.Fprintf(out, "%s\t%s\t%s\n", key, progressString(task),
			taskStatusString(task))
	}

	return nil
}

// statusWidget is an empty view that streams upload logs. It's placed under
// the uploads view.
type statusWidget struct {
	height int
}

func (w *statusWidget) Layout(g *gocui.Gui) error {
	x1, y1, x2, y2, err := relativeTo(g, uploadsWidgetName, w.height)
	if err != nil {
		return err
	}

	v, err := g.SetView(statusWidgetName, x1, y1, x2, y2)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}

	v.Title = "Status"
	v.Wrap = true
	v.Autoscroll = true

	return nil
}

func taskKey(status events.TaskStatus) string {
	return path.Join(status.Dataset, status.Directory, status.File)
}

func progressString(status events.TaskStatus) string {
	if status.BytesTotal == 0 {
		return ""
	}
	return fmt.Sprintf("%s / %s", humanize.Bytes(uint64(status.BytesUploaded)),
		humanize.Bytes(uint64(status.BytesTotal)))
}

type statusString struct {
	color int
	phase string
	msg   string
}

func (ss statusString) String() string {
	msg := ss.phase
	if ss.msg != "" {
		msg += ": " + ss.msg
	}
	return goterm.Color(msg, ss.color)
}

func taskStatusString(status events.TaskStatus) statusString {
	ss := statusString{
		phase: status.State,
		color: goterm.BLACK,
	}
	switch status.State {
	case uploads.InProgress.String():
		ss.color = goterm.YELLOW
	case uploads.Completed.String():
		ss.color = goterm.GREEN
	case uploads.Failed.String():
		ss.color = goterm.RED
		ss.msg = status.Err
	case uploads.Canceled.String():
		ss.color = goterm.YELLOW
	}

	return ss
}

func relativeTo(g *gocui.Gui, view string, height int) (int, int, int, int, error) {
	maxWidth, _ := g.Size()

	_, _, _, origin, err := g.ViewPosition(view)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	top := origin + 1
	return 0, top, maxWidth - 1, top + height + 1, nil
}

// copyToView writes the messages in `stream` into the desired `view` in `gui`.
// It guarantees writes occur in the order of messages in `stream`.
func copyToView(gui *gocui.Gui, view string, stream chanWriter) {
	for b := range stream {
		b := b
		done := make(chan struct{})
		gui.Update(func(gui *gocui.Gui) error {
			defer close(done)
			v, err := gui.View(view)
			if err != nil {
				return err
			}

			if _, err := v.Write(b); err != nil {
				return err
			}
			return nil
		})
		<-done
	}
}
