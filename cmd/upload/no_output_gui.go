package upload

import (
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
)

// noOutputGUI implements a headless interface that's used for scheduled runs
// and integration tests. It doesn't draw anything, and just blocks until the
// passes finish or the process is killed.
type noOutputGUI struct {
	stop chan struct{}
}

func newNoOutputGUI() noOutputGUI {
	return noOutputGUI{stop: make(chan struct{})}
}

func (gui noOutputGUI) Run() error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)

	select {
	case <-c:
	case <-gui.stop:
	}
	return nil
}

func (gui noOutputGUI) Stop() {
	close(gui.stop)
}

func (gui noOutputGUI) GetLogger() *logrus.Logger {
	return logrus.StandardLogger()
}
