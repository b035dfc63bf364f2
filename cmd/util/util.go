package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/datadock/datadock/pkg/analytics"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
)

// ClearProgress is the escape sequence that erases the progress line written
// by a ProgressPrinter, so the final output can be printed in its place.
const ClearProgress = "\033[2K\r"

// Mocked out for unit testing.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// HandleFatalError prints err and aborts. Errors that carry a friendly
// message are printed as just that message, without the chain of operation
// context wrapped around them.
func HandleFatalError(err error) {
	analytics.Log.WithError(err).Error("Fatal error")

	if friendly, ok := errors.RootCause(err).(errors.Friendly); ok {
		fmt.Fprintln(stderr, friendly.FriendlyMessage())
	} else {
		fmt.Fprintln(stderr, err)
	}
	exit(1)
}

// HandlePanic reports panics to analytics before crashing. Goroutines should
// defer it so that background panics get reported as well.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	stack := string(debug.Stack())
	analytics.Log.WithField("stack", stack).Errorf("Panicked: %v", r)
	fmt.Fprintf(stderr, "datadock crashed: %v\n\n%s", r, stack)
	exit(1)
}

// ResolveSettingsPath picks the settings file for a command: the --config
// flag's value when one was given, and the default location in the user's
// home directory otherwise.
func ResolveSettingsPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.GetSettingsPath()
}

// ProgressPrinter prints a message followed by a dot every second, so slow
// operations don't look hung.
type ProgressPrinter struct {
	out     io.Writer
	msg     string
	stopped chan struct{}
	done    chan struct{}
}

// NewProgressPrinter creates a ProgressPrinter that writes to out. Start it
// with `go pp.Run()`.
func NewProgressPrinter(out io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		out:     out,
		msg:     msg,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run prints the message and the dot trail until Stop or StopWithPrint is
// called.
func (pp *ProgressPrinter) Run() {
	defer close(pp.done)

	fmt.Fprint(pp.out, pp.msg)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pp.stopped:
			return
		case <-ticker.C:
			fmt.Fprint(pp.out, ".")
		}
	}
}

// Stop ends the progress display, leaving the message on screen.
func (pp *ProgressPrinter) Stop() {
	pp.StopWithPrint("\n")
}

// StopWithPrint ends the progress display and prints s. Passing
// ClearProgress erases the message so the next output replaces it.
func (pp *ProgressPrinter) StopWithPrint(s string) {
	close(pp.stopped)
	<-pp.done
	fmt.Fprint(pp.out, s)
}

// PromptYesOrNo asks question until the user answers yes or no.
func PromptYesOrNo(question string) (bool, error) {
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprintf(stdout, "%s (y/n): ", question)

		answer, err := reader.ReadString('\n')
		if err != nil {
			return false, errors.WithContext(err, "read answer")
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
