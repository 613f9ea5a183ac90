// Package progress is the capability interface engines use to report
// long-running work. Engines never touch terminal state directly.
package progress

import (
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
)

// Reporter receives progress updates from an engine run.
type Reporter interface {
	// Report replaces the current progress message.
	Report(msg string)
	// Succeed finishes the current phase with a success message.
	Succeed(msg string)
	// Fail finishes the current phase preserving the last message.
	Fail()
}

// Spinner is a terminal spinner Reporter.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner starts a terminal spinner writing to stderr.
func NewSpinner(msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	return &Spinner{s: s}
}

// Report replaces the spinner text.
func (sp *Spinner) Report(msg string) {
	sp.s.Suffix = " " + msg
}

// Succeed stops the spinner with a final success line.
func (sp *Spinner) Succeed(msg string) {
	if msg == "" {
		msg = strings.TrimPrefix(sp.s.Suffix, " ")
	}
	sp.s.FinalMSG = "✔ " + msg + "\n"
	sp.s.Stop()
}

// Fail stops the spinner keeping the last message visible.
func (sp *Spinner) Fail() {
	sp.s.FinalMSG = "✖" + sp.s.Suffix + "\n"
	sp.s.Stop()
}

// Discard is a no-op Reporter for tests and non-interactive runs.
type Discard struct{}

func (Discard) Report(string)  {}
func (Discard) Succeed(string) {}
func (Discard) Fail()          {}
