package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Display reports pipeline stages. On a TTY each running stage shows a
// spinner; otherwise only the result lines are printed.
type Display struct {
	out     io.Writer
	caps    TerminalCapabilities
	symbols ProgressSymbols
	now     func() time.Time

	mu      sync.Mutex
	spin    *spinner.Spinner
	started map[string]time.Time
}

// NewDisplay creates a Display writing to out.
func NewDisplay(out io.Writer, caps TerminalCapabilities) *Display {
	return &Display{
		out:     out,
		caps:    caps,
		symbols: SelectSymbols(caps),
		now:     time.Now,
		started: make(map[string]time.Time),
	}
}

// StageStarted starts the spinner for name.
func (d *Display) StageStarted(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.started[name] = d.now()
	if !d.caps.IsTTY {
		return
	}
	d.stopSpinner()
	s := spinner.New(spinner.CharSets[d.symbols.SpinnerSet], 100*time.Millisecond, spinner.WithWriter(d.out))
	s.Suffix = " " + name + "..."
	s.Start()
	d.spin = s
}

// StageFinished stops the spinner and prints the result of name.
func (d *Display) StageFinished(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopSpinner()
	elapsed := d.now().Sub(d.started[name])
	delete(d.started, name)

	if err != nil {
		fmt.Fprintf(d.out, "%s %s: %v\n", d.paint(color.FgRed, d.symbols.Failure), name, err)
		return
	}
	fmt.Fprintf(d.out, "%s %s %s\n", d.paint(color.FgGreen, d.symbols.Checkmark), name, d.paint(color.Faint, "("+formatElapsed(elapsed)+")"))
}

func (d *Display) stopSpinner() {
	if d.spin != nil {
		d.spin.Stop()
		d.spin = nil
	}
}

func (d *Display) paint(attr color.Attribute, s string) string {
	if !d.caps.SupportsColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
