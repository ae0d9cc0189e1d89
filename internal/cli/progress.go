package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/morozRed/classlens/internal/workers"
)

// progressReporter renders a workers.Progress as a single status line on
// an interactive stderr.
type progressReporter struct {
	mu      sync.Mutex
	enabled bool
	w       io.Writer
	label   string
	start   time.Time
	spinner int
	lastLen int
}

func newProgressReporter(w io.Writer, label string, asJSON bool) *progressReporter {
	enabled := false
	if f, ok := w.(*os.File); ok && !asJSON {
		stat, err := f.Stat()
		enabled = err == nil && (stat.Mode()&os.ModeCharDevice) != 0
	}
	return &progressReporter{
		enabled: enabled,
		w:       w,
		label:   label,
		start:   time.Now(),
	}
}

// Track subscribes to p until the returned func is called.
func (r *progressReporter) Track(p *workers.Progress) (stop func()) {
	if !r.enabled {
		return func() {}
	}
	return p.Subscribe(r.Update)
}

func (r *progressReporter) Update(percent int) {
	if !r.enabled || percent == workers.Idle {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	r.printStatus(fmt.Sprintf("%s %s %3d%%", frame, r.label, percent))
}

func (r *progressReporter) Done(count int) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := time.Since(r.start).Round(time.Millisecond)
	r.printStatus(fmt.Sprintf("%s complete (%d classes in %s)", r.label, count, elapsed))
	fmt.Fprintln(r.w)
}

func (r *progressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(r.w, "\r%s", status)
}
