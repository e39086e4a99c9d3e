package progress

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Bar reports per-file hashing progress. A nil *Bar is valid and does nothing,
// so callers can pass one through unconditionally.
type Bar struct {
	bar         *progressbar.ProgressBar
	description string
}

func New(total int64, description string, w io.Writer) *Bar {
	return &Bar{
		bar: progressbar.NewOptions64(
			total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
		description: description,
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetDirectory shows the directory of the file currently being hashed.
func (b *Bar) SetDirectory(rel string) {
	if b == nil {
		return
	}
	dir := path.Dir(rel)
	if dir == "." {
		return
	}
	b.bar.Describe(b.description + " " + dir)
}

func (b *Bar) Increment() {
	if b == nil {
		return
	}
	_ = b.bar.Add(1)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
