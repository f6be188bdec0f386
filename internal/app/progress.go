package app

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"dbk-go/internal/sourcefile"
)

const defaultWidth = 80

// Progress draws a single status line for the file being hashed or copied.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	width func() int
	drawn bool
}

// NewProgress returns a Progress drawing on f, or nil if f is not a
// terminal.
func NewProgress(f *os.File) *Progress {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return newProgress(f, func() int {
		w, _, err := term.GetSize(fd)
		if err != nil || w <= 0 {
			return defaultWidth
		}
		return w
	})
}

func newProgress(w io.Writer, width func() int) *Progress {
	return &Progress{w: w, width: width}
}

// Update redraws the status line.
func (p *Progress) Update(path string, done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	status := fmt.Sprintf(" %s / %s %3d%%", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)), pct)
	fmt.Fprintf(p.w, "\r%s%s\x1b[K", fitPath(path, p.width()-len(status)-1), status)
	p.drawn = true
}

// Done clears the status line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprint(p.w, "\r\x1b[K")
		p.drawn = false
	}
}

// fitPath shortens path to at most n bytes, keeping its end.
func fitPath(path string, n int) string {
	if n <= 3 {
		return ""
	}
	if len(path) <= n {
		return path
	}
	return "..." + path[len(path)-(n-3):]
}

var _ sourcefile.Progress = (*Progress)(nil)
