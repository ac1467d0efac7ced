package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"
)

// maxLineBytes caps a single stored line; longer lines are cut.
const maxLineBytes = 16 * 1024

// LineRing keeps the last N complete lines written to it. A trailing
// partial line is held until its newline arrives.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	next    int
	count   int
	partial []byte
}

// NewLineRing returns a ring holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity <= 0 {
		capacity = defaultRingLines
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer. It never fails.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = appendCapped(r.partial, data)
			break
		}
		line := appendCapped(r.partial, data[:i])
		r.push(string(line))
		r.partial = r.partial[:0]
		data = data[i+1:]
	}
	return len(p), nil
}

func appendCapped(dst, src []byte) []byte {
	if room := maxLineBytes - len(dst); len(src) > room {
		src = src[:max(room, 0)]
	}
	return append(dst, src...)
}

func (r *LineRing) push(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Len reports how many complete lines are stored.
func (r *LineRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Lines returns up to n of the newest lines, oldest first.
func (r *LineRing) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	n = min(n, r.count)
	out := make([]string, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := range out {
		out[i] = r.lines[(start+i)%len(r.lines)]
	}
	return out
}

// DumpToFile writes every stored line to path, one per line.
func (r *LineRing) DumpToFile(path string) error {
	lines := r.Lines(r.Len())
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
