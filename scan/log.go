package scan

import (
	"sync"
	"time"
)

const defaultMaxLogLines = 1000

// ringLog is a bounded, timestamped line buffer backing the live
// session log shown to the operator.
type ringLog struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newRingLog(max int) *ringLog {
	if max < 1 {
		max = defaultMaxLogLines
	}
	return &ringLog{max: max}
}

func (l *ringLog) Add(line string) {
	entry := "[" + time.Now().Format("15:04:05.000") + "] " + line
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, entry)
	if len(l.lines) > l.max {
		l.lines = l.lines[len(l.lines)-l.max:]
	}
}

// Snapshot returns a copy of the current log lines, oldest first.
func (l *ringLog) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Reset drops all buffered lines. Used when a new session starts.
func (l *ringLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
}

// Last returns the most recent line, or "".
func (l *ringLog) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	return l.lines[len(l.lines)-1]
}
