package train

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// RunLog accumulates the log lines of one run and mirrors them to the process log.
type RunLog struct {
	prefix string

	mu    sync.Mutex
	lines []string
	now   func() time.Time
}

// NewRunLog creates a RunLog whose mirrored lines carry the run ID.
func NewRunLog(runID string) *RunLog {
	return &RunLog{prefix: "[run " + runID + "] ", now: time.Now}
}

// Printf records one line. A nil RunLog only writes to the process log.
func (l *RunLog) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if l == nil {
		log.Print(line)
		return
	}
	log.Print(l.prefix + line)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, l.now().UTC().Format(time.RFC3339)+" "+line)
}

// String returns every recorded line, newline terminated.
func (l *RunLog) String() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	return strings.Join(l.lines, "\n") + "\n"
}
