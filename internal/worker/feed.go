// internal/worker/feed.go
package worker

import (
	"fmt"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// logFeed follows an output file while the attempt runs and keeps every line
// it sees.
type logFeed struct {
	t      *tail.Tail
	logger *zap.Logger

	mu    sync.Mutex
	lines []string
	done  chan struct{}
}

func startFeed(path string, poll bool, logger *zap.Logger) (*logFeed, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		MustExist: true,
		Poll:      poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail output file: %w", err)
	}
	f := &logFeed{t: t, logger: logger, done: make(chan struct{})}
	go f.collect()
	return f, nil
}

func (f *logFeed) collect() {
	defer close(f.done)
	for line := range f.t.Lines {
		if line.Err != nil {
			f.logger.Warn("Error reading log feed.", zap.Error(line.Err))
			continue
		}
		f.logger.Debug(line.Text)
		f.mu.Lock()
		f.lines = append(f.lines, line.Text)
		f.mu.Unlock()
	}
}

// drain reads the rest of the file, stops the tail and returns the lines.
// StopAtEOF reports its own stop reason, which is not a failure here.
func (f *logFeed) drain() []string {
	_ = f.t.StopAtEOF()
	<-f.done
	f.t.Cleanup()

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.lines...)
}
