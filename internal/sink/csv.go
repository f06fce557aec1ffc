package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/pavelanni/trivia/internal/model"
)

const lockRetryDelay = 50 * time.Millisecond

// CSVFile appends rows to a master CSV shared by all sessions.
// A sibling ".lock" file serialises writers across processes.
type CSVFile struct {
	path string
	lock *flock.Flock
}

// NewCSVFile returns a sink appending to path.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the CSV file location.
func (c *CSVFile) Path() string {
	return c.path
}

// Append writes the batch, emitting the header first when the file is empty.
func (c *CSVFile) Append(ctx context.Context, batch []model.Record) error {
	ok, err := c.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", c.path, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", c.path)
	}
	defer c.lock.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(model.RecordHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range batch {
		if err := w.Write(r.Strings()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", c.path, err)
	}
	return f.Sync()
}
