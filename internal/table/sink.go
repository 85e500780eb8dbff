package table

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrWriteFailure wraps any file-system error raised while writing a table.
var ErrWriteFailure = errors.New("write failure")

// Extension is appended to the destination hint.
const Extension = "tsv"

const maxNameAttempts = 8

// Sink writes tables as tab-separated text files into Dir. The directory must
// already exist.
type Sink struct {
	Dir string
	// Now is used for collision stamps; defaults to time.Now.
	Now func() time.Time
	// Perm is the file mode of new files; defaults to 0o644.
	Perm os.FileMode
}

// Write stores t under hint+"tsv". When that name is taken, a timestamp is
// placed before the extension. Existing files are never overwritten: names are
// claimed with O_EXCL, so the check and the create are a single step.
// Cells are written as-is; tabs or line breaks inside a cell are not escaped.
func (s Sink) Write(t Table, hint string) (string, error) {
	f, name, err := s.create(hint)
	if err != nil {
		return "", err
	}
	if err := finish(f, name, t); err != nil {
		return "", err
	}
	return name, nil
}

// finish writes t to w and closes it. On failure the partially written file
// at name is removed.
func finish(w io.WriteCloser, name string, t Table) error {
	if err := writeTSV(w, t); err != nil {
		_ = w.Close()
		_ = os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailure, name, err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: close %s: %w", ErrWriteFailure, name, err)
	}
	return nil
}

func (s Sink) create(hint string) (*os.File, string, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	name := filepath.Join(s.Dir, hint+Extension)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, name, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}
		name = filepath.Join(s.Dir, hint+stamp(now(), attempt)+"."+Extension)
	}
	return nil, name, fmt.Errorf("%w: no free name for %q after %d attempts", ErrWriteFailure, hint, maxNameAttempts)
}

// stamp renders seconds.microseconds since the epoch. Later attempts get a
// counter so a coarse clock cannot produce the same name twice.
func stamp(t time.Time, attempt int) string {
	s := fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
	if attempt > 0 {
		s += fmt.Sprintf("-%d", attempt)
	}
	return s
}

func writeTSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, t.Schema); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, cells []string) error {
	if _, err := w.WriteString(strings.Join(cells, "\t")); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
