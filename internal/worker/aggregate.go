package worker

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/sourcegraph/conc"
)

// cappedBuffer retains at most limit bytes (0 = unlimited). Writes past the
// limit are accepted and discarded so the writer side never blocks.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}

	room := b.limit - int64(b.buf.Len())
	switch {
	case room <= 0:
		b.truncated = b.truncated || len(p) > 0
	case int64(len(p)) > room:
		b.buf.Write(p[:room])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

// streams holds the aggregated output of one worker.
type streams struct {
	stdout cappedBuffer
	stderr cappedBuffer
}

// drain reads stdout and stderr concurrently until both reach EOF. Each
// channel is accumulated in order into its own buffer. A reader closed
// underneath us (after a kill) ends that channel without error.
func drain(stdout, stderr io.Reader, limit int64) (*streams, error) {
	s := &streams{
		stdout: cappedBuffer{limit: limit},
		stderr: cappedBuffer{limit: limit},
	}

	var outErr, errErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		_, outErr = io.Copy(&s.stdout, stdout)
	})
	wg.Go(func() {
		_, errErr = io.Copy(&s.stderr, stderr)
	})
	wg.Wait()

	return s, errors.Join(ignoreClosed(outErr), ignoreClosed(errErr))
}

func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
