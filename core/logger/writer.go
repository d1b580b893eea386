package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// writeOp is either a line to write or, when ack is set, a flush barrier.
type writeOp struct {
	line []byte
	ack  chan error
}

// lineWriter moves formatting off the hot path: a single goroutine owns the
// sinks and writes lines in arrival order. The first sink error sticks.
type lineWriter struct {
	ops   chan writeOp
	done  chan struct{}
	sinks []*bufio.Writer

	// gate guards ops against sends after Close.
	gate   sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newLineWriter(writers []io.Writer, queue int) *lineWriter {
	if queue <= 0 {
		queue = 256
	}
	w := &lineWriter{
		ops:  make(chan writeOp, queue),
		done: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriter(out))
		}
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.flush()
			continue
		}
		w.setErr(w.write(op.line))
		// Nothing else queued: push the batch out so tailing readers see it.
		if len(w.ops) == 0 {
			w.setErr(w.flush())
		}
	}
	w.setErr(w.flush())
}

var errWriterClosed = errors.New("logger: writer closed")

// Write queues a copy of p. It blocks when the queue is full rather than drop lines.
func (w *lineWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.send(writeOp{line: append([]byte(nil), p...)})
}

// Flush waits until every line queued before it reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	if err := w.send(writeOp{ack: ack}); err != nil {
		return err
	}
	if err := <-ack; err != nil {
		return err
	}
	return w.firstErr()
}

// Close drains the queue and stops the writer goroutine.
func (w *lineWriter) Close() error {
	w.gate.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.gate.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *lineWriter) send(op writeOp) error {
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.ops <- op
	return nil
}

func (w *lineWriter) write(p []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *lineWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
