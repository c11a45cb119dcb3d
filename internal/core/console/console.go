package console

import (
	"bufio"
	"io"
	"sync"
)

// Console reads operator input line by line and hands each line to the
// orchestrator. It never interprets lines itself; parsing happens on
// the orchestrator's control loop so console input and filesystem
// events stay two producers feeding one consumer.
type Console struct {
	in     io.Reader
	handle func(string)

	once sync.Once
	done chan struct{}
}

func New(in io.Reader, handle func(string)) *Console {
	return &Console{
		in:     in,
		handle: handle,
		done:   make(chan struct{}),
	}
}

// Run blocks until the input is exhausted or Stop is called. Intended
// to run on its own goroutine.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}
		c.handle(scanner.Text())
	}
}

// Stop makes Run return after the current line. Reading from a
// terminal cannot be interrupted portably, so a line already being
// awaited is discarded rather than processed.
func (c *Console) Stop() {
	c.once.Do(func() { close(c.done) })
}
