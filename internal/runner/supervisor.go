// Package runner adapts the teacher's WorkerPool/tomb.v2 goroutine
// supervision idiom (internal/worker.go in the teacher repo) from a
// TCP-connection task queue to the multi-instrument parallel
// execution spec.md §5 allows: "Implementations may parallelize
// across books; within a book, no shared mutable state escapes the
// dispatcher's thread."
package runner

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// BookRunner drives exactly one book to completion. Implementations
// are expected to wrap a *dispatcher.Dispatcher's Drain (or a
// RunUntil loop reading from a live event source); runner has no
// dependency on the dispatcher package itself so it can supervise any
// independent unit of work.
type BookRunner func() error

// Supervisor runs a fixed set of independent BookRunners concurrently
// and reports the first error any of them returns, mirroring the
// teacher's WorkerPool.Setup(t, work) shape but with one goroutine per
// book rather than a shared task channel, since spec.md §5 guarantees
// no book needs to wait on another.
type Supervisor struct {
	t *tomb.Tomb
}

// NewSupervisor constructs an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{t: new(tomb.Tomb)}
}

// Run launches one goroutine per BookRunner in books, under the
// supervisor's tomb, and blocks until all have finished.
// A failing runner causes the tomb to enter its dying state; other
// still-running books are not interrupted — the spec requires no
// cross-book state, not fail-fast coordination — but Run still waits
// for every goroutine to return before reporting the error.
func (s *Supervisor) Run(books map[string]BookRunner) error {
	if len(books) == 0 {
		// A tomb that never had Go() called never closes its dead
		// channel, so Wait() would block forever; nothing to
		// supervise means nothing to wait for.
		return nil
	}
	for symbol, run := range books {
		symbol, run := symbol, run
		s.t.Go(func() error {
			log.Info().Str("symbol", symbol).Msg("book runner starting")
			err := run()
			if err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("book runner failed")
			} else {
				log.Info().Str("symbol", symbol).Msg("book runner finished")
			}
			return err
		})
	}
	return s.t.Wait()
}

// Kill moves the supervisor's tomb to its dying state with reason,
// which Run returns unless a runner failed first. A BookRunner has no
// handle to the tomb, so a book already running is not interrupted:
// it drains to completion and Run still waits for it.
func (s *Supervisor) Kill(reason error) {
	s.t.Kill(reason)
}
