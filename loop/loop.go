/***
    Copyright (c) 2020, Hector Sanjuan

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU Lesser General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU Lesser General Public License for more details.

    You should have received a copy of the GNU Lesser General Public License
    along with this program.  If not, see <http://www.gnu.org/licenses/>.
***/

// Package loop implements the single-threaded cooperative event loop the
// core's concurrency model (spec.md §5) assumes: every callback (HAL
// bytes, write completions, timers, consumer calls) is serialized
// through one goroutine, so SAR, sm and ncicore need no internal
// locking. Posting a task from inside a running task defers it exactly
// like an idle callback — it runs only after the current task returns,
// which is what makes deferred switch_to (spec.md §4.2, §9) and the SAR
// write scheduler (spec.md §4.1) correct without re-entrancy hazards.
//
// The pattern mirrors the interrupt-channel-to-single-consumer-goroutine
// shape used by hardware drivers in the retrieval pack (e.g. the
// st25r3916 NFC reader driver's interrupt handling), generalized into a
// reusable task queue so a HAL implementation backed by its own
// goroutine (a real serial port reader, for instance) can safely call
// back into the core from outside the loop goroutine.
package loop

// Loop runs posted tasks one at a time, in the order they were posted,
// on a single dedicated goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// New starts a Loop's goroutine and returns it.
func New() *Loop {
	l := &Loop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case f := <-l.tasks:
			f()
		case <-l.done:
			return
		}
	}
}

// Post enqueues f to run on the loop goroutine. Safe to call from any
// goroutine, including from a task currently running on the loop, in
// which case f behaves like an idle callback: it runs only once the
// current task has returned.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	case <-l.done:
	}
}

// Call posts f to the loop and blocks until it has run, returning its
// result. Only safe to call from a goroutine that is not itself the
// loop goroutine (calling it from inside a running task deadlocks).
func Call[T any](l *Loop, f func() T) T {
	result := make(chan T, 1)
	l.Post(func() { result <- f() })
	return <-result
}

// Stop terminates the loop goroutine. Tasks queued but not yet run are
// dropped.
func (l *Loop) Stop() {
	close(l.done)
}
