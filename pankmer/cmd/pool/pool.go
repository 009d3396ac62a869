// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package pool runs tasks with a fixed number of goroutines.
package pool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/shenwei356/go-logging"
)

var log = logging.MustGetLogger("pankmer")

// ErrPanic means a task panicked.
var ErrPanic = errors.New("pool: task panicked")

// Size returns the number of workers: min(requested, #CPUs, domain),
// and at least 1. Domain is the number of independent work items.
func Size(requested, domain int) int {
	n := requested
	if ncpu := runtime.NumCPU(); ncpu < n {
		n = ncpu
	}
	if domain < n {
		n = domain
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool runs submitted tasks with at most n of them at the same time.
// Tasks start in the order of submission. A failed task is logged and
// counted, and does not stop the others.
type Pool struct {
	tokens chan int
	wg     sync.WaitGroup

	mu      sync.Mutex
	total   int
	nFailed int
	first   error
}

// New creates a pool with n workers, n < 1 is treated as 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{tokens: make(chan int, n)}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return cap(p.tokens)
}

// Submit schedules a task. It blocks while all workers are busy.
func (p *Pool) Submit(task func() error) {
	p.mu.Lock()
	p.total++
	p.mu.Unlock()

	p.wg.Add(1)
	p.tokens <- 1
	go func() {
		defer func() {
			p.wg.Done()
			<-p.tokens
		}()

		if err := run(task); err != nil {
			log.Errorf("%s", err)

			p.mu.Lock()
			if p.nFailed == 0 {
				p.first = err
			}
			p.nFailed++
			p.mu.Unlock()
		}
	}()
}

func run(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task()
}

// Wait blocks until all submitted tasks finish, and returns the error of
// the first failed task, if any. The pool can be reused afterwards.
func (p *Pool) Wait() error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.nFailed > 0 {
		err = fmt.Errorf("%d of %d tasks failed, the first one: %w", p.nFailed, p.total, p.first)
	}
	p.total, p.nFailed, p.first = 0, 0, nil
	return err
}

// Run runs all tasks with n workers and waits for them.
func Run(n int, tasks ...func() error) error {
	p := New(n)
	for _, task := range tasks {
		p.Submit(task)
	}
	return p.Wait()
}
