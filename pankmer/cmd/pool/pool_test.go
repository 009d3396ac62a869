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

package pool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolIncrements(t *testing.T) {
	for _, n := range []int{1, 2, 8} {
		var mu sync.Mutex
		var counter int

		p := New(n)
		for i := 0; i < 100; i++ {
			p.Submit(func() error {
				mu.Lock()
				counter++
				mu.Unlock()
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			t.Errorf("%d workers: %s", n, err)
		}
		if counter != 100 {
			t.Errorf("%d workers: expected 100, returned %d", n, counter)
		}
	}
}

func TestPoolConcurrency(t *testing.T) {
	n := 3
	var running, maxRunning int32

	tasks := make([]func() error, 20)
	for i := range tasks {
		tasks[i] = func() error {
			r := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if r <= m || atomic.CompareAndSwapInt32(&maxRunning, m, r) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}
	}
	if err := Run(n, tasks...); err != nil {
		t.Error(err)
	}
	if maxRunning > int32(n) {
		t.Errorf("at most %d tasks should run at the same time, found %d", n, maxRunning)
	}
}

func TestPoolErrors(t *testing.T) {
	errTask := errors.New("task failed")

	p := New(4)
	var done int32
	for i := 0; i < 10; i++ {
		i := i
		p.Submit(func() error {
			atomic.AddInt32(&done, 1)
			switch i {
			case 3:
				return errTask
			case 7:
				panic("boom")
			}
			return nil
		})
	}
	err := p.Wait()
	if err == nil {
		t.Errorf("failures should be reported")
		return
	}
	if !errors.Is(err, errTask) && !errors.Is(err, ErrPanic) {
		t.Errorf("unexpected error: %s", err)
	}
	if done != 10 {
		t.Errorf("all tasks should run, %d done", done)
	}

	// reusable
	p.Submit(func() error { return nil })
	if err = p.Wait(); err != nil {
		t.Errorf("unexpected error after reusing: %s", err)
	}
}

func TestSize(t *testing.T) {
	ncpu := runtime.NumCPU()
	tests := []struct {
		requested, domain, expected int
	}{
		{1, 10, 1},
		{ncpu + 10, ncpu + 20, ncpu},
		{ncpu, 1, 1},
		{0, 5, 1},
		{4, 0, 1},
	}
	for _, test := range tests {
		if s := Size(test.requested, test.domain); s != test.expected {
			t.Errorf("Size(%d, %d): expected %d, returned %d", test.requested, test.domain, test.expected, s)
		}
	}
}
