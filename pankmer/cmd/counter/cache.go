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

package counter

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
)

var mapInitSize = 1 << 16

// Cache maps k-mers to counts. It is populated once and read-only
// afterwards, so concurrent lookups need no locking.
type Cache struct {
	populated atomic.Bool
	mu        sync.Mutex // held by the populating call
	m         map[string]uint64
}

// Populate fills the cache with load if it is not populated yet.
// A failed load leaves the cache empty, and the next call retries.
func (c *Cache) Populate(load func(m map[string]uint64) error) error {
	if c.populated.Load() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated.Load() {
		return nil
	}

	m := make(map[string]uint64, mapInitSize)
	if err := load(m); err != nil {
		return err
	}
	c.m = m
	c.populated.Store(true)
	return nil
}

// Populated tells if the cache is populated.
func (c *Cache) Populated() bool {
	return c.populated.Load()
}

// Reset clears the cache. It must not be called concurrently with lookups.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.m = nil
	c.populated.Store(false)
	c.mu.Unlock()
}

// Get returns the count of a k-mer as it is.
func (c *Cache) Get(kmer string) uint64 {
	return c.m[kmer]
}

// Lookup returns the count of a k-mer in upper case, or of its canonical
// form if the k-mer itself is absent.
func (c *Cache) Lookup(kmer string) uint64 {
	kmer = strings.ToUpper(kmer)
	if count, ok := c.m[kmer]; ok {
		return count
	}

	ck, ok := util.CanonicalKmer([]byte(kmer))
	if !ok {
		return 0
	}
	return c.m[string(ck)]
}

// Len returns the number of k-mers.
func (c *Cache) Len() int {
	return len(c.m)
}

// Walk calls f for each k-mer, it stops when f returns true.
func (c *Cache) Walk(f func(kmer string, count uint64) bool) {
	for kmer, count := range c.m {
		if f(kmer, count) {
			return
		}
	}
}
